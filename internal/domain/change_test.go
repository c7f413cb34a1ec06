package domain

import (
	"testing"
	"time"
)

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestChangeKind_String(t *testing.T) {
	tests := []struct {
		kind     ChangeKind
		expected string
	}{
		{ChangeCreated, "created"},
		{ChangeModified, "modified"},
		{ChangeDeleted, "deleted"},
		{ChangeUnknown, "unknown"},
		{ChangeKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.expected {
			t.Fatalf("String() = %q, expected %q", got, tt.expected)
		}
	}
}

func TestParseChangeKind_RoundTrip(t *testing.T) {
	for _, kind := range []ChangeKind{ChangeCreated, ChangeModified, ChangeDeleted} {
		if got := ParseChangeKind(kind.String()); got != kind {
			t.Fatalf("ParseChangeKind(%q) = %v, expected %v", kind.String(), got, kind)
		}
	}
	if got := ParseChangeKind("moved"); got != ChangeUnknown {
		t.Fatalf("ParseChangeKind(moved) = %v, expected unknown", got)
	}
}

func TestDedup_LatestTimestampWins(t *testing.T) {
	tests := []struct {
		name     string
		records  []ChangeRecord
		expected map[string]ChangeKind
	}{
		{
			name: "later modified overrides earlier deleted",
			records: []ChangeRecord{
				{ID: "a", Kind: ChangeDeleted, Timestamp: ts(1)},
				{ID: "a", Kind: ChangeModified, Timestamp: ts(2)},
			},
			expected: map[string]ChangeKind{"a": ChangeModified},
		},
		{
			name: "stale deleted after modified is discarded",
			records: []ChangeRecord{
				{ID: "a", Kind: ChangeModified, Timestamp: ts(5)},
				{ID: "a", Kind: ChangeDeleted, Timestamp: ts(3)},
			},
			expected: map[string]ChangeKind{"a": ChangeModified},
		},
		{
			name: "equal timestamps pick the later record",
			records: []ChangeRecord{
				{ID: "a", Kind: ChangeCreated, Timestamp: ts(1)},
				{ID: "a", Kind: ChangeDeleted, Timestamp: ts(1)},
			},
			expected: map[string]ChangeKind{"a": ChangeDeleted},
		},
		{
			name: "distinct ids all survive",
			records: []ChangeRecord{
				{ID: "a", Kind: ChangeCreated, Timestamp: ts(1)},
				{ID: "b", Kind: ChangeDeleted, Timestamp: ts(2)},
				{ID: "c", Kind: ChangeModified, Timestamp: ts(3)},
			},
			expected: map[string]ChangeKind{"a": ChangeCreated, "b": ChangeDeleted, "c": ChangeModified},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedup(tt.records)
			if len(got) != len(tt.expected) {
				t.Fatalf("Dedup() kept %d records, expected %d", len(got), len(tt.expected))
			}
			for _, r := range got {
				kind, ok := tt.expected[r.ID]
				if !ok {
					t.Fatalf("unexpected survivor id %q", r.ID)
				}
				if r.Kind != kind {
					t.Fatalf("id %q survived with kind %v, expected %v", r.ID, r.Kind, kind)
				}
			}
		})
	}
}

func TestDedup_KeepsFirstSeenOrder(t *testing.T) {
	records := []ChangeRecord{
		{ID: "b", Kind: ChangeCreated, Timestamp: ts(1)},
		{ID: "a", Kind: ChangeCreated, Timestamp: ts(2)},
		{ID: "b", Kind: ChangeModified, Timestamp: ts(3)},
	}
	got := Dedup(records)
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected order: %q, %q", got[0].ID, got[1].ID)
	}
	if got[0].Kind != ChangeModified {
		t.Fatalf("expected b to survive as modified, got %v", got[0].Kind)
	}
}
