package domain

import (
	"testing"
	"time"
)

func TestIndexDocument_MergeFieldUnion(t *testing.T) {
	primary := NewIndexDocument("doc-1")
	primary.SetField(Field{Key: "A", Value: 1})

	first := NewIndexDocument("doc-1")
	first.SetField(Field{Key: "B", Value: 2})

	second := NewIndexDocument("doc-1")
	second.SetField(Field{Key: "A", Value: 3})

	primary.Merge(first)
	primary.Merge(second)

	if len(primary.Fields) != 2 {
		t.Fatalf("expected 2 fields after merge, got %d", len(primary.Fields))
	}
	a, ok := primary.Field("A")
	if !ok || a.Value != 3 {
		t.Fatalf("expected A=3 (later source wins), got %v", a.Value)
	}
	b, ok := primary.Field("B")
	if !ok || b.Value != 2 {
		t.Fatalf("expected B=2, got %v", b.Value)
	}
}

func TestIndexDocument_SetFieldKeepsPosition(t *testing.T) {
	doc := NewIndexDocument("doc-1")
	doc.SetField(Field{Key: "first", Value: 1})
	doc.SetField(Field{Key: "second", Value: 2})
	doc.SetField(Field{Key: "first", Value: 10})

	if len(doc.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(doc.Fields))
	}
	if doc.Fields[0].Key != "first" || doc.Fields[0].Value != 10 {
		t.Fatalf("expected overwritten field to keep position, got %+v", doc.Fields[0])
	}
}

func TestIndexDocument_MergeNil(t *testing.T) {
	doc := NewIndexDocument("doc-1")
	doc.SetField(Field{Key: "A", Value: 1})
	doc.Merge(nil)
	if len(doc.Fields) != 1 {
		t.Fatalf("merge with nil changed fields: %d", len(doc.Fields))
	}
}

func TestIndexDocument_StampIndexedAt(t *testing.T) {
	doc := NewIndexDocument("doc-1")
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	doc.StampIndexedAt(stamp)

	f, ok := doc.Field(FieldIndexedAt)
	if !ok {
		t.Fatal("expected indexed_at field to be attached")
	}
	parsed, err := time.Parse(time.RFC3339Nano, f.Value.(string))
	if err != nil {
		t.Fatalf("indexed_at not parseable: %v", err)
	}
	if !parsed.Equal(stamp) {
		t.Fatalf("indexed_at = %v, expected %v", parsed, stamp)
	}
	if !f.Retrievable || !f.Filterable {
		t.Fatal("indexed_at must be retrievable and filterable")
	}

	// Restamping replaces, never duplicates.
	doc.StampIndexedAt(stamp.Add(time.Hour))
	count := 0
	for _, fl := range doc.Fields {
		if fl.Key == FieldIndexedAt {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one indexed_at field, got %d", count)
	}
}
