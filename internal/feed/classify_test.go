package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

type stubBuilder struct {
	builderType string
}

func (b stubBuilder) Type() string { return b.builderType }

func (b stubBuilder) GetDocuments(context.Context, []string) ([]*domain.IndexDocument, error) {
	return nil, nil
}

func classifyConfig() ports.SourceConfig {
	return ports.SourceConfig{
		DocumentType: "item",
		Primary:      ports.SourceBinding{Source: "item", Builder: stubBuilder{"item-builder"}},
		Secondaries: []ports.SourceBinding{
			{Source: "vendor", Builder: stubBuilder{"vendor-builder"}},
		},
	}
}

func record(id, source string, kind domain.ChangeKind, sec int) domain.ChangeRecord {
	return domain.ChangeRecord{
		ID:        id,
		Kind:      kind,
		Timestamp: time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC),
		Source:    source,
	}
}

func TestClassify_PartialRouting(t *testing.T) {
	cfg := classifyConfig()
	modified := record("a", "vendor", domain.ChangeModified, 1)

	tests := []struct {
		name      string
		record    domain.ChangeRecord
		caps      ports.Capabilities
		requested []string
		partial   bool
	}{
		{
			name:      "eligible secondary modification routes partial",
			record:    modified,
			caps:      ports.Capabilities{PartialUpdate: true},
			requested: []string{"vendor-builder"},
			partial:   true,
		},
		{
			name:      "backend without partial support routes full",
			record:    modified,
			caps:      ports.Capabilities{},
			requested: []string{"vendor-builder"},
		},
		{
			name:   "builder type not requested routes full",
			record: modified,
			caps:   ports.Capabilities{PartialUpdate: true},
		},
		{
			name:      "primary source change routes full",
			record:    record("a", "item", domain.ChangeModified, 1),
			caps:      ports.Capabilities{PartialUpdate: true},
			requested: []string{"vendor-builder"},
		},
		{
			name:      "created change routes full even from secondary",
			record:    record("a", "vendor", domain.ChangeCreated, 1),
			caps:      ports.Capabilities{PartialUpdate: true},
			requested: []string{"vendor-builder"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify([]domain.ChangeRecord{tt.record}, cfg, tt.caps, tt.requested)
			if tt.partial {
				require.Empty(t, cls.Upserts)
				require.Len(t, cls.Partial["vendor-builder"], 1)
			} else {
				require.Len(t, cls.Upserts, 1)
				require.Empty(t, cls.Partial)
			}
			require.Equal(t, 1, cls.Changed())
		})
	}
}

func TestClassify_DeletesNeverRouteToBuilders(t *testing.T) {
	cfg := classifyConfig()
	cls := Classify([]domain.ChangeRecord{
		record("a", "vendor", domain.ChangeDeleted, 1),
	}, cfg, ports.Capabilities{PartialUpdate: true}, []string{"vendor-builder"})

	require.Len(t, cls.Deletes, 1)
	require.Empty(t, cls.Upserts)
	require.Empty(t, cls.Partial)
}

func TestClassify_DedupsBeforeRouting(t *testing.T) {
	cfg := classifyConfig()
	cls := Classify([]domain.ChangeRecord{
		record("a", "item", domain.ChangeDeleted, 1),
		record("a", "item", domain.ChangeModified, 2),
		record("b", "item", domain.ChangeDeleted, 3),
	}, cfg, ports.Capabilities{}, nil)

	require.Len(t, cls.Upserts, 1)
	require.Equal(t, "a", cls.Upserts[0].ID)
	require.Len(t, cls.Deletes, 1)
	require.Equal(t, "b", cls.Deletes[0].ID)
	require.Equal(t, 2, cls.Changed())
}
