package ports

import (
	"context"

	"github.com/nimafallahian/go-indexsync/internal/domain"
)

// DocumentBuilder converts domain entity ids into index-ready documents.
// Ids whose underlying entity no longer exists are simply omitted from the
// result; omission is not an error and no delete is inferred from it.
type DocumentBuilder interface {
	// Type names the builder, matched against requested partial builder types.
	Type() string

	GetDocuments(ctx context.Context, ids []string) ([]*domain.IndexDocument, error)
}

// SourceBinding ties one change-log source reference to the builder that
// resolves its documents. A nil Builder is valid for a primary binding and
// yields bare id-only documents (pure delete/placeholder case).
type SourceBinding struct {
	Source  string
	Builder DocumentBuilder
}

// SourceConfig binds a document type to its primary source and any related
// secondary sources. A run executes once per configuration matching the
// requested document type.
type SourceConfig struct {
	DocumentType string
	Primary      SourceBinding
	Secondaries  []SourceBinding
}

// SecondaryBuilders returns the non-nil secondary builders in declaration
// order.
func (c SourceConfig) SecondaryBuilders() []DocumentBuilder {
	var builders []DocumentBuilder
	for _, s := range c.Secondaries {
		if s.Builder != nil {
			builders = append(builders, s.Builder)
		}
	}
	return builders
}

// SecondaryBySource returns the secondary binding for a source reference.
func (c SourceConfig) SecondaryBySource(source string) (SourceBinding, bool) {
	for _, s := range c.Secondaries {
		if s.Source == source {
			return s, true
		}
	}
	return SourceBinding{}, false
}
