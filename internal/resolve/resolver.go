// Package resolve builds index documents from builders and merges primary and
// secondary documents per id.
package resolve

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

// Documents resolves the given ids into index documents. A nil primary yields
// bare id-only documents (pure delete/placeholder case). Secondary builders
// are resolved in parallel; their documents are grouped by id
// (case-insensitively) and merged into the primary document in builder order,
// secondary fields overwriting or adding to primary fields. Ids the primary
// builder does not return are silently dropped.
func Documents(ctx context.Context, ids []string, primary ports.DocumentBuilder, secondaries []ports.DocumentBuilder) ([]*domain.IndexDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var primaryDocs []*domain.IndexDocument
	if primary == nil {
		primaryDocs = make([]*domain.IndexDocument, 0, len(ids))
		for _, id := range ids {
			primaryDocs = append(primaryDocs, domain.NewIndexDocument(id))
		}
	} else {
		docs, err := primary.GetDocuments(ctx, ids)
		if err != nil {
			return nil, err
		}
		primaryDocs = docs
	}

	secondaryDocs := make([][]*domain.IndexDocument, len(secondaries))
	g, gctx := errgroup.WithContext(ctx)
	for i, builder := range secondaries {
		g.Go(func() error {
			docs, err := builder.GetDocuments(gctx, ids)
			if err != nil {
				return err
			}
			secondaryDocs[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Builder order is preserved: documents of earlier builders land in the
	// per-id group first and lose field conflicts to later ones.
	byID := make(map[string][]*domain.IndexDocument)
	for _, docs := range secondaryDocs {
		for _, doc := range docs {
			if doc == nil {
				continue
			}
			key := strings.ToLower(doc.ID)
			byID[key] = append(byID[key], doc)
		}
	}

	out := make([]*domain.IndexDocument, 0, len(primaryDocs))
	for _, doc := range primaryDocs {
		if doc == nil {
			continue
		}
		for _, sec := range byID[strings.ToLower(doc.ID)] {
			doc.Merge(sec)
		}
		out = append(out, doc)
	}
	return out, nil
}
