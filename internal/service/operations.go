package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
	"github.com/nimafallahian/go-indexsync/internal/resolve"
	"github.com/nimafallahian/go-indexsync/internal/singleflight"
)

// GetIndexState derives the active index's state for a document type by
// querying the backend for its most recently indexed document.
func (c *Coordinator) GetIndexState(ctx context.Context, documentType string) (*domain.IndexState, error) {
	return c.indexState(ctx, documentType, false)
}

// GetIndexStates derives the state of the active index and, when the backend
// supports blue/green swap, the backup index too.
func (c *Coordinator) GetIndexStates(ctx context.Context, documentType string) ([]*domain.IndexState, error) {
	active, err := c.indexState(ctx, documentType, false)
	if err != nil {
		return nil, err
	}
	states := []*domain.IndexState{active}
	if c.caps.IndexSwap {
		backup, err := c.indexState(ctx, documentType, true)
		if err != nil {
			return nil, err
		}
		states = append(states, backup)
	}
	return states, nil
}

func (c *Coordinator) indexState(ctx context.Context, documentType string, backup bool) (*domain.IndexState, error) {
	res, err := c.backend.Search(ctx, documentType, ports.SearchQuery{
		Size:      1,
		SortField: domain.FieldIndexedAt,
		SortDesc:  true,
		Backup:    backup,
	})
	if err != nil {
		return nil, fmt.Errorf("query index state for %s: %w", documentType, err)
	}
	state := &domain.IndexState{
		DocumentType:  documentType,
		Backup:        backup,
		DocumentCount: res.TotalCount,
	}
	if len(res.Documents) > 0 {
		if f, ok := res.Documents[0].Field(domain.FieldIndexedAt); ok {
			if s, isStr := f.Value.(string); isStr {
				if ts, perr := time.Parse(time.RFC3339Nano, s); perr == nil {
					state.LastIndexedAt = &ts
				}
			}
		}
	}
	return state, nil
}

// ApplyDocuments enqueues discrete index work for the given ids at a
// priority. When builderTypes are given and the backend supports partial
// updates, only those builders' documents are applied partially; otherwise
// the documents go through full resolution and indexing. The work executes
// on the dispatcher's worker pool, concurrently and independently of the run
// lock.
func (c *Coordinator) ApplyDocuments(_ context.Context, documentType string, ids []string, priority singleflight.Priority, builderTypes ...string) error {
	if c.dispatcher == nil {
		return fmt.Errorf("no dispatcher configured")
	}
	configs := c.configsFor(documentType)
	if len(configs) == 0 {
		return fmt.Errorf("%w: no source configuration for document type %q", domain.ErrValidation, documentType)
	}
	if len(ids) == 0 {
		return nil
	}

	tag := "apply:" + documentType
	for _, cfg := range configs {
		c.dispatcher.Enqueue(priority, singleflight.WorkItem{
			Tag: tag,
			Fn: func(ctx context.Context) {
				c.applyBatch(ctx, documentType, cfg, ids, builderTypes)
			},
		})
	}
	return nil
}

func (c *Coordinator) applyBatch(ctx context.Context, documentType string, cfg ports.SourceConfig, ids []string, builderTypes []string) {
	if len(builderTypes) > 0 && c.caps.PartialUpdate {
		for _, builderType := range builderTypes {
			builder := c.builderByType(cfg, builderType)
			if builder == nil {
				c.logger.Warn("apply skipped, unknown builder type",
					"document_type", documentType, "builder_type", builderType)
				continue
			}
			docs, err := builder.GetDocuments(ctx, ids)
			if err != nil {
				c.logger.Error("apply partial resolve failed",
					"document_type", documentType, "builder_type", builderType, "error", err)
				continue
			}
			stampAll(docs)
			if res, err := c.backend.IndexPartial(ctx, documentType, docs); err != nil {
				c.logger.Error("apply partial update failed", "document_type", documentType, "error", err)
			} else if res.Failed() > 0 {
				c.logger.Warn("apply partial update had failures",
					"document_type", documentType, "failed", res.Failed())
			}
		}
		return
	}

	docs, err := resolve.Documents(ctx, ids, cfg.Primary.Builder, cfg.SecondaryBuilders())
	if err != nil {
		c.logger.Error("apply resolve failed", "document_type", documentType, "error", err)
		return
	}
	stampAll(docs)
	if res, err := c.backend.Index(ctx, documentType, docs); err != nil {
		c.logger.Error("apply index failed", "document_type", documentType, "error", err)
	} else if res.Failed() > 0 {
		c.logger.Warn("apply index had failures", "document_type", documentType, "failed", res.Failed())
	}
}

// DeleteDocuments enqueues discrete delete work for the given ids at a
// priority.
func (c *Coordinator) DeleteDocuments(_ context.Context, documentType string, ids []string, priority singleflight.Priority) error {
	if c.dispatcher == nil {
		return fmt.Errorf("no dispatcher configured")
	}
	if len(c.configsFor(documentType)) == 0 {
		return fmt.Errorf("%w: no source configuration for document type %q", domain.ErrValidation, documentType)
	}
	if len(ids) == 0 {
		return nil
	}

	c.dispatcher.Enqueue(priority, singleflight.WorkItem{
		Tag: "apply:" + documentType,
		Fn: func(ctx context.Context) {
			if res, err := c.backend.Delete(ctx, documentType, ids); err != nil {
				c.logger.Error("apply delete failed", "document_type", documentType, "error", err)
			} else if res.Failed() > 0 {
				c.logger.Warn("apply delete had failures", "document_type", documentType, "failed", res.Failed())
			}
		},
	})
	return nil
}
