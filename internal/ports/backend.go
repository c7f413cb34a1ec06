package ports

import (
	"context"

	"github.com/nimafallahian/go-indexsync/internal/domain"
)

// Capabilities is the optional feature set a backend declares once at
// construction time. Callers query it instead of probing per call.
type Capabilities struct {
	// PartialUpdate means IndexPartial may be used to update a subset of
	// fields on an already-indexed document.
	PartialUpdate bool

	// IndexSwap means the backend supports blue/green rebuilds through
	// IndexToBackup and SwapIndex.
	IndexSwap bool
}

// SearchQuery is the minimal query shape the pipeline needs to derive index
// state from the backend.
type SearchQuery struct {
	Size      int
	SortField string
	SortDesc  bool

	// Backup targets the backup (inactive) index of a swap-capable backend.
	Backup bool
}

// SearchResult carries the total hit count and the returned documents.
type SearchResult struct {
	TotalCount int64
	Documents  []*domain.IndexDocument
}

// SearchBackend is the system boundary for index operations. Implementations
// may use bulk semantics under the hood and must honour the provided context.
// Index, IndexPartial, IndexToBackup and Delete report per-document failures
// through the returned result; they return an error only when the request as
// a whole could not be carried out.
type SearchBackend interface {
	Capabilities() Capabilities

	// DeleteIndex removes the whole index for a document type. Deleting an
	// absent index is not an error.
	DeleteIndex(ctx context.Context, documentType string) error

	Index(ctx context.Context, documentType string, docs []*domain.IndexDocument) (*domain.IndexingResult, error)

	// IndexPartial updates only the given fields on already-indexed
	// documents. Only valid when Capabilities().PartialUpdate is set.
	IndexPartial(ctx context.Context, documentType string, docs []*domain.IndexDocument) (*domain.IndexingResult, error)

	// IndexToBackup indexes into the backup index of a blue/green pair.
	// Only valid when Capabilities().IndexSwap is set.
	IndexToBackup(ctx context.Context, documentType string, docs []*domain.IndexDocument) (*domain.IndexingResult, error)

	// SwapIndex promotes the freshly built backup index to active.
	SwapIndex(ctx context.Context, documentType string) error

	Delete(ctx context.Context, documentType string, ids []string) (*domain.IndexingResult, error)

	Search(ctx context.Context, documentType string, query SearchQuery) (*SearchResult, error)
}
