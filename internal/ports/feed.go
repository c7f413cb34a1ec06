package ports

import (
	"context"
	"time"

	"github.com/nimafallahian/go-indexsync/internal/domain"
)

// ChangeFeed yields successive bounded batches of change records. An empty
// batch signals exhaustion; implementations keep returning empty batches
// afterwards.
type ChangeFeed interface {
	NextBatch(ctx context.Context) (domain.ChangeBatch, error)
}

// Window bounds a change-log read to [Start, End). A nil bound is open.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// ChangeLog is a resumable source of change records for a source reference.
// The cursor is opaque; pass "" to start a window and the returned next
// cursor to continue. next == "" means the window is exhausted. total is nil
// when the log cannot report its cardinality.
type ChangeLog interface {
	Changes(ctx context.Context, source string, window Window, cursor string, limit int) (records []domain.ChangeRecord, next string, total *int64, err error)
}
