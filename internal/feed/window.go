// Package feed turns change logs and explicit id sets into bounded change
// batches, pulls a set of feeds round by round, and classifies each round's
// changes into backend work.
package feed

import (
	"context"
	"fmt"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

// WindowFeed pages over one source's change log within a [start, end) window.
type WindowFeed struct {
	log       ports.ChangeLog
	source    string
	window    ports.Window
	batchSize int

	cursor string
	done   bool
}

// NewWindowFeed constructs a feed over the given source and window.
func NewWindowFeed(log ports.ChangeLog, source string, window ports.Window, batchSize int) (*WindowFeed, error) {
	if log == nil {
		return nil, fmt.Errorf("change log must not be nil")
	}
	if source == "" {
		return nil, fmt.Errorf("source must not be empty")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	return &WindowFeed{
		log:       log,
		source:    source,
		window:    window,
		batchSize: batchSize,
	}, nil
}

// NextBatch returns the next page of the window. An empty batch means the
// window is exhausted.
func (f *WindowFeed) NextBatch(ctx context.Context) (domain.ChangeBatch, error) {
	if f.done {
		return domain.ChangeBatch{}, nil
	}
	records, next, total, err := f.log.Changes(ctx, f.source, f.window, f.cursor, f.batchSize)
	if err != nil {
		return domain.ChangeBatch{}, fmt.Errorf("read changes for %s: %w", f.source, err)
	}
	f.cursor = next
	if next == "" || len(records) == 0 {
		f.done = true
	}
	return domain.ChangeBatch{Records: records, Total: total}, nil
}
