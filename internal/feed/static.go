package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nimafallahian/go-indexsync/internal/domain"
)

// StaticFeed serves a fixed, explicit set of document ids as a sequence of
// "modified" changes, chunked by batch size. It always knows its total.
type StaticFeed struct {
	ids       []string
	source    string
	batchSize int
	stamp     time.Time
	pos       int
}

// NewStaticFeed constructs a synthetic feed over explicit ids attributed to
// the given source. All records carry the construction time as their change
// timestamp.
func NewStaticFeed(ids []string, source string, batchSize int) (*StaticFeed, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	return &StaticFeed{
		ids:       ids,
		source:    source,
		batchSize: batchSize,
		stamp:     time.Now(),
	}, nil
}

// NextBatch returns the next chunk of ids as modified changes.
func (f *StaticFeed) NextBatch(_ context.Context) (domain.ChangeBatch, error) {
	if f.pos >= len(f.ids) {
		return domain.ChangeBatch{}, nil
	}
	end := f.pos + f.batchSize
	if end > len(f.ids) {
		end = len(f.ids)
	}
	records := make([]domain.ChangeRecord, 0, end-f.pos)
	for _, id := range f.ids[f.pos:end] {
		records = append(records, domain.ChangeRecord{
			ID:        id,
			Kind:      domain.ChangeModified,
			Timestamp: f.stamp,
			Source:    f.source,
		})
	}
	f.pos = end
	total := int64(len(f.ids))
	return domain.ChangeBatch{Records: records, Total: &total}, nil
}
