package feed

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

// Round is the merged result of pulling one batch from every feed. Total is
// set only once every feed has reported a cardinality; otherwise progress is
// counts-only. Exhausted means every feed returned an empty batch.
type Round struct {
	Records   []domain.ChangeRecord
	Total     *int64
	Exhausted bool
}

// Puller pulls a fixed set of feeds in parallel, one batch each per round.
// Records are concatenated in feed declaration order, which keeps dedup
// tie-breaking deterministic.
type Puller struct {
	feeds  []ports.ChangeFeed
	totals []*int64
}

// NewPuller constructs a puller over the given feeds.
func NewPuller(feeds ...ports.ChangeFeed) *Puller {
	return &Puller{
		feeds:  feeds,
		totals: make([]*int64, len(feeds)),
	}
}

// Next pulls the next batch from every feed concurrently and merges the
// results. Any feed error fails the round.
func (p *Puller) Next(ctx context.Context) (Round, error) {
	batches := make([]domain.ChangeBatch, len(p.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range p.feeds {
		g.Go(func() error {
			b, err := f.NextBatch(gctx)
			if err != nil {
				return err
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Round{}, err
	}

	round := Round{Exhausted: true}
	for i, b := range batches {
		if !b.Empty() {
			round.Exhausted = false
		}
		if b.Total != nil {
			p.totals[i] = b.Total
		}
		round.Records = append(round.Records, b.Records...)
	}

	var sum int64
	known := len(p.totals) > 0
	for _, t := range p.totals {
		if t == nil {
			known = false
			break
		}
		sum += *t
	}
	if known {
		round.Total = &sum
	}
	return round, nil
}
