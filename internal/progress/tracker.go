// Package progress aggregates multi-feed, multi-document-type run progress
// into one outward-facing status stream.
package progress

import (
	"sync"
	"time"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

// Options tune one tracker's emission behaviour.
type Options struct {
	// SuppressInsignificant drops updates that carry no progress at all
	// (zero total and zero processed). Final updates always emit.
	SuppressInsignificant bool

	// MinInterval rate-limits non-final emissions. Zero disables limiting.
	MinInterval time.Duration
}

type typeProgress struct {
	total     *int64
	processed int64
}

// Tracker aggregates per-document-type counters over the life of one run and
// forwards updates to the sink. It is scoped to a single run, not shared
// process-wide, and is safe for concurrent use.
type Tracker struct {
	sink ports.ProgressSink
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	types    map[string]*typeProgress
	errors   []string
	lastEmit time.Time
}

// NewTracker constructs a tracker emitting to sink. A nil sink is valid and
// turns the tracker into a pure aggregator.
func NewTracker(sink ports.ProgressSink, opts Options) *Tracker {
	return &Tracker{
		sink:  sink,
		opts:  opts,
		now:   time.Now,
		types: make(map[string]*typeProgress),
	}
}

// Update records a progress update and forwards it to the sink unless
// suppressed. Finished updates always emit.
func (t *Tracker) Update(p domain.RunProgress) {
	t.mu.Lock()
	tp, ok := t.types[p.DocumentType]
	if !ok {
		tp = &typeProgress{}
		t.types[p.DocumentType] = tp
	}
	tp.total = p.Total
	if p.Processed > tp.processed {
		tp.processed = p.Processed
	}
	t.errors = append(t.errors, p.Errors...)

	emit := true
	switch {
	case p.Finished:
		// always emitted
	case t.opts.SuppressInsignificant && p.Processed == 0 && (p.Total == nil || *p.Total == 0):
		emit = false
	case t.opts.MinInterval > 0 && t.now().Sub(t.lastEmit) < t.opts.MinInterval:
		emit = false
	}
	if emit {
		t.lastEmit = t.now()
	}
	t.mu.Unlock()

	if emit && t.sink != nil {
		t.sink.Send(p)
	}
}

// Error accumulates a run-level error message.
func (t *Tracker) Error(msg string) {
	t.mu.Lock()
	t.errors = append(t.errors, msg)
	t.mu.Unlock()
}

// OverallPercent reports run completion across all document types. It is
// known only when every contributing type has reported a total.
func (t *Tracker) OverallPercent() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total, processed int64
	for _, tp := range t.types {
		if tp.total == nil {
			return 0, false
		}
		total += *tp.total
		processed += tp.processed
	}
	if total == 0 {
		return 100, len(t.types) > 0
	}
	pct := float64(processed) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// TypeSummary returns the latest known total and cumulative processed count
// for one document type.
func (t *Tracker) TypeSummary(documentType string) (total *int64, processed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp, ok := t.types[documentType]
	if !ok {
		return nil, 0
	}
	return tp.total, tp.processed
}

// Summary is the final aggregate of one run.
type Summary struct {
	Total      *int64
	Processed  int64
	ErrorCount int
	Errors     []string
}

// Summary snapshots the tracker's aggregate counters.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		ErrorCount: len(t.errors),
		Errors:     append([]string(nil), t.errors...),
	}
	var total int64
	known := true
	for _, tp := range t.types {
		s.Processed += tp.processed
		if tp.total == nil {
			known = false
			continue
		}
		total += *tp.total
	}
	if known && len(t.types) > 0 {
		s.Total = &total
	}
	return s
}
