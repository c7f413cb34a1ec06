package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nimafallahian/go-indexsync/internal/domain"
)

// RunHandle tracks one indexing run. It is returned by StartRun whether the
// run was admitted or failed immediately, and is usable for status inspection
// and cooperative cancellation.
type RunHandle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	phase   domain.RunPhase
	outcome domain.RunOutcome
	err     error
	result  domain.IndexingResult
}

func newRunHandle() *RunHandle {
	// The run outlives the StartRun caller's request scope, so its context
	// is rooted here; cancellation goes through Cancel.
	ctx, cancel := context.WithCancel(context.Background())
	return &RunHandle{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID is the unique identifier of this run.
func (h *RunHandle) ID() string { return h.id }

// Done is closed when the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Cancel requests cooperative cancellation. The in-flight round finishes
// before the run ends.
func (h *RunHandle) Cancel() { h.cancel() }

// Status snapshots the run's lifecycle state.
func (h *RunHandle) Status() domain.RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.RunStatus{
		ID:      h.id,
		Phase:   h.phase,
		Outcome: h.outcome,
		Err:     h.err,
	}
}

// Result returns a copy of the per-document outcomes accumulated so far.
func (h *RunHandle) Result() domain.IndexingResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.IndexingResult{
		Outcomes: append([]domain.DocumentOutcome(nil), h.result.Outcomes...),
	}
}

func (h *RunHandle) setPhase(p domain.RunPhase) {
	h.mu.Lock()
	h.phase = p
	h.mu.Unlock()
}

func (h *RunHandle) addOutcomes(r *domain.IndexingResult) {
	if r == nil {
		return
	}
	h.mu.Lock()
	h.result.Merge(r)
	h.mu.Unlock()
}

func (h *RunHandle) finish(outcome domain.RunOutcome, err error) {
	h.mu.Lock()
	h.phase = domain.PhaseDone
	h.outcome = outcome
	h.err = err
	h.mu.Unlock()
	h.cancel()
	close(h.done)
}
