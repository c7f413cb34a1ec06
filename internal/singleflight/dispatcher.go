package singleflight

import (
	"context"
	"sync"
)

// Priority orders dispatched work. Higher priorities drain first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// WorkItem is one unit of document-apply work. Tag groups items for drain
// accounting (typically the run id that dispatched them).
type WorkItem struct {
	Tag string
	Fn  func(ctx context.Context)
}

// Dispatcher fans discrete work items out across a fixed worker pool.
// Items execute concurrently with each other and independently of the run
// lock. Outstanding work is counted per tag so an orchestrator can block
// until everything it dispatched has truly completed, not just been queued.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	cond        *sync.Cond
	queues      [3][]WorkItem
	outstanding map[string]int
	waiters     map[string][]chan struct{}
	closed      bool
}

// NewDispatcher starts a dispatcher with the given number of workers.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		ctx:         ctx,
		cancel:      cancel,
		outstanding: make(map[string]int),
		waiters:     make(map[string][]chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue queues one work item at the given priority. Items enqueued after
// Close are dropped.
func (d *Dispatcher) Enqueue(p Priority, item WorkItem) {
	if item.Fn == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queues[p] = append(d.queues[p], item)
	d.outstanding[item.Tag]++
	d.mu.Unlock()
	d.cond.Signal()
}

// Outstanding reports how many items for tag are queued or in flight.
func (d *Dispatcher) Outstanding(tag string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding[tag]
}

// Drain blocks until no work for tag remains queued or in flight, or the
// context is done.
func (d *Dispatcher) Drain(ctx context.Context, tag string) error {
	d.mu.Lock()
	if d.outstanding[tag] == 0 {
		d.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	d.waiters[tag] = append(d.waiters[tag], done)
	d.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, lets in-flight items finish, and waits for the
// workers to exit. Queued but unstarted items are discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for p := range d.queues {
		for _, item := range d.queues[p] {
			d.finishLocked(item.Tag)
		}
		d.queues[p] = nil
	}
	d.mu.Unlock()

	d.cancel()
	d.cond.Broadcast()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for !d.closed && d.queueEmptyLocked() {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		item := d.popLocked()
		d.mu.Unlock()

		item.Fn(d.ctx)

		d.mu.Lock()
		d.finishLocked(item.Tag)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) queueEmptyLocked() bool {
	for p := range d.queues {
		if len(d.queues[p]) > 0 {
			return false
		}
	}
	return true
}

func (d *Dispatcher) popLocked() WorkItem {
	for p := range d.queues {
		if len(d.queues[p]) > 0 {
			item := d.queues[p][0]
			d.queues[p] = d.queues[p][1:]
			return item
		}
	}
	return WorkItem{}
}

func (d *Dispatcher) finishLocked(tag string) {
	if d.outstanding[tag] > 0 {
		d.outstanding[tag]--
	}
	if d.outstanding[tag] == 0 {
		delete(d.outstanding, tag)
		for _, done := range d.waiters[tag] {
			close(done)
		}
		delete(d.waiters, tag)
	}
}
