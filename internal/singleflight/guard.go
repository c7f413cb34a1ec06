// Package singleflight provides the run-level exclusivity guard and the
// priority dispatcher for fan-out of document-apply work.
package singleflight

import "sync"

// Guard implements ports.RunLock in process memory. TryAcquire tests and
// immediately reports; it never waits for a holder to release. Clustered
// deployments substitute a shared lock service behind the same port.
type Guard struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewGuard constructs an empty guard.
func NewGuard() *Guard {
	return &Guard{held: make(map[string]bool)}
}

// TryAcquire takes the named lock if free and reports whether it was taken.
func (g *Guard) TryAcquire(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[name] {
		return false
	}
	g.held[name] = true
	return true
}

// Release frees the named lock. Releasing an unheld lock is a no-op.
func (g *Guard) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, name)
}
