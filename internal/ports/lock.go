package ports

// RunLock guards the run level of indexing across the whole cluster: exactly
// one named lock is held by at most one run at a time. TryAcquire never
// blocks; it tests and immediately reports.
type RunLock interface {
	TryAcquire(name string) bool
	Release(name string)
}
