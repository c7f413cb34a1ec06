package domain

import "time"

// IndexState is a point-in-time view of one index, derived by querying the
// backend for the most recently indexed document. It is recomputed on demand
// and never cached beyond a single request.
type IndexState struct {
	DocumentType  string
	Backup        bool
	DocumentCount int64
	LastIndexedAt *time.Time
}

// RunPhase tracks where in its lifecycle a run currently is.
type RunPhase int

const (
	PhaseIdle RunPhase = iota
	PhaseAcquiringLock
	PhaseRunning
	PhaseSwapping
	PhaseFinishing
	PhaseDone
)

func (p RunPhase) String() string {
	switch p {
	case PhaseAcquiringLock:
		return "acquiring-lock"
	case PhaseRunning:
		return "running"
	case PhaseSwapping:
		return "swapping"
	case PhaseFinishing:
		return "finishing"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// RunOutcome is the terminal disposition of a run. OutcomeNone means the run
// has not reached PhaseDone yet.
type RunOutcome int

const (
	OutcomeNone RunOutcome = iota
	OutcomeSuccess
	OutcomeCancelled
	OutcomeFailed
)

func (o RunOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// RunStatus is a snapshot of a run's lifecycle state.
type RunStatus struct {
	ID      string
	Phase   RunPhase
	Outcome RunOutcome
	Err     error
}

// RunProgress is one outward-facing progress update. Total is nil when any
// contributing feed could not report its cardinality.
type RunProgress struct {
	DocumentType string
	Description  string
	Total        *int64
	Processed    int64
	Errors       []string
	Finished     bool
}
