package domain

// Operation is the backend operation attempted for a document.
type Operation int

const (
	OpIndex Operation = iota
	OpPartial
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpPartial:
		return "partial"
	case OpDelete:
		return "delete"
	default:
		return "index"
	}
}

// DocumentOutcome is the result of one backend operation for one document.
// Failures are data, not control flow.
type DocumentOutcome struct {
	ID  string
	Op  Operation
	Err string
}

// Failed reports whether the operation failed for this document.
func (o DocumentOutcome) Failed() bool { return o.Err != "" }

// IndexingResult aggregates per-document outcomes over a run. Individual
// document failures never abort a round.
type IndexingResult struct {
	Outcomes []DocumentOutcome
}

// Append adds outcomes to the result.
func (r *IndexingResult) Append(outcomes ...DocumentOutcome) {
	r.Outcomes = append(r.Outcomes, outcomes...)
}

// Merge folds another result into r.
func (r *IndexingResult) Merge(other *IndexingResult) {
	if other == nil {
		return
	}
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
}

// Succeeded counts outcomes without an error.
func (r *IndexingResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Failed() {
			n++
		}
	}
	return n
}

// Failed counts outcomes carrying an error.
func (r *IndexingResult) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Errors returns the error messages of all failed outcomes.
func (r *IndexingResult) Errors() []string {
	var msgs []string
	for _, o := range r.Outcomes {
		if o.Failed() {
			msgs = append(msgs, o.Err)
		}
	}
	return msgs
}
