package domain

import "time"

// ChangeKind classifies an entry in a source's change log.
type ChangeKind int

const (
	ChangeUnknown ChangeKind = iota
	ChangeCreated
	ChangeModified
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ParseChangeKind maps the wire representation of a change kind back to its
// enum value. Unrecognised input maps to ChangeUnknown.
func ParseChangeKind(s string) ChangeKind {
	switch s {
	case "created":
		return ChangeCreated
	case "modified":
		return ChangeModified
	case "deleted":
		return ChangeDeleted
	default:
		return ChangeUnknown
	}
}

// ChangeRecord is a single change to one document observed in a source's
// change log. Source identifies the originating source reference and decides
// which builders apply downstream.
type ChangeRecord struct {
	ID        string
	Kind      ChangeKind
	Timestamp time.Time
	Source    string
}

// ChangeBatch is one bounded page of change records pulled from a feed.
// A nil Total means the feed cannot report its cardinality; progress is then
// reported as counts only.
type ChangeBatch struct {
	Records []ChangeRecord
	Total   *int64
}

// Empty reports whether the batch carries no records, which signals feed
// exhaustion.
func (b ChangeBatch) Empty() bool { return len(b.Records) == 0 }

// Dedup collapses records sharing a document id down to the single record
// with the latest timestamp, regardless of kind: a later "modified" overrides
// an earlier "deleted" for the same id. On equal timestamps the record seen
// later in the input wins. Surviving records keep the first-seen order of
// their ids. Correctness depends on timestamps being comparable across all
// sources; a stale delete losing to a newer modify is intended behaviour.
func Dedup(records []ChangeRecord) []ChangeRecord {
	if len(records) < 2 {
		return records
	}
	out := make([]ChangeRecord, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		i, seen := pos[r.ID]
		if !seen {
			pos[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		if !r.Timestamp.Before(out[i].Timestamp) {
			out[i] = r
		}
	}
	return out
}
