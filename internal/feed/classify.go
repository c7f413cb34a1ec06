package feed

import (
	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

// Classification splits one deduplicated round into the backend work sets.
type Classification struct {
	// Deletes are routed straight to backend deletion; deleted ids never
	// reach a document builder.
	Deletes []domain.ChangeRecord

	// Upserts (created/modified) go through full document resolution.
	Upserts []domain.ChangeRecord

	// Partial maps a secondary builder type to the modifications it drives,
	// routed to the backend's partial-update operation.
	Partial map[string][]domain.ChangeRecord
}

// Changed is the number of effective changes in the round after dedup.
func (c Classification) Changed() int {
	n := len(c.Deletes) + len(c.Upserts)
	for _, records := range c.Partial {
		n += len(records)
	}
	return n
}

// Classify deduplicates a round's records (latest timestamp wins per id) and
// routes each surviving change. A change is partial-eligible only when the
// backend declares partial-update support, the kind is "modified", the change
// originates from a non-primary source, and the caller requested partial
// processing for the builder type bound to that source. Everything else is
// full processing, grouped by kind.
func Classify(records []domain.ChangeRecord, cfg ports.SourceConfig, caps ports.Capabilities, partialBuilderTypes []string) Classification {
	requested := make(map[string]bool, len(partialBuilderTypes))
	for _, t := range partialBuilderTypes {
		requested[t] = true
	}

	out := Classification{Partial: make(map[string][]domain.ChangeRecord)}
	for _, r := range domain.Dedup(records) {
		if r.Kind == domain.ChangeDeleted {
			out.Deletes = append(out.Deletes, r)
			continue
		}
		if builderType, ok := partialRoute(r, cfg, caps, requested); ok {
			out.Partial[builderType] = append(out.Partial[builderType], r)
			continue
		}
		out.Upserts = append(out.Upserts, r)
	}
	return out
}

func partialRoute(r domain.ChangeRecord, cfg ports.SourceConfig, caps ports.Capabilities, requested map[string]bool) (string, bool) {
	if !caps.PartialUpdate || r.Kind != domain.ChangeModified || r.Source == cfg.Primary.Source {
		return "", false
	}
	binding, ok := cfg.SecondaryBySource(r.Source)
	if !ok || binding.Builder == nil {
		return "", false
	}
	if !requested[binding.Builder.Type()] {
		return "", false
	}
	return binding.Builder.Type(), true
}
