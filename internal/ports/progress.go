package ports

import "github.com/nimafallahian/go-indexsync/internal/domain"

// ProgressSink receives outward-facing progress updates. Delivery is fire
// and forget; the pipeline never blocks on or retries notification delivery.
type ProgressSink interface {
	Send(update domain.RunProgress)
}
