package progress

import (
	"log/slog"

	"github.com/nimafallahian/go-indexsync/internal/domain"
)

// LogSink forwards progress updates to a structured logger. It is the default
// sink when no notification transport is wired.
type LogSink struct {
	Logger *slog.Logger
}

// Send implements ports.ProgressSink.
func (s LogSink) Send(update domain.RunProgress) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"document_type", update.DocumentType,
		"processed", update.Processed,
		"finished", update.Finished,
	}
	if update.Total != nil {
		attrs = append(attrs, "total", *update.Total)
	}
	if len(update.Errors) > 0 {
		attrs = append(attrs, "errors", len(update.Errors))
	}
	logger.Info(update.Description, attrs...)
}
