package ports

import "context"

// SettingsStore persists small key/value settings. The pipeline uses it only
// for the batch-size default and the per-document-type indexation watermark.
type SettingsStore interface {
	// GetValue returns the stored value for key, or def when absent.
	GetValue(ctx context.Context, key, def string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}
