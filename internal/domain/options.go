package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks indexing options that fail validation. Validation
// failures happen before any backend interaction.
var ErrValidation = errors.New("invalid indexing options")

// IndexingOptions describes one requested indexing pass for a document type.
type IndexingOptions struct {
	// DocumentType selects the source configurations to run. Required.
	DocumentType string

	// DeleteExistingIndex requests a full rebuild: the existing index is
	// deleted (idempotently) before indexing starts.
	DeleteExistingIndex bool

	// BatchSize bounds each feed batch. Zero means "use the configured
	// default"; after validation it is always >= 1.
	BatchSize int

	// Since/Until bound the change window [Since, Until). When Since is nil
	// and no explicit ids are given, the run seeds Since from the persisted
	// watermark for the document type.
	Since *time.Time
	Until *time.Time

	// DocumentIDs, when non-empty, replaces time-windowed feeds with a
	// synthetic in-memory feed serving exactly these ids as modifications.
	DocumentIDs []string

	// PartialBuilderTypes lists builder types for which the caller requests
	// partial processing of secondary-source modifications.
	PartialBuilderTypes []string
}

// Validate applies the configured default batch size and checks the options.
func (o *IndexingOptions) Validate(defaultBatchSize int) error {
	if o.DocumentType == "" {
		return fmt.Errorf("%w: document type is required", ErrValidation)
	}
	if o.BatchSize == 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrValidation, o.BatchSize)
	}
	return nil
}

// Windowed reports whether the options carry an explicit time window, which
// controls whether secondary-source feeds are attached.
func (o IndexingOptions) Windowed() bool {
	return o.Since != nil || o.Until != nil
}
