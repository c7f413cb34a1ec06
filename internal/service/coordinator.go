// Package service contains the indexing coordinator: it admits runs through
// the cluster-wide single-flight guard, drives change feeds round by round,
// resolves and merges documents, invokes backend operations and aggregates
// progress and per-document outcomes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/feed"
	"github.com/nimafallahian/go-indexsync/internal/ports"
	"github.com/nimafallahian/go-indexsync/internal/progress"
	"github.com/nimafallahian/go-indexsync/internal/resolve"
	"github.com/nimafallahian/go-indexsync/internal/singleflight"
)

// ErrAlreadyRunning reports that another run holds the cluster-wide run lock.
// It is a terminal admission failure, not a backend or data error, and is not
// retried automatically.
var ErrAlreadyRunning = errors.New("an indexing run is already in progress")

// Settings keys owned by the pipeline.
const (
	settingBatchSize       = "indexing.batch-size"
	settingWatermarkPrefix = "indexing.watermark."
)

// Params wires a Coordinator.
type Params struct {
	Backend    ports.SearchBackend
	Configs    []ports.SourceConfig
	ChangeLog  ports.ChangeLog
	Settings   ports.SettingsStore
	Lock       ports.RunLock
	Sink       ports.ProgressSink
	Dispatcher *singleflight.Dispatcher
	Logger     *slog.Logger

	// LockName names the cluster-wide run lock.
	LockName string

	// DefaultBatchSize is the fallback when the settings store carries no
	// batch-size override.
	DefaultBatchSize int

	Progress progress.Options
}

// Coordinator orchestrates indexing runs for all configured document types.
// The run lock is the only mutable shared resource it manages itself; backend
// index state is externally owned.
type Coordinator struct {
	backend    ports.SearchBackend
	caps       ports.Capabilities
	configs    []ports.SourceConfig
	changeLog  ports.ChangeLog
	settings   ports.SettingsStore
	lock       ports.RunLock
	sink       ports.ProgressSink
	dispatcher *singleflight.Dispatcher
	logger     *slog.Logger

	lockName     string
	defaultBatch int
	progressOpts progress.Options

	mu      sync.Mutex
	current *RunHandle
}

// NewCoordinator constructs a Coordinator. Backend capabilities are probed
// once here and never re-inspected per call.
func NewCoordinator(p Params) (*Coordinator, error) {
	if p.Backend == nil {
		return nil, fmt.Errorf("backend must not be nil")
	}
	if p.Lock == nil {
		return nil, fmt.Errorf("run lock must not be nil")
	}
	if p.Settings == nil {
		return nil, fmt.Errorf("settings store must not be nil")
	}
	if p.LockName == "" {
		p.LockName = "indexing-run"
	}
	if p.DefaultBatchSize < 1 {
		p.DefaultBatchSize = 500
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Coordinator{
		backend:      p.Backend,
		caps:         p.Backend.Capabilities(),
		configs:      p.Configs,
		changeLog:    p.ChangeLog,
		settings:     p.Settings,
		lock:         p.Lock,
		sink:         p.Sink,
		dispatcher:   p.Dispatcher,
		logger:       p.Logger,
		lockName:     p.LockName,
		defaultBatch: p.DefaultBatchSize,
		progressOpts: p.Progress,
	}, nil
}

// StartRun admits a run for the given options or fails immediately. When the
// run lock is already held the returned handle is terminal with
// ErrAlreadyRunning and no backend interaction happens. Admission never
// blocks waiting for the lock.
func (c *Coordinator) StartRun(_ context.Context, opts ...domain.IndexingOptions) (*RunHandle, error) {
	h := newRunHandle()
	if len(opts) == 0 {
		err := fmt.Errorf("%w: at least one options set is required", domain.ErrValidation)
		h.finish(domain.OutcomeFailed, err)
		return h, err
	}

	h.setPhase(domain.PhaseAcquiringLock)
	if !c.lock.TryAcquire(c.lockName) {
		h.finish(domain.OutcomeFailed, ErrAlreadyRunning)
		return h, ErrAlreadyRunning
	}

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()

	go c.run(h, opts)
	return h, nil
}

// CancelRun requests cooperative cancellation of the currently admitted run,
// if any. The in-flight round always finishes first.
func (c *Coordinator) CancelRun() {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func (c *Coordinator) run(h *RunHandle, opts []domain.IndexingOptions) {
	tracker := progress.NewTracker(c.sink, c.progressOpts)

	var (
		cancelled bool
		err       error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("indexing run panicked: %v", r)
			}
		}()
		cancelled, err = c.execute(h, tracker, opts)
	}()

	c.lock.Release(c.lockName)
	c.mu.Lock()
	if c.current == h {
		c.current = nil
	}
	c.mu.Unlock()

	outcome := domain.OutcomeSuccess
	switch {
	case err != nil:
		outcome = domain.OutcomeFailed
		tracker.Error(err.Error())
		c.logger.Error("indexing run failed", "run_id", h.ID(), "error", err)
	case cancelled:
		outcome = domain.OutcomeCancelled
		c.logger.Info("indexing run cancelled", "run_id", h.ID())
	default:
		result := h.Result()
		c.logger.Info("indexing run finished", "run_id", h.ID(),
			"succeeded", result.Succeeded(), "failed", result.Failed())
	}

	for _, opt := range opts {
		total, processed := tracker.TypeSummary(opt.DocumentType)
		tracker.Update(domain.RunProgress{
			DocumentType: opt.DocumentType,
			Description:  fmt.Sprintf("indexing %s: %s", opt.DocumentType, outcome),
			Total:        total,
			Processed:    processed,
			Finished:     true,
		})
	}

	summary := tracker.Summary()
	c.logger.Info("indexing run summary", "run_id", h.ID(),
		"processed", summary.Processed, "errors", summary.ErrorCount)

	h.finish(outcome, err)
}

func (c *Coordinator) execute(h *RunHandle, tracker *progress.Tracker, opts []domain.IndexingOptions) (cancelled bool, err error) {
	ctx := h.ctx

	// Cancellation is checked before validation, after index deletion and at
	// the top of every round.
	if ctx.Err() != nil {
		return true, nil
	}

	defaultBatch, err := c.defaultBatchSize(ctx)
	if err != nil {
		return false, err
	}
	for i := range opts {
		if err := opts[i].Validate(defaultBatch); err != nil {
			return false, err
		}
	}

	h.setPhase(domain.PhaseRunning)
	for i := range opts {
		cancelled, err := c.runType(ctx, h, tracker, &opts[i])
		if err != nil {
			return false, err
		}
		if cancelled {
			return true, nil
		}
	}

	h.setPhase(domain.PhaseFinishing)
	if c.dispatcher != nil {
		// Rounds drain their own dispatched work, but anything still
		// outstanding under this run's tag must have truly completed before
		// the run is declared finished.
		if err := c.dispatcher.Drain(context.Background(), h.ID()); err != nil {
			return false, fmt.Errorf("drain dispatched work: %w", err)
		}
	}
	return false, nil
}

func (c *Coordinator) runType(ctx context.Context, h *RunHandle, tracker *progress.Tracker, opt *domain.IndexingOptions) (bool, error) {
	configs := c.configsFor(opt.DocumentType)
	if len(configs) == 0 {
		return false, fmt.Errorf("%w: no source configuration for document type %q", domain.ErrValidation, opt.DocumentType)
	}

	runStart := time.Now()
	watermarkKey := settingWatermarkPrefix + opt.DocumentType
	var watermarkRead string
	if len(opt.DocumentIDs) == 0 {
		v, err := c.settings.GetValue(ctx, watermarkKey, "")
		if err != nil {
			return false, fmt.Errorf("read watermark for %s: %w", opt.DocumentType, err)
		}
		watermarkRead = v
		if v != "" && opt.Since == nil && !opt.DeleteExistingIndex {
			if ts, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
				opt.Since = &ts
			} else {
				c.logger.Warn("ignoring malformed watermark", "document_type", opt.DocumentType, "value", v)
			}
		}
	}

	reindex := opt.DeleteExistingIndex
	var processed int64

	for _, cfg := range configs {
		if ctx.Err() != nil {
			return true, nil
		}
		if opt.DeleteExistingIndex {
			if err := c.backend.DeleteIndex(ctx, opt.DocumentType); err != nil {
				return false, fmt.Errorf("delete existing index for %s: %w", opt.DocumentType, err)
			}
		}
		if ctx.Err() != nil {
			return true, nil
		}

		feeds, err := c.buildFeeds(*opt, cfg)
		if err != nil {
			return false, err
		}
		puller := feed.NewPuller(feeds...)

		for {
			if ctx.Err() != nil {
				return true, nil
			}
			round, err := puller.Next(ctx)
			if err != nil {
				return false, fmt.Errorf("pull change round for %s: %w", opt.DocumentType, err)
			}
			if round.Exhausted {
				break
			}

			cls := feed.Classify(round.Records, cfg, c.caps, opt.PartialBuilderTypes)
			result, err := c.processRound(context.WithoutCancel(ctx), h.ID(), opt.DocumentType, cfg, cls, reindex)
			h.addOutcomes(result)
			if err != nil {
				return false, err
			}

			processed += int64(cls.Changed())
			tracker.Update(domain.RunProgress{
				DocumentType: opt.DocumentType,
				Description:  "indexing " + opt.DocumentType,
				Total:        round.Total,
				Processed:    processed,
				Errors:       result.Errors(),
			})
		}
	}

	if ctx.Err() != nil {
		return true, nil
	}

	if reindex && c.caps.IndexSwap {
		h.setPhase(domain.PhaseSwapping)
		if err := c.backend.SwapIndex(ctx, opt.DocumentType); err != nil {
			return false, fmt.Errorf("swap index for %s: %w", opt.DocumentType, err)
		}
		h.setPhase(domain.PhaseRunning)
	}

	// Explicit-id runs and end-bounded runs never advance the watermark: a
	// historical backfill [Since, Until) says nothing about changes after
	// Until, so moving the watermark to the run start would skip them.
	if len(opt.DocumentIDs) == 0 && opt.Until == nil {
		c.persistWatermark(ctx, opt.DocumentType, watermarkKey, watermarkRead, runStart)
	}
	return false, nil
}

// persistWatermark advances the per-type watermark to the run start time,
// but only if the stored value still equals the value read when the run
// began. A mismatch means another process advanced it concurrently, which
// run admission should make impossible; the update is skipped, not retried.
func (c *Coordinator) persistWatermark(ctx context.Context, documentType, key, read string, runStart time.Time) {
	current, err := c.settings.GetValue(ctx, key, "")
	if err != nil {
		c.logger.Warn("watermark re-read failed", "document_type", documentType, "error", err)
		return
	}
	if current != read {
		c.logger.Warn("watermark advanced concurrently, skipping update",
			"document_type", documentType, "read", read, "current", current)
		return
	}
	if err := c.settings.SetValue(ctx, key, runStart.UTC().Format(time.RFC3339Nano)); err != nil {
		c.logger.Warn("watermark update failed", "document_type", documentType, "error", err)
	}
}

func (c *Coordinator) buildFeeds(opt domain.IndexingOptions, cfg ports.SourceConfig) ([]ports.ChangeFeed, error) {
	if len(opt.DocumentIDs) > 0 {
		f, err := feed.NewStaticFeed(opt.DocumentIDs, cfg.Primary.Source, opt.BatchSize)
		if err != nil {
			return nil, err
		}
		return []ports.ChangeFeed{f}, nil
	}

	window := ports.Window{Start: opt.Since, End: opt.Until}
	primary, err := feed.NewWindowFeed(c.changeLog, cfg.Primary.Source, window, opt.BatchSize)
	if err != nil {
		return nil, err
	}
	feeds := []ports.ChangeFeed{primary}

	// Secondary feeds only attach to windowed runs. A full rebuild already
	// re-indexes every primary document once; pulling secondaries too would
	// re-index the same documents once per related source.
	if opt.Windowed() {
		for _, sec := range cfg.Secondaries {
			f, err := feed.NewWindowFeed(c.changeLog, sec.Source, window, opt.BatchSize)
			if err != nil {
				return nil, err
			}
			feeds = append(feeds, f)
		}
	}
	return feeds, nil
}

// processRound executes one round's work sets in parallel. Per-document
// failures are captured as outcomes and never abort the round; the round
// always runs to completion even when cancellation was requested mid-round.
// The returned error is non-nil only for a panic in a branch, which aborts
// the remainder of the run.
//
// With a dispatcher configured the work sets run on its worker pool, tagged
// with the run id and at low priority so explicitly dispatched apply work
// preempts rebuild rounds. Without one they run inline.
func (c *Coordinator) processRound(ctx context.Context, runID, documentType string, cfg ports.SourceConfig, cls feed.Classification, reindex bool) (*domain.IndexingResult, error) {
	var mu sync.Mutex
	result := &domain.IndexingResult{}
	add := func(outcomes ...domain.DocumentOutcome) {
		mu.Lock()
		result.Append(outcomes...)
		mu.Unlock()
	}
	merge := func(r *domain.IndexingResult) {
		mu.Lock()
		result.Merge(r)
		mu.Unlock()
	}

	var branches []func(context.Context) error

	if len(cls.Deletes) > 0 {
		ids := recordIDs(cls.Deletes)
		branches = append(branches, func(ctx context.Context) error {
			res, err := c.backend.Delete(ctx, documentType, ids)
			if err != nil {
				add(failedOutcomes(ids, domain.OpDelete, fmt.Sprintf("delete documents: %v", err))...)
				return nil
			}
			merge(res)
			return nil
		})
	}

	if len(cls.Upserts) > 0 {
		ids := recordIDs(cls.Upserts)
		branches = append(branches, func(ctx context.Context) error {
			docs, err := resolve.Documents(ctx, ids, cfg.Primary.Builder, cfg.SecondaryBuilders())
			if err != nil {
				add(failedOutcomes(ids, domain.OpIndex, fmt.Sprintf("resolve documents: %v", err))...)
				return nil
			}
			stampAll(docs)
			var res *domain.IndexingResult
			if reindex && c.caps.IndexSwap {
				res, err = c.backend.IndexToBackup(ctx, documentType, docs)
			} else {
				res, err = c.backend.Index(ctx, documentType, docs)
			}
			if err != nil {
				add(failedOutcomes(docIDs(docs), domain.OpIndex, fmt.Sprintf("index documents: %v", err))...)
				return nil
			}
			merge(res)
			return nil
		})
	}

	for builderType, records := range cls.Partial {
		builder := c.builderByType(cfg, builderType)
		ids := recordIDs(records)
		branches = append(branches, func(ctx context.Context) error {
			if builder == nil {
				add(failedOutcomes(ids, domain.OpPartial, fmt.Sprintf("no builder of type %q", builderType))...)
				return nil
			}
			docs, err := builder.GetDocuments(ctx, ids)
			if err != nil {
				add(failedOutcomes(ids, domain.OpPartial, fmt.Sprintf("resolve partial documents: %v", err))...)
				return nil
			}
			stampAll(docs)
			res, err := c.backend.IndexPartial(ctx, documentType, docs)
			if err != nil {
				add(failedOutcomes(docIDs(docs), domain.OpPartial, fmt.Sprintf("partial update: %v", err))...)
				return nil
			}
			merge(res)
			return nil
		})
	}

	contained := func(fn func() error) func() error {
		return func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("round worker panicked: %v", r)
				}
			}()
			return fn()
		}
	}

	// Branches report per-document failures as data; a branch error means a
	// contained panic.
	if c.dispatcher != nil {
		var errMu sync.Mutex
		var branchErr error
		for _, branch := range branches {
			c.dispatcher.Enqueue(singleflight.PriorityLow, singleflight.WorkItem{
				Tag: runID,
				Fn: func(context.Context) {
					if err := contained(func() error { return branch(ctx) })(); err != nil {
						errMu.Lock()
						if branchErr == nil {
							branchErr = err
						}
						errMu.Unlock()
					}
				},
			})
		}
		// The round completes only when every branch has truly finished;
		// ctx carries no cancellation here, so this waits out the round.
		if err := c.dispatcher.Drain(ctx, runID); err != nil {
			return result, err
		}
		errMu.Lock()
		defer errMu.Unlock()
		return result, branchErr
	}

	g := new(errgroup.Group)
	for _, branch := range branches {
		g.Go(contained(func() error { return branch(ctx) }))
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Coordinator) builderByType(cfg ports.SourceConfig, builderType string) ports.DocumentBuilder {
	for _, b := range cfg.SecondaryBuilders() {
		if b.Type() == builderType {
			return b
		}
	}
	return nil
}

func (c *Coordinator) configsFor(documentType string) []ports.SourceConfig {
	var out []ports.SourceConfig
	for _, cfg := range c.configs {
		if cfg.DocumentType == documentType {
			out = append(out, cfg)
		}
	}
	return out
}

func (c *Coordinator) defaultBatchSize(ctx context.Context) (int, error) {
	v, err := c.settings.GetValue(ctx, settingBatchSize, strconv.Itoa(c.defaultBatch))
	if err != nil {
		return 0, fmt.Errorf("read default batch size: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return c.defaultBatch, nil
	}
	return n, nil
}

func recordIDs(records []domain.ChangeRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func docIDs(docs []*domain.IndexDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func failedOutcomes(ids []string, op domain.Operation, msg string) []domain.DocumentOutcome {
	outcomes := make([]domain.DocumentOutcome, 0, len(ids))
	for _, id := range ids {
		outcomes = append(outcomes, domain.DocumentOutcome{ID: id, Op: op, Err: msg})
	}
	return outcomes
}

func stampAll(docs []*domain.IndexDocument) {
	now := time.Now()
	for _, d := range docs {
		d.StampIndexedAt(now)
	}
}
