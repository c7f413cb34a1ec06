package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	elasticclient "github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/sync/errgroup"

	esadapter "github.com/nimafallahian/go-indexsync/internal/adapters/es"
	kafkaadapter "github.com/nimafallahian/go-indexsync/internal/adapters/kafka"
	settingsadapter "github.com/nimafallahian/go-indexsync/internal/adapters/settings"
	"github.com/nimafallahian/go-indexsync/internal/config"
	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
	"github.com/nimafallahian/go-indexsync/internal/progress"
	"github.com/nimafallahian/go-indexsync/internal/service"
	"github.com/nimafallahian/go-indexsync/internal/singleflight"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	esClient, err := elasticclient.NewClient(elasticclient.Config{
		Addresses: cfg.ElasticURLs,
	})
	if err != nil {
		logger.Error("failed to create elasticsearch client", "error", err)
		os.Exit(1)
	}

	backend, err := esadapter.NewBackend(esClient, cfg.ElasticPrefix)
	if err != nil {
		logger.Error("failed to create elasticsearch backend", "error", err)
		os.Exit(1)
	}

	changeLog, err := kafkaadapter.NewChangeLog(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
	if err != nil {
		logger.Error("failed to create kafka change log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := changeLog.Close(); cerr != nil {
			logger.Error("failed to close kafka change log", "error", cerr)
		}
	}()

	// Document builders are registered per deployment; without one, a
	// configuration indexes bare id documents and propagates deletions.
	configs := make([]ports.SourceConfig, 0, len(cfg.DocumentTypes))
	for _, documentType := range cfg.DocumentTypes {
		configs = append(configs, ports.SourceConfig{
			DocumentType: documentType,
			Primary:      ports.SourceBinding{Source: documentType},
		})
	}

	dispatcher := singleflight.NewDispatcher(cfg.WorkerCount)
	defer dispatcher.Close()

	coordinator, err := service.NewCoordinator(service.Params{
		Backend:          backend,
		Configs:          configs,
		ChangeLog:        changeLog,
		Settings:         settingsadapter.NewMemory(nil),
		Lock:             singleflight.NewGuard(),
		Sink:             progress.LogSink{Logger: logger},
		Dispatcher:       dispatcher,
		Logger:           logger,
		LockName:         cfg.RunLockName,
		DefaultBatchSize: cfg.BatchSize,
		Progress: progress.Options{
			SuppressInsignificant: cfg.SuppressInsignificantProgress,
			MinInterval:           cfg.ProgressInterval,
		},
	})
	if err != nil {
		logger.Error("failed to create coordinator", "error", err)
		os.Exit(1)
	}

	opts := make([]domain.IndexingOptions, 0, len(cfg.DocumentTypes))
	for _, documentType := range cfg.DocumentTypes {
		opts = append(opts, domain.IndexingOptions{DocumentType: documentType})
	}
	if len(opts) == 0 {
		logger.Error("no document types configured")
		os.Exit(1)
	}

	handle, err := coordinator.StartRun(ctx, opts...)
	if err != nil {
		logger.Error("failed to start indexing run", "error", err)
		os.Exit(1)
	}
	logger.Info("indexing run started", "run_id", handle.ID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			coordinator.CancelRun()
			<-handle.Done()
		case <-handle.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service terminated with error", "error", err)
	}

	status := handle.Status()
	logger.Info("indexing run done", "run_id", handle.ID(), "outcome", status.Outcome.String())
	if status.Outcome == domain.OutcomeFailed {
		os.Exit(1)
	}
}
