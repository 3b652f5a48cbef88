// Command worker pulls dispatched jobs, runs the delay-modelling handlers,
// and reports completions. Workers are stateless; run as many as the
// dispatch queue can feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aviary-sim/jobgraph/pkg/blob"
	"github.com/aviary-sim/jobgraph/pkg/channel"
	"github.com/aviary-sim/jobgraph/pkg/config"
	"github.com/aviary-sim/jobgraph/pkg/delay"
	"github.com/aviary-sim/jobgraph/pkg/worker"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		dbDSN       = flag.String("db", "", "sqlite DSN (overrides config)")
		blobDir     = flag.String("blobs", "", "blob store directory (overrides config)")
		concurrency = flag.Int("concurrency", 0, "handler goroutines (overrides config)")
		workerID    = flag.String("worker-id", "", "worker identity for logs (default: generated)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *dbDSN != "" {
		cfg.DatabaseDSN = *dbDSN
	}
	if *blobDir != "" {
		cfg.BlobDir = *blobDir
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}

	logger := newLogger(cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *workerID); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, workerID string) error {
	db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabaseDSN, err)
	}

	var dlqOpt []channel.GormQueueOption
	if cfg.DeadLetterQueue != "" {
		dlqOpt = append(dlqOpt, channel.WithGormDeadLetter(cfg.DeadLetterQueue))
	}
	dispatchQ := channel.NewGormQueue(db, cfg.DispatchQueue, dlqOpt...)
	completionQ := channel.NewGormQueue(db, cfg.CompletionQueue, dlqOpt...)
	if err := dispatchQ.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate queues: %w", err)
	}

	blobs, err := blob.NewDiskStore(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob store %s: %w", cfg.BlobDir, err)
	}

	ch := channel.New(dispatchQ, completionQ,
		channel.WithBlobStore(blobs),
		channel.WithLogger(logger))

	opts := []worker.Option{
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithMaxBatch(cfg.MaxBatch),
		worker.WithWaitTimeout(cfg.WaitTimeout.Std()),
		worker.WithLogger(logger),
	}
	if workerID != "" {
		opts = append(opts, worker.WithWorkerID(workerID))
	}
	w := worker.New(ch, opts...)
	delay.RegisterHandlers(w, blobs)

	return w.Start(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
