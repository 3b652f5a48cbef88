// Command scheduler drives job-graph runs: it builds the day's DAG from
// sequence definitions, dispatches jobs over the durable queues, and loops
// on completions until every run is retired.
//
// Exit code 0 means clean quiescence (or an exhausted iteration budget);
// any store or transport failure exits non-zero.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aviary-sim/jobgraph/pkg/api"
	"github.com/aviary-sim/jobgraph/pkg/blob"
	"github.com/aviary-sim/jobgraph/pkg/channel"
	"github.com/aviary-sim/jobgraph/pkg/config"
	"github.com/aviary-sim/jobgraph/pkg/rundef"
	"github.com/aviary-sim/jobgraph/pkg/schedule"
	"github.com/aviary-sim/jobgraph/pkg/scheduler"
	"github.com/aviary-sim/jobgraph/pkg/storage"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to YAML config file")
		dbDSN         = flag.String("db", "", "sqlite DSN (overrides config)")
		sequencesDir  = flag.String("sequences", "", "sequence definitions directory (overrides config)")
		blobDir       = flag.String("blobs", "", "blob store directory (overrides config)")
		runID         = flag.String("run-id", "", "ID for the new run (default: generated)")
		resume        = flag.Bool("resume", false, "track existing active runs without starting a new one")
		maxIterations = flag.Int("max-iterations", -1, "loop iteration bound, 0 = run until quiescent (overrides config)")
		listenAddr    = flag.String("listen", "", "status API listen address (overrides config)")
		scheduleSpec  = flag.String("schedule", "", "recurrence: every=<dur>, daily=HH:MM, or cron (overrides config)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	applyOverride(&cfg.DatabaseDSN, *dbDSN)
	applyOverride(&cfg.SequencesDir, *sequencesDir)
	applyOverride(&cfg.BlobDir, *blobDir)
	applyOverride(&cfg.ListenAddr, *listenAddr)
	applyOverride(&cfg.Schedule, *scheduleSpec)
	if *maxIterations >= 0 {
		cfg.MaxIterations = *maxIterations
	}

	logger := newLogger(cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *runID, *resume); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, runID string, resume bool) error {
	db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabaseDSN, err)
	}

	store := storage.NewGormStore(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate job store: %w", err)
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

	sched := scheduler.New(store, store, ch,
		scheduler.WithMaxBatch(cfg.MaxBatch),
		scheduler.WithWaitTimeout(cfg.WaitTimeout.Std()),
		scheduler.WithPollInterval(cfg.PollInterval.Std()),
		scheduler.WithJobDeadline(cfg.JobDeadline.Std()),
		scheduler.WithLogger(logger))

	if cfg.ListenAddr != "" {
		srv := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.New(store, store, logger).Router(),
		}
		go func() {
			logger.Info("status API listening", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	startRun := func(ctx context.Context, id string, at time.Time) error {
		if id == "" {
			id = fmt.Sprintf("daily-%s-%s", at.UTC().Format("2006-01-02"), uuid.New().String()[:8])
		}
		seqs, err := rundef.LoadDir(cfg.SequencesDir, logger)
		if err != nil {
			return err
		}
		if len(seqs) == 0 {
			return fmt.Errorf("no valid sequences in %s", cfg.SequencesDir)
		}
		jobs, err := rundef.BuildRun(id, seqs)
		if err != nil {
			return err
		}
		return sched.StartRun(ctx, id, jobs)
	}

	if !resume {
		if err := startRun(ctx, runID, time.Now()); err != nil {
			return err
		}
	}

	if cfg.Schedule == "" {
		return sched.Run(ctx, cfg.MaxIterations)
	}

	recurrence, err := schedule.Parse(cfg.Schedule)
	if err != nil {
		return err
	}
	go func() {
		// Recurring runs always get generated IDs.
		_ = schedule.Loop(ctx, recurrence, logger, func(ctx context.Context, at time.Time) error {
			return startRun(ctx, "", at)
		})
	}()

	// With a recurrence the process stays up across quiescent gaps between
	// scheduled runs.
	for {
		if err := sched.Run(ctx, cfg.MaxIterations); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PollInterval.Std()):
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func applyOverride(dst *string, v string) {
	if v != "" {
		*dst = v
	}
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
