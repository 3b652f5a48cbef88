package worker

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aviary-sim/jobgraph/pkg/security"
)

// Options holds worker configuration.
type Options struct {
	// Concurrency is the number of goroutines executing handlers. Clamped
	// to the process-wide ceiling.
	Concurrency int

	// MaxBatch is the most dispatches pulled per poll.
	MaxBatch int

	// WaitTimeout bounds the long-poll on the dispatch channel.
	WaitTimeout time.Duration

	// PollInterval is the pause after a receive error before retrying.
	PollInterval time.Duration

	// WorkerID identifies this worker in logs. Defaults to a random UUID.
	WorkerID string

	// Logger receives worker logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func defaultOptions() Options {
	return Options{
		Concurrency:  4,
		MaxBatch:     10,
		WaitTimeout:  20 * time.Second,
		PollInterval: time.Second,
		WorkerID:     uuid.New().String(),
		Logger:       slog.Default(),
	}
}

// Option configures a Worker.
type Option func(*Options)

// WithConcurrency sets the handler goroutine count.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = security.ClampConcurrency(n)
		}
	}
}

// WithMaxBatch sets the receive batch size.
func WithMaxBatch(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxBatch = n
		}
	}
}

// WithWaitTimeout sets the long-poll bound.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *Options) { o.WaitTimeout = d }
}

// WithPollInterval sets the pause after receive errors.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) { o.PollInterval = d }
}

// WithWorkerID sets the worker identity used in logs.
func WithWorkerID(id string) Option {
	return func(o *Options) {
		if id != "" {
			o.WorkerID = id
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
