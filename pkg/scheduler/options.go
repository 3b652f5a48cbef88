package scheduler

import (
	"log/slog"
	"time"
)

// Options holds scheduler configuration.
type Options struct {
	// MaxBatch is the most completions pulled per poll. Managed queues cap
	// this at 10; the default matches.
	MaxBatch int

	// WaitTimeout bounds the long-poll on the completion channel.
	WaitTimeout time.Duration

	// PollInterval is the pause between polls that returned nothing.
	PollInterval time.Duration

	// JobDeadline forces an in-progress job that outlives it back through
	// the dispatch path, or to failed once its attempt budget is spent.
	// Zero disables the sweep.
	JobDeadline time.Duration

	// Logger receives scheduler logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func defaultOptions() Options {
	return Options{
		MaxBatch:     10,
		WaitTimeout:  20 * time.Second,
		PollInterval: time.Second,
		JobDeadline:  15 * time.Minute,
		Logger:       slog.Default(),
	}
}

// Option configures a Scheduler.
type Option func(*Options)

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

// WithPollInterval sets the idle pause between empty polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) { o.PollInterval = d }
}

// WithJobDeadline sets the per-job execution deadline; zero disables it.
func WithJobDeadline(d time.Duration) Option {
	return func(o *Options) { o.JobDeadline = d }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
