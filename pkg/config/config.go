// Package config loads deployment configuration for the scheduler and
// worker binaries from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aviary-sim/jobgraph/pkg/security"
)

// Duration wraps time.Duration for YAML fields like "20s" or "15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds everything the binaries need to run.
type Config struct {
	// DatabaseDSN is the sqlite DSN backing the job store, run registry,
	// and durable queues.
	DatabaseDSN string `yaml:"database_dsn"`

	// SequencesDir holds the daily sequence definition files.
	SequencesDir string `yaml:"sequences_dir"`

	// BlobDir is the root of the on-disk blob store.
	BlobDir string `yaml:"blob_dir"`

	// DispatchQueue and CompletionQueue name the two one-way queues.
	DispatchQueue   string `yaml:"dispatch_queue"`
	CompletionQueue string `yaml:"completion_queue"`

	// DeadLetterQueue receives messages past the redrive limit. Empty
	// disables dead-lettering.
	DeadLetterQueue string `yaml:"dead_letter_queue"`

	// MaxBatch is the receive batch size for both scheduler and worker.
	MaxBatch int `yaml:"max_batch"`

	// WaitTimeout bounds queue long-polls.
	WaitTimeout Duration `yaml:"wait_timeout"`

	// PollInterval is the scheduler's pause between empty polls.
	PollInterval Duration `yaml:"poll_interval"`

	// JobDeadline is the per-job execution deadline; zero disables it.
	JobDeadline Duration `yaml:"job_deadline"`

	// MaxIterations bounds the scheduler loop; zero runs until quiescent.
	MaxIterations int `yaml:"max_iterations"`

	// ListenAddr serves the status API when non-empty.
	ListenAddr string `yaml:"listen_addr"`

	// Concurrency is the worker's handler goroutine count.
	Concurrency int `yaml:"concurrency"`

	// Schedule starts a run on a recurrence when non-empty. Accepts
	// "every=<duration>", "daily=HH:MM", or a cron expression.
	Schedule string `yaml:"schedule"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DatabaseDSN:     "jobgraph.db",
		SequencesDir:    "sequences",
		BlobDir:         "blobs",
		DispatchQueue:   "dispatch",
		CompletionQueue: "completion",
		DeadLetterQueue: "dead-letter",
		MaxBatch:        10,
		WaitTimeout:     Duration(20 * time.Second),
		PollInterval:    Duration(time.Second),
		JobDeadline:     Duration(15 * time.Minute),
		Concurrency:     4,
		LogLevel:        "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the binaries cannot run with.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("config: database_dsn must not be empty")
	}
	if c.DispatchQueue == "" || c.CompletionQueue == "" {
		return fmt.Errorf("config: dispatch_queue and completion_queue must not be empty")
	}
	if c.DispatchQueue == c.CompletionQueue {
		return fmt.Errorf("config: dispatch_queue and completion_queue must differ")
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("config: max_batch must be positive")
	}
	if c.WaitTimeout < 0 || c.PollInterval < 0 || c.JobDeadline < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	c.Concurrency = security.ClampConcurrency(c.Concurrency)
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog's levels.
func (c *Config) SlogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}
