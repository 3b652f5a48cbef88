package core

import (
	"context"
	"time"
)

// JobStore is the durable record of every job's status and edges. The
// scheduler owns run-progress decisions; the store owns the record.
//
// TransitionStatus is the concurrency-safety primitive the whole design
// leans on: every status mutation must go through it, never through an
// unconditional overwrite.
type JobStore interface {
	// Migrate creates the necessary tables. No-op for memory stores.
	Migrate(ctx context.Context) error

	// Insert bulk-registers a run's DAG before dispatch begins. Fails with
	// ErrDuplicateJob if any (run_id, job_id) already exists.
	Insert(ctx context.Context, jobs []*Job) error

	// Get returns the job or ErrJobNotFound.
	Get(ctx context.Context, runID, jobID string) (*Job, error)

	// ListReadySources returns jobs with no predecessors still pending.
	ListReadySources(ctx context.Context, runID string) ([]*Job, error)

	// ListSuccessors returns the jobs named in the given job's successor set.
	ListSuccessors(ctx context.Context, runID, jobID string) ([]*Job, error)

	// ListSinks returns the jobs with no successors.
	ListSinks(ctx context.Context, runID string) ([]*Job, error)

	// ListJobs returns every job of the run.
	ListJobs(ctx context.Context, runID string) ([]*Job, error)

	// TransitionStatus atomically moves the job from one status to another.
	// It returns false (not an error) if the stored status no longer equals
	// from, meaning another caller already performed the transition.
	TransitionStatus(ctx context.Context, runID, jobID string, from, to JobStatus) (bool, error)

	// AllPredecessorsDone reports whether every predecessor of the job is
	// done, evaluated against a consistent read.
	AllPredecessorsDone(ctx context.Context, runID, jobID string) (bool, error)

	// RecordDispatch stamps the dispatch time and increments the attempt
	// counter. Status is not touched; that is TransitionStatus's job.
	RecordDispatch(ctx context.Context, runID, jobID string, at time.Time) error

	// RecordResult stores the worker-reported outcome metadata.
	RecordResult(ctx context.Context, runID, jobID, resultRef, errMsg string, at time.Time) error

	// CountByStatus returns how many jobs of the run hold the status.
	CountByStatus(ctx context.Context, runID string, status JobStatus) (int64, error)

	// ListInProgressBefore returns in-progress jobs dispatched before the
	// cutoff, for the deadline sweep.
	ListInProgressBefore(ctx context.Context, cutoff time.Time) ([]*Job, error)
}

// RunRegistry tracks which runs are still being driven. It follows the same
// compare-and-swap discipline as the JobStore so two completion handlers in
// the same batch cannot both retire a run.
//
// The gorm-backed JobStore doubles as a RunRegistry, letting a restarted
// scheduler resume without losing track of active runs.
type RunRegistry interface {
	// Register adds a run in its initial state, failing with
	// ErrDuplicateRun if the run ID is already present.
	Register(ctx context.Context, run *Run) error

	// GetRun returns the run or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// TransitionRun atomically moves the run between statuses, returning
	// false if the stored status no longer equals from.
	TransitionRun(ctx context.Context, runID string, from, to RunStatus) (bool, error)

	// FinishRun stamps the run as retired; it no longer counts as active.
	FinishRun(ctx context.Context, runID string, at time.Time) error

	// ListActiveRuns returns runs not yet retired.
	ListActiveRuns(ctx context.Context) ([]*Run, error)

	// ListRuns returns every known run, newest first.
	ListRuns(ctx context.Context) ([]*Run, error)
}

// Queue is one one-directional at-least-once message channel. Receive does
// not delete; deletion is a separate acknowledgment performed only after the
// consumer commits the corresponding state transition.
type Queue interface {
	// Send enqueues one message body.
	Send(ctx context.Context, body []byte) error

	// Receive long-polls for up to max messages, waiting at most wait.
	// Returns an empty slice on timeout; that is not an error.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)

	// Delete acknowledges a delivery. Deleting an already-deleted handle is
	// a no-op, not an error.
	Delete(ctx context.Context, handle string) error
}
