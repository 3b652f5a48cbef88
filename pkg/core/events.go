package core

import "time"

// Event is the interface for all scheduler events.
type Event interface {
	eventMarker()
}

// RunStarted is emitted when a run's DAG has been registered and its source
// jobs dispatched.
type RunStarted struct {
	RunID     string
	JobCount  int
	Timestamp time.Time
}

func (*RunStarted) eventMarker() {}

// JobDispatched is emitted when a job wins the pending -> in_progress
// transition and is sent to the dispatch queue.
type JobDispatched struct {
	RunID     string
	JobID     string
	ExecType  ExecType
	Attempt   int
	Timestamp time.Time
}

func (*JobDispatched) eventMarker() {}

// JobCompleted is emitted when a success completion commits a job to done.
type JobCompleted struct {
	RunID            string
	JobID            string
	ProcessingTimeMS float64
	Timestamp        time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job reaches failed, either worker-reported or
// by deadline expiry.
type JobFailed struct {
	RunID     string
	JobID     string
	Reason    string
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// RunCompleted is emitted when every sink job of a run is done.
type RunCompleted struct {
	RunID     string
	Elapsed   time.Duration
	Timestamp time.Time
}

func (*RunCompleted) eventMarker() {}

// RunWentDegraded is emitted the first time a run records a failed job.
type RunWentDegraded struct {
	RunID     string
	JobID     string
	Timestamp time.Time
}

func (*RunWentDegraded) eventMarker() {}

// MessageDropped is emitted when a completion is discarded: poison messages
// that can never parse, or completions for unknown (run, job) pairs.
type MessageDropped struct {
	Reason    string
	Body      []byte
	Timestamp time.Time
}

func (*MessageDropped) eventMarker() {}
