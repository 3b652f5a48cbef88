// Package jobgraph schedules DAGs of jobs across stateless workers.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Create the store and channel
//	db, _ := gorm.Open(sqlite.Open("jobgraph.db"), &gorm.Config{})
//	store := jobgraph.NewGormStore(db)
//	store.Migrate(context.Background())
//	ch := jobgraph.NewChannel(dispatchQueue, completionQueue)
//
//	// Start a run
//	sched := jobgraph.NewScheduler(store, store, ch)
//	sched.StartRun(ctx, "run-1", jobs)
//	sched.Run(ctx, 0)
//
//	// Run a worker elsewhere
//	w := jobgraph.NewWorker(ch)
//	w.Register("route-delays", handler)
//	w.Start(ctx)
package jobgraph

import (
	"gorm.io/gorm"

	"github.com/aviary-sim/jobgraph/pkg/channel"
	"github.com/aviary-sim/jobgraph/pkg/core"
	"github.com/aviary-sim/jobgraph/pkg/scheduler"
	"github.com/aviary-sim/jobgraph/pkg/security"
	"github.com/aviary-sim/jobgraph/pkg/storage"
	"github.com/aviary-sim/jobgraph/pkg/worker"
)

// Type aliases for the public API
type (
	// Job represents one unit of dispatchable work inside a run's DAG.
	Job = core.Job

	// Run is the durable record of one job DAG being executed.
	Run = core.Run

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// RunStatus represents the state of a whole run.
	RunStatus = core.RunStatus

	// ExecType distinguishes dispatch semantics within the DAG.
	ExecType = core.ExecType

	// JobStore defines the persistence layer for jobs.
	JobStore = core.JobStore

	// RunRegistry tracks runs from start to retirement.
	RunRegistry = core.RunRegistry

	// Queue is the minimal at-least-once queue contract.
	Queue = core.Queue

	// DispatchMessage is the wire format sent to workers.
	DispatchMessage = core.DispatchMessage

	// CompletionMessage is the wire format reported by workers.
	CompletionMessage = core.CompletionMessage

	// Event is the interface for all scheduler events.
	Event = core.Event

	// Scheduler orchestrates job-graph execution.
	Scheduler = scheduler.Scheduler

	// Worker pulls dispatches and runs registered handlers.
	Worker = worker.Worker

	// Handler executes one job type.
	Handler = worker.Handler

	// Task is the unit of work a Handler receives.
	Task = worker.Task

	// Channel pairs the dispatch and completion queues.
	Channel = channel.Channel

	// GormStore implements JobStore and RunRegistry using GORM.
	GormStore = storage.GormStore

	// MemoryStore implements JobStore in process memory.
	MemoryStore = storage.MemoryStore

	// MemoryRegistry implements RunRegistry in process memory.
	MemoryRegistry = scheduler.MemoryRegistry
)

// Job status constants
const (
	StatusPending    = core.StatusPending
	StatusInProgress = core.StatusInProgress
	StatusDone       = core.StatusDone
	StatusFailed     = core.StatusFailed
)

// Run status constants
const (
	RunActive   = core.RunActive
	RunComplete = core.RunComplete
	RunDegraded = core.RunDegraded
)

// Exec type constants
const (
	ExecSource      = core.ExecSource
	ExecInterior    = core.ExecInterior
	ExecAggregation = core.ExecAggregation
)

// Security limits
const (
	MaxJobTypeNameLength  = security.MaxJobTypeNameLength
	MaxInlinePayloadSize  = security.MaxInlinePayloadSize
	MaxAttempts           = security.MaxAttempts
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrDuplicateJob     = core.ErrDuplicateJob
	ErrJobNotFound      = core.ErrJobNotFound
	ErrRunNotFound      = core.ErrRunNotFound
	ErrDuplicateRun     = core.ErrDuplicateRun
	ErrEmptyRun         = core.ErrEmptyRun
	ErrGraphCycle       = core.ErrGraphCycle
	ErrDanglingEdge     = core.ErrDanglingEdge
	ErrMalformedMessage = core.ErrMalformedMessage
	ErrPayloadTooLarge  = core.ErrPayloadTooLarge
	ErrInvalidJobType   = core.ErrInvalidJobType
	ErrNoHandler        = core.ErrNoHandler
)

// NewGormStore creates a GORM-backed job store and run registry.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewMemoryStore creates an in-memory job store.
func NewMemoryStore() *MemoryStore {
	return storage.NewMemoryStore()
}

// NewMemoryRegistry creates an in-memory run registry.
func NewMemoryRegistry() *MemoryRegistry {
	return scheduler.NewMemoryRegistry()
}

// NewChannel creates a Channel over the two queues.
func NewChannel(dispatch, completion Queue, opts ...channel.Option) *Channel {
	return channel.New(dispatch, completion, opts...)
}

// NewScheduler creates a Scheduler over the given store, registry, and channel.
func NewScheduler(store JobStore, runs RunRegistry, ch *Channel, opts ...scheduler.Option) *Scheduler {
	return scheduler.New(store, runs, ch, opts...)
}

// NewWorker creates a Worker over the given channel.
func NewWorker(ch *Channel, opts ...worker.Option) *Worker {
	return worker.New(ch, opts...)
}

// ValidateGraph checks a run's jobs for duplicates, dangling or mismatched
// edges, and cycles.
func ValidateGraph(jobs []*Job) error {
	return core.ValidateGraph(jobs)
}

// ValidateJobTypeName validates a job type name.
func ValidateJobTypeName(name string) error {
	return security.ValidateJobTypeName(name)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}
