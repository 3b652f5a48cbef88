// Package core provides the domain models and interfaces for jobgraph.
package core

import (
	"time"
)

// ExecType distinguishes dispatch semantics for a job within its run's DAG.
type ExecType string

const (
	// ExecSource marks a job with no predecessors, dispatched at run start.
	ExecSource ExecType = "source"
	// ExecInterior marks a job with both predecessors and successors.
	ExecInterior ExecType = "interior"
	// ExecAggregation marks a fan-in job with no successors; a run is
	// complete when all of its aggregation/sink jobs are done.
	ExecAggregation ExecType = "aggregation"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusDone       JobStatus = "done"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// RunStatus represents the state of a whole run.
type RunStatus string

const (
	RunActive   RunStatus = "active"
	RunComplete RunStatus = "complete"
	RunDegraded RunStatus = "degraded"
)

// Job represents one unit of dispatchable work inside a run's DAG.
// Keyed by (RunID, JobID); edges are stored as job ID sets.
type Job struct {
	RunID        string    `gorm:"primaryKey;size:36" json:"run_id"`
	JobID        string    `gorm:"primaryKey;size:36" json:"job_id"`
	Type         string    `gorm:"index;size:255;not null" json:"type"`
	ExecType     ExecType  `gorm:"size:20;not null" json:"exec_type"`
	Status       JobStatus `gorm:"index;size:20;default:'pending'" json:"status"`
	Predecessors []string  `gorm:"serializer:json" json:"predecessors"`
	Successors   []string  `gorm:"serializer:json" json:"successors"`
	Payload      []byte    `gorm:"type:bytes" json:"payload,omitempty"`
	ResultRef    string    `gorm:"size:512" json:"result_ref,omitempty"`
	LastError    string    `gorm:"type:text" json:"last_error,omitempty"`

	// Attempt counts dispatches; a job whose deadline expires is
	// redispatched until Attempt reaches MaxAttempts.
	Attempt     int `gorm:"default:0" json:"attempt"`
	MaxAttempts int `gorm:"default:1" json:"max_attempts"`

	// Edge counts are denormalized so ready-source and sink lookups stay
	// indexable; maintained by JobStore.Insert.
	PredCount int `gorm:"index" json:"-"`
	SuccCount int `gorm:"index" json:"-"`

	DispatchedAt *time.Time `gorm:"index" json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSource reports whether the job has no predecessors.
func (j *Job) IsSource() bool {
	return len(j.Predecessors) == 0
}

// IsSink reports whether the job has no successors. Run completion is
// defined by all sinks reaching StatusDone.
func (j *Job) IsSink() bool {
	return len(j.Successors) == 0
}

// Run is the durable record of one job DAG being executed end-to-end.
type Run struct {
	RunID      string     `gorm:"primaryKey;size:36" json:"run_id"`
	Status     RunStatus  `gorm:"index;size:20;default:'active'" json:"status"`
	TotalJobs  int        `gorm:"not null" json:"total_jobs"`
	StartedAt  time.Time  `gorm:"autoCreateTime" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Active reports whether the run still needs scheduler tracking.
func (r *Run) Active() bool {
	return r.FinishedAt == nil
}
