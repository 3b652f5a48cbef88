package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// DispatchMessage is the wire format sent on the dispatch queue. Fields and
// meaning are fixed by contract with the workers.
type DispatchMessage struct {
	RunID    string   `json:"run_id"`
	JobID    string   `json:"job_id"`
	Type     string   `json:"type"`
	ExecType ExecType `json:"exec_type"`

	// PredecessorRefs carries the result references of every predecessor,
	// resolved by the worker independently of the scheduler.
	PredecessorRefs []string `json:"predecessor_refs"`

	// Payload holds small inline arguments. Payloads above the inline
	// limit are offloaded and carried by PayloadRef instead.
	Payload    json.RawMessage `json:"payload,omitempty"`
	PayloadRef string          `json:"payload_ref,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// CompletionStatus is the worker-reported outcome of a job.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionError   CompletionStatus = "error"
)

// CompletionMessage is produced by a worker exactly once per processed
// dispatch; the transport may still deliver it more than once.
type CompletionMessage struct {
	RunID            string           `json:"run_id"`
	JobID            string           `json:"job_id"`
	ExecType         ExecType         `json:"exec_type"`
	Status           CompletionStatus `json:"status"`
	ResultRef        string           `json:"result_ref,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	ProcessingTimeMS float64          `json:"processing_time_ms"`
	Timestamp        time.Time        `json:"timestamp"`
}

// Validate checks that the message identifies a job and carries a known
// status. A message failing validation can never be corrected by redelivery.
func (m *CompletionMessage) Validate() error {
	if m.RunID == "" || m.JobID == "" {
		return fmt.Errorf("%w: missing run_id or job_id", ErrMalformedMessage)
	}
	if m.Status != CompletionSuccess && m.Status != CompletionError {
		return fmt.Errorf("%w: unknown status %q", ErrMalformedMessage, m.Status)
	}
	return nil
}

// Delivery is one received queue message together with the acknowledgment
// handle used to delete it. A delivery that is not deleted becomes visible
// again after the queue's visibility window.
type Delivery struct {
	Body         []byte
	Handle       string
	ReceiveCount int
}
