package core

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateJob     = errors.New("jobgraph: job already registered for run")
	ErrJobNotFound      = errors.New("jobgraph: job not found")
	ErrRunNotFound      = errors.New("jobgraph: run not found")
	ErrDuplicateRun     = errors.New("jobgraph: run already registered")
	ErrEmptyRun         = errors.New("jobgraph: run has no jobs")
	ErrGraphCycle       = errors.New("jobgraph: job graph contains a cycle")
	ErrDanglingEdge     = errors.New("jobgraph: edge references unknown job")
	ErrMalformedMessage = errors.New("jobgraph: malformed message")
	ErrPayloadTooLarge  = errors.New("jobgraph: payload exceeds inline limit and no blob store is configured")
	ErrInvalidJobType   = errors.New("jobgraph: invalid job type name (must be alphanumeric, start with letter)")
	ErrJobTypeTooLong   = errors.New("jobgraph: job type name too long")
	ErrNoHandler        = errors.New("jobgraph: no handler registered for job type")
)

// TransportError wraps a queue or store failure that survived the channel
// layer's retries. It is fatal to the scheduler loop, unlike per-message
// errors which are contained and logged.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jobgraph: transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a fatal transport error for the given operation.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
