// Package worker executes dispatched jobs and reports their outcomes.
//
// A Worker is stateless: everything it needs arrives in the dispatch
// message (job identity, payload, predecessor result refs), and everything
// it produces leaves as a completion message. It never touches the job
// store, so workers scale horizontally behind the dispatch queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aviary-sim/jobgraph/pkg/channel"
	"github.com/aviary-sim/jobgraph/pkg/core"
	"github.com/aviary-sim/jobgraph/pkg/security"
)

// Task is the unit of work a Handler receives: the dispatch message plus
// its payload, resolved from the blob store when it travelled by reference.
type Task struct {
	Msg     *core.DispatchMessage
	Payload json.RawMessage
}

// Handler executes one job type. It returns a result reference (typically a
// blob key) that the scheduler forwards to successor jobs, or an error that
// fails the job.
type Handler func(ctx context.Context, task *Task) (resultRef string, err error)

// Worker pulls dispatches, routes them to registered handlers, and reports
// completions. A dispatch is acknowledged only after its completion was sent,
// so a crash mid-job leads to redelivery rather than a lost job.
type Worker struct {
	ch     *channel.Channel
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	wg sync.WaitGroup
}

// New creates a Worker over the given channel.
func New(ch *channel.Channel, opts ...Option) *Worker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Worker{
		ch:       ch,
		opts:     o,
		logger:   o.Logger.With("worker_id", o.WorkerID),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job type. Panics on an invalid type name or
// a duplicate registration; both are programming errors caught at startup.
func (w *Worker) Register(jobType string, h Handler) {
	if err := security.ValidateJobTypeName(jobType); err != nil {
		panic(fmt.Sprintf("worker: register %q: %v", jobType, err))
	}
	if h == nil {
		panic(fmt.Sprintf("worker: register %q: nil handler", jobType))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[jobType]; ok {
		panic(fmt.Sprintf("worker: handler for %q already registered", jobType))
	}
	w.handlers[jobType] = h
}

func (w *Worker) handler(jobType string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Start begins processing dispatches. Blocks until the context is cancelled.
// Receive errors are logged and retried after the poll interval; the worker
// is a long-lived process and outlives transport blips.
func (w *Worker) Start(ctx context.Context) error {
	deliveries := make(chan core.Delivery, w.opts.Concurrency)

	for i := 0; i < w.opts.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, deliveries)
	}

	w.logger.Info("worker started", "concurrency", w.opts.Concurrency)

	for {
		select {
		case <-ctx.Done():
			close(deliveries)
			w.wg.Wait()
			return ctx.Err()
		default:
		}

		batch, err := w.ch.ReceiveDispatches(ctx, w.opts.MaxBatch, w.opts.WaitTimeout)
		if err != nil {
			if ctx.Err() != nil {
				close(deliveries)
				w.wg.Wait()
				return ctx.Err()
			}
			w.logger.Error("failed to receive dispatches", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}

		for _, d := range batch {
			select {
			case deliveries <- d:
			case <-ctx.Done():
				close(deliveries)
				w.wg.Wait()
				return ctx.Err()
			}
		}
	}
}

func (w *Worker) processLoop(ctx context.Context, deliveries <-chan core.Delivery) {
	defer w.wg.Done()

	for d := range deliveries {
		w.processDelivery(ctx, d)
	}
}

func (w *Worker) processDelivery(ctx context.Context, d core.Delivery) {
	var msg core.DispatchMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		// Poison: the body can never become parseable on redelivery.
		w.logger.Warn("dropping unparseable dispatch", "error", err, "receive_count", d.ReceiveCount)
		w.ackDispatch(ctx, d)
		return
	}

	start := time.Now()
	resultRef, err := w.execute(ctx, &msg)

	completion := &core.CompletionMessage{
		RunID:            msg.RunID,
		JobID:            msg.JobID,
		ExecType:         msg.ExecType,
		ProcessingTimeMS: float64(time.Since(start)) / float64(time.Millisecond),
	}
	if err != nil {
		completion.Status = core.CompletionError
		completion.ErrorMessage = security.SanitizeErrorMessage(err.Error())
		w.logger.Error("job failed",
			"run_id", msg.RunID, "job_id", msg.JobID, "type", msg.Type, "error", err)
	} else {
		completion.Status = core.CompletionSuccess
		completion.ResultRef = resultRef
		w.logger.Info("job completed",
			"run_id", msg.RunID, "job_id", msg.JobID, "type", msg.Type,
			"duration", time.Since(start))
	}

	if err := w.ch.SendCompletion(ctx, completion); err != nil {
		// Leave the dispatch unacknowledged; it becomes visible again and
		// the job reruns rather than vanishing.
		w.logger.Error("failed to send completion",
			"run_id", msg.RunID, "job_id", msg.JobID, "error", err)
		return
	}
	w.ackDispatch(ctx, d)
}

// execute resolves the payload and runs the handler with panic recovery. A
// panicking handler fails its job instead of taking the worker down.
func (w *Worker) execute(ctx context.Context, msg *core.DispatchMessage) (resultRef string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	h, ok := w.handler(msg.Type)
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrNoHandler, msg.Type)
	}

	payload, err := w.ch.ResolvePayload(ctx, msg)
	if err != nil {
		return "", err
	}

	return h(ctx, &Task{Msg: msg, Payload: payload})
}

func (w *Worker) ackDispatch(ctx context.Context, d core.Delivery) {
	if err := w.ch.DeleteDispatch(ctx, d.Handle); err != nil {
		w.logger.Error("failed to delete dispatch", "error", err)
	}
}
