package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aviary-sim/jobgraph/pkg/channel"
	"github.com/aviary-sim/jobgraph/pkg/core"
)

// Scheduler orchestrates job-graph execution: it computes ready jobs,
// dispatches them, consumes completions, advances graph state, and detects
// run completion. A single loop consumes completion batches sequentially;
// the store's CAS transition is still mandatory because messages within one
// batch may reference overlapping run state.
type Scheduler struct {
	store core.JobStore
	runs  core.RunRegistry
	ch    *channel.Channel
	opts  Options

	subMu sync.Mutex
	subs  []chan core.Event
}

// New creates a Scheduler over the given store, run registry, and channel.
func New(store core.JobStore, runs core.RunRegistry, ch *channel.Channel, opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler{store: store, runs: runs, ch: ch, opts: o}
}

// Subscribe returns a channel receiving scheduler events. Events are dropped
// rather than block the loop when a subscriber falls behind.
func (s *Scheduler) Subscribe(buffer int) <-chan core.Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan core.Event, buffer)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Scheduler) emit(ev core.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// StartRun registers a run's DAG and dispatches its source jobs. The graph
// is validated before anything is written; a cyclic or inconsistent graph is
// rejected whole.
func (s *Scheduler) StartRun(ctx context.Context, runID string, jobs []*core.Job) error {
	for _, j := range jobs {
		if j.RunID == "" {
			j.RunID = runID
		}
		if j.RunID != runID {
			return fmt.Errorf("jobgraph: job %s belongs to run %s, not %s", j.JobID, j.RunID, runID)
		}
	}
	if err := core.ValidateGraph(jobs); err != nil {
		return err
	}

	if err := s.store.Insert(ctx, jobs); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	if err := s.runs.Register(ctx, &core.Run{RunID: runID, Status: core.RunActive, TotalJobs: len(jobs)}); err != nil {
		return fmt.Errorf("register run %s: %w", runID, err)
	}

	ready, err := s.store.ListReadySources(ctx, runID)
	if err != nil {
		return fmt.Errorf("list sources for run %s: %w", runID, err)
	}
	for _, job := range ready {
		won, err := s.store.TransitionStatus(ctx, job.RunID, job.JobID, core.StatusPending, core.StatusInProgress)
		if err != nil {
			return err
		}
		if !won {
			continue
		}
		if err := s.dispatch(ctx, job); err != nil {
			return err
		}
	}

	s.opts.Logger.Info("run started", "run_id", runID, "jobs", len(jobs), "sources", len(ready))
	s.emit(&core.RunStarted{RunID: runID, JobCount: len(jobs), Timestamp: time.Now()})
	return nil
}

// Run drives the completion loop until no runs remain active or the
// iteration budget is exhausted. maxIterations <= 0 means run until
// quiescent. The returned error is nil on clean quiescence or budget
// exhaustion; transport and store failures are fatal and returned.
func (s *Scheduler) Run(ctx context.Context, maxIterations int) error {
	iteration := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		remaining, err := s.retireQuiescent(ctx)
		if err != nil {
			return err
		}
		if remaining == 0 {
			s.opts.Logger.Info("all runs completed")
			return nil
		}
		if maxIterations > 0 && iteration >= maxIterations {
			s.opts.Logger.Warn("iteration budget exhausted", "active_runs", remaining)
			return nil
		}

		if s.opts.JobDeadline > 0 {
			if err := s.sweepDeadlines(ctx); err != nil {
				return err
			}
		}

		s.opts.Logger.Debug("polling completion channel", "active_runs", remaining)
		deliveries, err := s.ch.ReceiveCompletions(ctx, s.opts.MaxBatch, s.opts.WaitTimeout)
		if err != nil {
			return err
		}
		for _, d := range deliveries {
			if err := s.ProcessDelivery(ctx, d); err != nil {
				return err
			}
		}

		iteration++
		if len(deliveries) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.PollInterval):
			}
		}
	}
}

// ProcessDelivery handles one completion delivery. Per-message problems
// (poison bodies, unknown jobs, duplicates) are contained here and never
// abort the loop; only transport and store failures return an error.
func (s *Scheduler) ProcessDelivery(ctx context.Context, d core.Delivery) error {
	var msg core.CompletionMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		// Poison: redelivery can never fix a body that does not parse.
		return s.dropDelivery(ctx, d, "unparseable completion body", err)
	}
	if err := msg.Validate(); err != nil {
		return s.dropDelivery(ctx, d, "invalid completion", err)
	}

	job, err := s.store.Get(ctx, msg.RunID, msg.JobID)
	if errors.Is(err, core.ErrJobNotFound) {
		// Stale or duplicate delivery after the run was retired.
		return s.dropDelivery(ctx, d, "completion for unknown job", err)
	}
	if err != nil {
		return err
	}

	if msg.Status == core.CompletionError {
		return s.handleFailure(ctx, d, &msg)
	}
	return s.handleSuccess(ctx, d, &msg, job)
}

func (s *Scheduler) handleFailure(ctx context.Context, d core.Delivery, msg *core.CompletionMessage) error {
	won, err := s.store.TransitionStatus(ctx, msg.RunID, msg.JobID, core.StatusInProgress, core.StatusFailed)
	if err != nil {
		return err
	}
	if won {
		if err := s.store.RecordResult(ctx, msg.RunID, msg.JobID, "", msg.ErrorMessage, time.Now()); err != nil {
			return err
		}
		s.opts.Logger.Error("job failed",
			"run_id", msg.RunID, "job_id", msg.JobID, "error", msg.ErrorMessage)
		s.emit(&core.JobFailed{RunID: msg.RunID, JobID: msg.JobID, Reason: msg.ErrorMessage, Timestamp: time.Now()})
		s.degradeRun(ctx, msg.RunID, msg.JobID)
	} else {
		s.opts.Logger.Debug("duplicate failure report ignored", "run_id", msg.RunID, "job_id", msg.JobID)
	}
	return s.ack(ctx, d)
}

func (s *Scheduler) handleSuccess(ctx context.Context, d core.Delivery, msg *core.CompletionMessage, job *core.Job) error {
	won, err := s.store.TransitionStatus(ctx, msg.RunID, msg.JobID, core.StatusInProgress, core.StatusDone)
	if err != nil {
		return err
	}
	if !won {
		// At-least-once transport delivered this completion before; the
		// earlier handler already advanced the graph.
		s.opts.Logger.Debug("duplicate completion ignored", "run_id", msg.RunID, "job_id", msg.JobID)
		return s.ack(ctx, d)
	}

	if err := s.store.RecordResult(ctx, msg.RunID, msg.JobID, msg.ResultRef, "", time.Now()); err != nil {
		return err
	}
	s.opts.Logger.Info("job completed",
		"run_id", msg.RunID, "job_id", msg.JobID, "exec_type", msg.ExecType,
		"processing_time_ms", msg.ProcessingTimeMS)
	s.emit(&core.JobCompleted{RunID: msg.RunID, JobID: msg.JobID, ProcessingTimeMS: msg.ProcessingTimeMS, Timestamp: time.Now()})

	succs, err := s.store.ListSuccessors(ctx, msg.RunID, msg.JobID)
	if err != nil {
		return err
	}
	for _, succ := range succs {
		ready, err := s.store.AllPredecessorsDone(ctx, succ.RunID, succ.JobID)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		// The CAS guard is what keeps a fan-in job from dispatching twice
		// when its last two predecessors complete in the same batch.
		won, err := s.store.TransitionStatus(ctx, succ.RunID, succ.JobID, core.StatusPending, core.StatusInProgress)
		if err != nil {
			return err
		}
		if !won {
			continue
		}
		if err := s.dispatch(ctx, succ); err != nil {
			return err
		}
	}

	if job.IsSink() {
		if err := s.checkRunComplete(ctx, msg.RunID); err != nil {
			return err
		}
	}

	// Acknowledge only now, after every state transition above committed;
	// a crash before this point leads to redelivery, not loss.
	return s.ack(ctx, d)
}

// dispatch serializes a job and sends it on the dispatch queue. Predecessor
// result references travel with the message so the worker never touches the
// job store.
func (s *Scheduler) dispatch(ctx context.Context, job *core.Job) error {
	refs, err := s.predecessorRefs(ctx, job)
	if err != nil {
		return err
	}

	msg := &core.DispatchMessage{
		RunID:           job.RunID,
		JobID:           job.JobID,
		Type:            job.Type,
		ExecType:        job.ExecType,
		PredecessorRefs: refs,
		Payload:         json.RawMessage(job.Payload),
	}
	if err := s.ch.SendDispatch(ctx, msg); err != nil {
		return err
	}
	if err := s.store.RecordDispatch(ctx, job.RunID, job.JobID, time.Now()); err != nil {
		return err
	}

	s.opts.Logger.Info("job dispatched",
		"run_id", job.RunID, "job_id", job.JobID, "exec_type", job.ExecType, "attempt", job.Attempt+1)
	s.emit(&core.JobDispatched{RunID: job.RunID, JobID: job.JobID, ExecType: job.ExecType, Attempt: job.Attempt + 1, Timestamp: time.Now()})
	return nil
}

func (s *Scheduler) predecessorRefs(ctx context.Context, job *core.Job) ([]string, error) {
	refs := make([]string, 0, len(job.Predecessors))
	for _, pred := range job.Predecessors {
		p, err := s.store.Get(ctx, job.RunID, pred)
		if err != nil {
			return nil, err
		}
		if p.ResultRef != "" {
			refs = append(refs, p.ResultRef)
		}
	}
	return refs, nil
}

// checkRunComplete retires the run once every sink job is done.
func (s *Scheduler) checkRunComplete(ctx context.Context, runID string) error {
	sinks, err := s.store.ListSinks(ctx, runID)
	if err != nil {
		return err
	}
	for _, sink := range sinks {
		if sink.Status != core.StatusDone {
			return nil
		}
	}

	won, err := s.runs.TransitionRun(ctx, runID, core.RunActive, core.RunComplete)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	now := time.Now()
	if err := s.runs.FinishRun(ctx, runID, now); err != nil {
		return err
	}

	elapsed := time.Duration(0)
	if run, err := s.runs.GetRun(ctx, runID); err == nil {
		elapsed = now.Sub(run.StartedAt)
	}
	s.opts.Logger.Info("run completed", "run_id", runID, "elapsed", elapsed)
	s.emit(&core.RunCompleted{RunID: runID, Elapsed: elapsed, Timestamp: now})
	return nil
}

func (s *Scheduler) degradeRun(ctx context.Context, runID, jobID string) {
	won, err := s.runs.TransitionRun(ctx, runID, core.RunActive, core.RunDegraded)
	if err != nil {
		s.opts.Logger.Error("failed to degrade run", "run_id", runID, "error", err)
		return
	}
	if won {
		s.opts.Logger.Warn("run degraded", "run_id", runID, "failed_job", jobID)
		s.emit(&core.RunWentDegraded{RunID: runID, JobID: jobID, Timestamp: time.Now()})
	}
}

// retireQuiescent finishes degraded runs with nothing left in flight and
// returns how many runs still need tracking.
func (s *Scheduler) retireQuiescent(ctx context.Context) (int, error) {
	active, err := s.runs.ListActiveRuns(ctx)
	if err != nil {
		return 0, err
	}

	remaining := 0
	for _, run := range active {
		if run.Status != core.RunDegraded {
			remaining++
			continue
		}
		inFlight, err := s.store.CountByStatus(ctx, run.RunID, core.StatusInProgress)
		if err != nil {
			return 0, err
		}
		if inFlight > 0 {
			remaining++
			continue
		}
		if err := s.runs.FinishRun(ctx, run.RunID, time.Now()); err != nil {
			return 0, err
		}
		s.opts.Logger.Warn("degraded run retired", "run_id", run.RunID)
	}
	return remaining, nil
}

// sweepDeadlines handles jobs whose worker never reported back: within the
// attempt budget the job goes back through the dispatch path, afterwards it
// is forced to failed and the run degrades.
func (s *Scheduler) sweepDeadlines(ctx context.Context) error {
	cutoff := time.Now().Add(-s.opts.JobDeadline)
	expired, err := s.store.ListInProgressBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, job := range expired {
		if job.Attempt < job.MaxAttempts {
			// Walk the job back to pending and forward again so the
			// redispatch races fairly with any late completion.
			won, err := s.store.TransitionStatus(ctx, job.RunID, job.JobID, core.StatusInProgress, core.StatusPending)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			won, err = s.store.TransitionStatus(ctx, job.RunID, job.JobID, core.StatusPending, core.StatusInProgress)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			s.opts.Logger.Warn("redispatching stalled job",
				"run_id", job.RunID, "job_id", job.JobID, "attempt", job.Attempt+1)
			if err := s.dispatch(ctx, job); err != nil {
				return err
			}
			continue
		}

		won, err := s.store.TransitionStatus(ctx, job.RunID, job.JobID, core.StatusInProgress, core.StatusFailed)
		if err != nil {
			return err
		}
		if !won {
			continue
		}
		reason := fmt.Sprintf("job deadline exceeded after %d attempts", job.Attempt)
		if err := s.store.RecordResult(ctx, job.RunID, job.JobID, "", reason, time.Now()); err != nil {
			return err
		}
		s.opts.Logger.Error("job deadline exceeded", "run_id", job.RunID, "job_id", job.JobID)
		s.emit(&core.JobFailed{RunID: job.RunID, JobID: job.JobID, Reason: reason, Timestamp: time.Now()})
		s.degradeRun(ctx, job.RunID, job.JobID)
	}
	return nil
}

func (s *Scheduler) dropDelivery(ctx context.Context, d core.Delivery, reason string, cause error) error {
	s.opts.Logger.Warn("dropping completion message",
		"reason", reason, "error", cause, "receive_count", d.ReceiveCount)
	s.emit(&core.MessageDropped{Reason: reason, Body: d.Body, Timestamp: time.Now()})
	return s.ack(ctx, d)
}

func (s *Scheduler) ack(ctx context.Context, d core.Delivery) error {
	return s.ch.DeleteCompletion(ctx, d.Handle)
}
