package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aviary-sim/jobgraph/pkg/core"
	"github.com/aviary-sim/jobgraph/pkg/security"
)

// MemoryStore implements core.JobStore with mutex-guarded indexed maps.
// Reads return copies so callers can never bypass TransitionStatus by
// mutating shared state.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]map[string]*core.Job // run_id -> job_id -> job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]map[string]*core.Job)}
}

// Migrate is a no-op for the memory store.
func (s *MemoryStore) Migrate(ctx context.Context) error {
	return nil
}

// Insert bulk-registers a run's DAG.
func (s *MemoryStore) Insert(ctx context.Context, jobs []*core.Job) error {
	if len(jobs) == 0 {
		return core.ErrEmptyRun
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range jobs {
		if byID, ok := s.jobs[j.RunID]; ok {
			if _, dup := byID[j.JobID]; dup {
				return fmt.Errorf("%w: %s/%s", core.ErrDuplicateJob, j.RunID, j.JobID)
			}
		}
	}

	now := time.Now()
	for _, j := range jobs {
		stored := *j
		if stored.Status == "" {
			stored.Status = core.StatusPending
		}
		stored.MaxAttempts = security.ClampAttempts(stored.MaxAttempts)
		stored.PredCount = len(stored.Predecessors)
		stored.SuccCount = len(stored.Successors)
		stored.CreatedAt = now
		stored.UpdatedAt = now

		byID, ok := s.jobs[stored.RunID]
		if !ok {
			byID = make(map[string]*core.Job)
			s.jobs[stored.RunID] = byID
		}
		byID[stored.JobID] = &stored
	}
	return nil
}

// Get retrieves a job by (run_id, job_id).
func (s *MemoryStore) Get(ctx context.Context, runID, jobID string) (*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(runID, jobID)
}

func (s *MemoryStore) get(runID, jobID string) (*core.Job, error) {
	j, ok := s.jobs[runID][jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	cp := *j
	return &cp, nil
}

// ListReadySources returns pending jobs with no predecessors.
func (s *MemoryStore) ListReadySources(ctx context.Context, runID string) ([]*core.Job, error) {
	return s.filter(runID, func(j *core.Job) bool {
		return len(j.Predecessors) == 0 && j.Status == core.StatusPending
	}), nil
}

// ListSuccessors returns the jobs named in the given job's successor set.
func (s *MemoryStore) ListSuccessors(ctx context.Context, runID, jobID string) ([]*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(runID, jobID)
	if err != nil {
		return nil, err
	}

	succs := make([]*core.Job, 0, len(job.Successors))
	for _, id := range job.Successors {
		if succ, ok := s.jobs[runID][id]; ok {
			cp := *succ
			succs = append(succs, &cp)
		}
	}
	return succs, nil
}

// ListSinks returns jobs with no successors.
func (s *MemoryStore) ListSinks(ctx context.Context, runID string) ([]*core.Job, error) {
	return s.filter(runID, func(j *core.Job) bool {
		return len(j.Successors) == 0
	}), nil
}

// ListJobs returns every job of the run, ordered by creation.
func (s *MemoryStore) ListJobs(ctx context.Context, runID string) ([]*core.Job, error) {
	return s.filter(runID, func(*core.Job) bool { return true }), nil
}

func (s *MemoryStore) filter(runID string, keep func(*core.Job) bool) []*core.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.Job
	for _, j := range s.jobs[runID] {
		if keep(j) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].JobID < out[k].JobID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// TransitionStatus performs the compare-and-swap under the store lock.
func (s *MemoryStore) TransitionStatus(ctx context.Context, runID, jobID string, from, to core.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[runID][jobID]
	if !ok {
		return false, nil
	}
	if j.Status != from {
		return false, nil
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	return true, nil
}

// AllPredecessorsDone evaluates the join invariant under the store lock.
func (s *MemoryStore) AllPredecessorsDone(ctx context.Context, runID, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[runID][jobID]
	if !ok {
		return false, fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	for _, pred := range j.Predecessors {
		p, ok := s.jobs[runID][pred]
		if !ok || p.Status != core.StatusDone {
			return false, nil
		}
	}
	return true, nil
}

// RecordDispatch stamps the dispatch time and bumps the attempt counter.
func (s *MemoryStore) RecordDispatch(ctx context.Context, runID, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[runID][jobID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	t := at
	j.DispatchedAt = &t
	j.Attempt++
	j.UpdatedAt = time.Now()
	return nil
}

// RecordResult stores worker-reported outcome metadata.
func (s *MemoryStore) RecordResult(ctx context.Context, runID, jobID, resultRef, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[runID][jobID]
	if !ok {
		return fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	t := at
	j.ResultRef = resultRef
	j.LastError = security.SanitizeErrorMessage(errMsg)
	j.CompletedAt = &t
	j.UpdatedAt = time.Now()
	return nil
}

// CountByStatus returns how many jobs of the run hold the status.
func (s *MemoryStore) CountByStatus(ctx context.Context, runID string, status core.JobStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, j := range s.jobs[runID] {
		if j.Status == status {
			count++
		}
	}
	return count, nil
}

// ListInProgressBefore returns in-progress jobs dispatched before the cutoff.
func (s *MemoryStore) ListInProgressBefore(ctx context.Context, cutoff time.Time) ([]*core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.Job
	for _, byID := range s.jobs {
		for _, j := range byID {
			if j.Status == core.StatusInProgress && j.DispatchedAt != nil && j.DispatchedAt.Before(cutoff) {
				cp := *j
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}
