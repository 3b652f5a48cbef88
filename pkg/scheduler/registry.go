package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

// MemoryRegistry implements core.RunRegistry in process memory. Transitions
// follow the same compare-and-swap discipline as the job store so
// overlapping completion handlers cannot both retire a run.
type MemoryRegistry struct {
	mu   sync.Mutex
	runs map[string]*core.Run
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{runs: make(map[string]*core.Run)}
}

// Register adds a run in its initial state.
func (r *MemoryRegistry) Register(ctx context.Context, run *core.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.RunID]; ok {
		return fmt.Errorf("%w: %s", core.ErrDuplicateRun, run.RunID)
	}

	stored := *run
	if stored.Status == "" {
		stored.Status = core.RunActive
	}
	if stored.StartedAt.IsZero() {
		stored.StartedAt = time.Now()
	}
	r.runs[stored.RunID] = &stored
	return nil
}

// GetRun returns a copy of the run or core.ErrRunNotFound.
func (r *MemoryRegistry) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	cp := *run
	return &cp, nil
}

// TransitionRun performs the compare-and-swap run status update.
func (r *MemoryRegistry) TransitionRun(ctx context.Context, runID string, from, to core.RunStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok || run.Status != from {
		return false, nil
	}
	run.Status = to
	run.UpdatedAt = time.Now()
	return true, nil
}

// FinishRun stamps the run as retired.
func (r *MemoryRegistry) FinishRun(ctx context.Context, runID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	t := at
	run.FinishedAt = &t
	run.UpdatedAt = time.Now()
	return nil
}

// ListActiveRuns returns runs not yet retired, oldest first.
func (r *MemoryRegistry) ListActiveRuns(ctx context.Context) ([]*core.Run, error) {
	return r.list(func(run *core.Run) bool { return run.Active() }, false), nil
}

// ListRuns returns every known run, newest first.
func (r *MemoryRegistry) ListRuns(ctx context.Context) ([]*core.Run, error) {
	return r.list(func(*core.Run) bool { return true }, true), nil
}

func (r *MemoryRegistry) list(keep func(*core.Run) bool, newestFirst bool) []*core.Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*core.Run
	for _, run := range r.runs {
		if keep(run) {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if newestFirst {
			return out[i].StartedAt.After(out[k].StartedAt)
		}
		return out[i].StartedAt.Before(out[k].StartedAt)
	})
	return out
}
