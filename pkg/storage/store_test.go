package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

var dbCounter atomic.Int64

func openTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	n := dbCounter.Add(1)
	dbPath := fmt.Sprintf("/tmp/jobgraph_store_test_%d_%d.db?_busy_timeout=5000", os.Getpid(), n)
	t.Cleanup(func() { _ = os.Remove(fmt.Sprintf("/tmp/jobgraph_store_test_%d_%d.db", os.Getpid(), n)) })

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// eachStore runs the test against both implementations of the contract.
func eachStore(t *testing.T, fn func(t *testing.T, store core.JobStore)) {
	t.Run("gorm", func(t *testing.T) { fn(t, openTestGormStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func diamondJobs(runID string) []*core.Job {
	return []*core.Job{
		{RunID: runID, JobID: "a", Type: "route-delays", ExecType: core.ExecSource, Successors: []string{"b", "c"}},
		{RunID: runID, JobID: "b", Type: "route-delays", ExecType: core.ExecInterior, Predecessors: []string{"a"}, Successors: []string{"agg"}},
		{RunID: runID, JobID: "c", Type: "route-delays", ExecType: core.ExecInterior, Predecessors: []string{"a"}, Successors: []string{"agg"}},
		{RunID: runID, JobID: "agg", Type: "merge-percentiles", ExecType: core.ExecAggregation, Predecessors: []string{"b", "c"}},
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		job, err := store.Get(ctx, "r1", "a")
		require.NoError(t, err)
		assert.Equal(t, core.StatusPending, job.Status)
		assert.Equal(t, []string{"b", "c"}, job.Successors)

		_, err = store.Get(ctx, "r1", "ghost")
		assert.ErrorIs(t, err, core.ErrJobNotFound)
	})
}

func TestStore_InsertDuplicate(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))
		assert.ErrorIs(t, store.Insert(ctx, diamondJobs("r1")), core.ErrDuplicateJob)
	})
}

func TestStore_InsertEmpty(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		assert.ErrorIs(t, store.Insert(context.Background(), nil), core.ErrEmptyRun)
	})
}

func TestStore_ListReadySources(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		ready, err := store.ListReadySources(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, "a", ready[0].JobID)

		// Once dispatched the source is no longer ready.
		ok, err := store.TransitionStatus(ctx, "r1", "a", core.StatusPending, core.StatusInProgress)
		require.NoError(t, err)
		require.True(t, ok)

		ready, err = store.ListReadySources(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, ready)
	})
}

func TestStore_ListSuccessorsAndSinks(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		succs, err := store.ListSuccessors(ctx, "r1", "a")
		require.NoError(t, err)
		ids := []string{}
		for _, s := range succs {
			ids = append(ids, s.JobID)
		}
		assert.ElementsMatch(t, []string{"b", "c"}, ids)

		sinks, err := store.ListSinks(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, "agg", sinks[0].JobID)
	})
}

func TestStore_TransitionStatus_CAS(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		ok, err := store.TransitionStatus(ctx, "r1", "a", core.StatusPending, core.StatusInProgress)
		require.NoError(t, err)
		assert.True(t, ok)

		// Second caller loses the race; false, not an error.
		ok, err = store.TransitionStatus(ctx, "r1", "a", core.StatusPending, core.StatusInProgress)
		require.NoError(t, err)
		assert.False(t, ok)

		job, err := store.Get(ctx, "r1", "a")
		require.NoError(t, err)
		assert.Equal(t, core.StatusInProgress, job.Status)
	})
}

func TestStore_TransitionStatus_ConcurrentSingleWinner(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		const callers = 8
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.TransitionStatus(ctx, "r1", "agg", core.StatusPending, core.StatusInProgress)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "exactly one caller should win the transition")
	})
}

func TestStore_AllPredecessorsDone(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		done, err := store.AllPredecessorsDone(ctx, "r1", "agg")
		require.NoError(t, err)
		assert.False(t, done)

		mustTransition(t, store, "r1", "b", core.StatusPending, core.StatusInProgress)
		mustTransition(t, store, "r1", "b", core.StatusInProgress, core.StatusDone)

		done, err = store.AllPredecessorsDone(ctx, "r1", "agg")
		require.NoError(t, err)
		assert.False(t, done, "one predecessor still pending")

		mustTransition(t, store, "r1", "c", core.StatusPending, core.StatusInProgress)
		mustTransition(t, store, "r1", "c", core.StatusInProgress, core.StatusDone)

		done, err = store.AllPredecessorsDone(ctx, "r1", "agg")
		require.NoError(t, err)
		assert.True(t, done)

		// Sources are trivially ready.
		done, err = store.AllPredecessorsDone(ctx, "r1", "a")
		require.NoError(t, err)
		assert.True(t, done)
	})
}

func TestStore_RecordDispatchAndResult(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, store.RecordDispatch(ctx, "r1", "a", now))
		require.NoError(t, store.RecordResult(ctx, "r1", "a", "runs/r1/a.json", "", now))

		job, err := store.Get(ctx, "r1", "a")
		require.NoError(t, err)
		assert.Equal(t, 1, job.Attempt)
		require.NotNil(t, job.DispatchedAt)
		assert.Equal(t, "runs/r1/a.json", job.ResultRef)
		require.NotNil(t, job.CompletedAt)

		assert.ErrorIs(t, store.RecordDispatch(ctx, "r1", "ghost", now), core.ErrJobNotFound)
	})
}

func TestStore_ListInProgressBefore(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		stale := time.Now().Add(-time.Hour)
		mustTransition(t, store, "r1", "a", core.StatusPending, core.StatusInProgress)
		require.NoError(t, store.RecordDispatch(ctx, "r1", "a", stale))

		expired, err := store.ListInProgressBefore(ctx, time.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "a", expired[0].JobID)

		// Fresh dispatches stay out of the sweep.
		expired, err = store.ListInProgressBefore(ctx, time.Now().Add(-2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, expired)
	})
}

func TestStore_CountByStatus(t *testing.T) {
	eachStore(t, func(t *testing.T, store core.JobStore) {
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, diamondJobs("r1")))

		pending, err := store.CountByStatus(ctx, "r1", core.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, int64(4), pending)

		mustTransition(t, store, "r1", "a", core.StatusPending, core.StatusInProgress)

		inProgress, err := store.CountByStatus(ctx, "r1", core.StatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, int64(1), inProgress)
	})
}

func mustTransition(t *testing.T, store core.JobStore, runID, jobID string, from, to core.JobStatus) {
	t.Helper()
	ok, err := store.TransitionStatus(context.Background(), runID, jobID, from, to)
	require.NoError(t, err)
	require.True(t, ok)
}
