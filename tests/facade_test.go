package jobgraph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobgraph "github.com/aviary-sim/jobgraph"
)

func TestFacade_StatusConstants(t *testing.T) {
	assert.Equal(t, jobgraph.JobStatus("pending"), jobgraph.StatusPending)
	assert.Equal(t, jobgraph.JobStatus("in_progress"), jobgraph.StatusInProgress)
	assert.Equal(t, jobgraph.JobStatus("done"), jobgraph.StatusDone)
	assert.Equal(t, jobgraph.JobStatus("failed"), jobgraph.StatusFailed)

	assert.Equal(t, jobgraph.RunStatus("active"), jobgraph.RunActive)
	assert.Equal(t, jobgraph.RunStatus("complete"), jobgraph.RunComplete)
	assert.Equal(t, jobgraph.RunStatus("degraded"), jobgraph.RunDegraded)

	assert.True(t, jobgraph.StatusDone.Terminal())
	assert.False(t, jobgraph.StatusPending.Terminal())
}

func TestFacade_ValidateGraph(t *testing.T) {
	good := []*jobgraph.Job{
		{RunID: "r1", JobID: "a", Type: "extract", ExecType: jobgraph.ExecSource, Successors: []string{"b"}},
		{RunID: "r1", JobID: "b", Type: "aggregate", ExecType: jobgraph.ExecAggregation, Predecessors: []string{"a"}},
	}
	assert.NoError(t, jobgraph.ValidateGraph(good))

	assert.ErrorIs(t, jobgraph.ValidateGraph(nil), jobgraph.ErrEmptyRun)
}

func TestFacade_MemoryStore(t *testing.T) {
	ctx := context.Background()
	store := jobgraph.NewMemoryStore()

	jobs := []*jobgraph.Job{
		{RunID: "r1", JobID: "a", Type: "extract", ExecType: jobgraph.ExecSource},
	}
	require.NoError(t, store.Insert(ctx, jobs))

	job, err := store.Get(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, jobgraph.StatusPending, job.Status)

	_, err = store.Get(ctx, "r1", "missing")
	assert.ErrorIs(t, err, jobgraph.ErrJobNotFound)
}

func TestFacade_GormStore(t *testing.T) {
	ctx := context.Background()
	store := jobgraph.NewGormStore(setupTestDB(t))
	require.NoError(t, store.Migrate(ctx))

	require.NoError(t, store.Register(ctx, &jobgraph.Run{RunID: "r1", TotalJobs: 1}))
	run, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, jobgraph.RunActive, run.Status)
}

func TestFacade_Validation(t *testing.T) {
	assert.NoError(t, jobgraph.ValidateJobTypeName("route-delays"))
	assert.ErrorIs(t, jobgraph.ValidateJobTypeName("9bad"), jobgraph.ErrInvalidJobType)

	sanitized := jobgraph.SanitizeErrorMessage("bad\x00byte")
	assert.Equal(t, "badbyte", sanitized)
}
