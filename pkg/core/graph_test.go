package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func chain(ids ...string) []*Job {
	jobs := make([]*Job, len(ids))
	for i, id := range ids {
		j := &Job{RunID: "r1", JobID: id}
		if i > 0 {
			j.Predecessors = []string{ids[i-1]}
		}
		if i < len(ids)-1 {
			j.Successors = []string{ids[i+1]}
		}
		jobs[i] = j
	}
	return jobs
}

func TestValidateGraph_LinearChain(t *testing.T) {
	assert.NoError(t, ValidateGraph(chain("a", "b", "c")))
}

func TestValidateGraph_Empty(t *testing.T) {
	assert.ErrorIs(t, ValidateGraph(nil), ErrEmptyRun)
}

func TestValidateGraph_Cycle(t *testing.T) {
	jobs := []*Job{
		{JobID: "a", Predecessors: []string{"b"}, Successors: []string{"b"}},
		{JobID: "b", Predecessors: []string{"a"}, Successors: []string{"a"}},
	}
	assert.ErrorIs(t, ValidateGraph(jobs), ErrGraphCycle)
}

func TestValidateGraph_DanglingEdge(t *testing.T) {
	jobs := []*Job{
		{JobID: "a", Successors: []string{"ghost"}},
	}
	assert.ErrorIs(t, ValidateGraph(jobs), ErrDanglingEdge)
}

func TestValidateGraph_MismatchedEdges(t *testing.T) {
	// b claims a as predecessor, but a does not list b as successor.
	jobs := []*Job{
		{JobID: "a"},
		{JobID: "b", Predecessors: []string{"a"}},
	}
	assert.ErrorIs(t, ValidateGraph(jobs), ErrDanglingEdge)
}

func TestValidateGraph_FanIn(t *testing.T) {
	jobs := []*Job{
		{JobID: "a", Successors: []string{"agg"}},
		{JobID: "b", Successors: []string{"agg"}},
		{JobID: "agg", Predecessors: []string{"a", "b"}},
	}
	assert.NoError(t, ValidateGraph(jobs))
}

func TestValidateGraph_DuplicateJobID(t *testing.T) {
	jobs := []*Job{{JobID: "a"}, {JobID: "a"}}
	assert.ErrorIs(t, ValidateGraph(jobs), ErrDuplicateJob)
}
