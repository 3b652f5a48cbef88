package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestJob_SourceAndSink(t *testing.T) {
	source := &Job{JobID: "a", Successors: []string{"b"}}
	assert.True(t, source.IsSource())
	assert.False(t, source.IsSink())

	interior := &Job{JobID: "b", Predecessors: []string{"a"}, Successors: []string{"c"}}
	assert.False(t, interior.IsSource())
	assert.False(t, interior.IsSink())

	sink := &Job{JobID: "c", Predecessors: []string{"b"}}
	assert.False(t, sink.IsSource())
	assert.True(t, sink.IsSink())
}

func TestRun_Active(t *testing.T) {
	run := &Run{RunID: "r1", Status: RunActive}
	assert.True(t, run.Active())

	now := run.StartedAt
	run.FinishedAt = &now
	assert.False(t, run.Active())
}
