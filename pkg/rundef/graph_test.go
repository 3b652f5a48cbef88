package rundef

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

func TestBuildRun_TwoSequences(t *testing.T) {
	jobs, err := BuildRun("r1", []*Sequence{validSequence(1), validSequence(2)})
	require.NoError(t, err)

	// Two legs per sequence plus the merge job.
	require.Len(t, jobs, 5)

	byID := make(map[string]*core.Job, len(jobs))
	for _, job := range jobs {
		byID[job.JobID] = job
	}

	first := byID[LegJobID(1, 0)]
	require.NotNil(t, first)
	assert.Equal(t, core.ExecSource, first.ExecType)
	assert.Equal(t, JobTypeRouteDelays, first.Type)
	assert.Empty(t, first.Predecessors)
	assert.Equal(t, []string{LegJobID(1, 1)}, first.Successors)

	last := byID[LegJobID(1, 1)]
	require.NotNil(t, last)
	assert.Equal(t, core.ExecInterior, last.ExecType)
	assert.Equal(t, []string{LegJobID(1, 0)}, last.Predecessors)
	assert.Equal(t, []string{MergeJobID}, last.Successors)

	merge := byID[MergeJobID]
	require.NotNil(t, merge)
	assert.Equal(t, core.ExecAggregation, merge.ExecType)
	assert.Equal(t, JobTypeMergeDelays, merge.Type)
	assert.ElementsMatch(t, []string{LegJobID(1, 1), LegJobID(2, 1)}, merge.Predecessors)
	assert.Empty(t, merge.Successors)

	var mergePayload MergePayload
	require.NoError(t, json.Unmarshal(merge.Payload, &mergePayload))
	assert.Equal(t, 2, mergePayload.SequenceCount)
}

func TestBuildRun_LegPayloads(t *testing.T) {
	seq := validSequence(7)
	jobs, err := BuildRun("r1", []*Sequence{seq})
	require.NoError(t, err)

	var payload LegPayload
	require.NoError(t, json.Unmarshal(jobs[1].Payload, &payload))
	assert.Equal(t, 7, payload.SequenceID)
	assert.Equal(t, 1, payload.LegIndex)
	assert.Equal(t, "PDX", payload.HomeAirportIATA)
	assert.Equal(t, seq.Routes[1], payload.Route)
}

func TestBuildRun_SingleLegSequence(t *testing.T) {
	seq := &Sequence{
		SequenceID:      1,
		HomeAirportIATA: "PDX",
		Routes: []Route{{
			OriginIATA:            "PDX",
			DestinationIATA:       "PDX",
			EstimatedGateOpenTime: "06:00:00",
			EstimatedTakeoffTime:  "06:30:00",
			EstimatedArrivalTime:  "07:30:00",
		}},
	}

	jobs, err := BuildRun("r1", []*Sequence{seq})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, core.ExecSource, jobs[0].ExecType)
	assert.Equal(t, []string{MergeJobID}, jobs[0].Successors)
	assert.Equal(t, []string{LegJobID(1, 0)}, jobs[1].Predecessors)
}

func TestBuildRun_ProducesValidGraph(t *testing.T) {
	jobs, err := BuildRun("r1", []*Sequence{validSequence(1), validSequence(2), validSequence(3)})
	require.NoError(t, err)
	assert.NoError(t, core.ValidateGraph(jobs))
}

func TestBuildRun_Rejections(t *testing.T) {
	_, err := BuildRun("r1", nil)
	assert.ErrorIs(t, err, core.ErrEmptyRun)

	_, err = BuildRun("r1", []*Sequence{validSequence(1), validSequence(1)})
	assert.ErrorIs(t, err, ErrDuplicateSequence)

	bad := validSequence(2)
	bad.Routes = nil
	_, err = BuildRun("r1", []*Sequence{validSequence(1), bad})
	assert.ErrorIs(t, err, ErrNoRoutes)
}
