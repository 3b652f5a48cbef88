package delay

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviary-sim/jobgraph/pkg/rundef"
)

func testRoute() *rundef.Route {
	return &rundef.Route{
		OriginIATA:            "PDX",
		DestinationIATA:       "SFO",
		EstimatedGateOpenTime: "06:00:00",
		EstimatedTakeoffTime:  "06:45:00",
		EstimatedArrivalTime:  "08:30:00",
	}
}

func TestModelRouteDelays_Deterministic(t *testing.T) {
	a, err := ModelRouteDelays(1, 0, testRoute())
	require.NoError(t, err)
	b, err := ModelRouteDelays(1, 0, testRoute())
	require.NoError(t, err)

	require.Len(t, a, ScenarioCount)
	assert.Equal(t, a, b)
}

func TestModelRouteDelays_VariesByRoute(t *testing.T) {
	a, err := ModelRouteDelays(1, 0, testRoute())
	require.NoError(t, err)

	other := testRoute()
	other.DestinationIATA = "SEA"
	b, err := ModelRouteDelays(1, 0, other)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	c, err := ModelRouteDelays(2, 0, testRoute())
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestModelRouteDelays_BadTimes(t *testing.T) {
	r := testRoute()
	r.EstimatedGateOpenTime = "six"
	_, err := ModelRouteDelays(1, 0, r)
	assert.Error(t, err)
}

func TestSumDelays(t *testing.T) {
	out, err := SumDelays([]float64{1, 2, 3}, []float64{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, out)

	_, err = SumDelays([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrScenarioMismatch)
}

func TestSummarize(t *testing.T) {
	delays := make([]float64, 100)
	for i := range delays {
		delays[i] = float64(i + 1)
	}
	// Shuffle-proof: Summarize sorts internally.
	delays[0], delays[99] = delays[99], delays[0]

	p := Summarize(delays)
	assert.InDelta(t, 50.0, p.P50, 1.0)
	assert.InDelta(t, 90.0, p.P90, 1.0)
	assert.InDelta(t, 99.0, p.P99, 1.0)
	assert.LessOrEqual(t, p.P50, p.P90)
	assert.LessOrEqual(t, p.P90, p.P99)

	assert.Equal(t, Percentiles{}, Summarize(nil))
}

func TestSummarize_LeavesInputUnsorted(t *testing.T) {
	delays := []float64{5, 1, 3}
	Summarize(delays)
	assert.Equal(t, []float64{5, 1, 3}, delays)
	assert.False(t, sort.Float64sAreSorted(delays))
}

func TestMergeSequences(t *testing.T) {
	mk := func(seqID int, base float64) *LegResult {
		delays := make([]float64, ScenarioCount)
		for i := range delays {
			delays[i] = base + float64(i)
		}
		return &LegResult{SequenceID: seqID, LegIndex: 3, DelayMinutes: delays}
	}

	summary, err := MergeSequences([]*LegResult{mk(2, 100), mk(1, 0)})
	require.NoError(t, err)
	require.Len(t, summary.Sequences, 2)
	assert.Equal(t, 1, summary.Sequences[0].SequenceID)
	assert.Equal(t, 2, summary.Sequences[1].SequenceID)
	assert.Equal(t, 4, summary.Sequences[0].Legs)
	assert.Less(t, summary.Sequences[0].Percentiles.P50, summary.Sequences[1].Percentiles.P50)
	assert.Greater(t, summary.Fleet.P99, summary.Sequences[0].Percentiles.P99)
}

func TestMergeSequences_Rejections(t *testing.T) {
	_, err := MergeSequences(nil)
	assert.Error(t, err)

	short := &LegResult{SequenceID: 1, DelayMinutes: []float64{1, 2}}
	_, err = MergeSequences([]*LegResult{short})
	assert.ErrorIs(t, err, ErrScenarioMismatch)
}
