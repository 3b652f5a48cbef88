// Package delay models flight delay distributions for route sequences.
//
// Each route leg is simulated as a set of scenarios; a scenario's delay is
// the difference between its simulated duration and the scheduled duration.
// Scenario vectors are summed leg over leg along a sequence, so the final
// leg's result carries the aircraft's cumulative delay distribution for the
// whole day. Simulation is deterministic per route, which keeps reruns and
// redeliveries reproducible.
package delay

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/aviary-sim/jobgraph/pkg/rundef"
)

// ScenarioCount is the number of simulated scenarios per route leg.
const ScenarioCount = 100

// ErrScenarioMismatch marks result vectors of differing lengths, which
// cannot be summed or merged.
var ErrScenarioMismatch = errors.New("delay: scenario count mismatch")

// LegResult is the output of one route-delay job: the cumulative
// per-scenario delays up to and including this leg.
type LegResult struct {
	SequenceID      int       `json:"sequence_id"`
	LegIndex        int       `json:"leg_index"`
	OriginIATA      string    `json:"origin_iata"`
	DestinationIATA string    `json:"destination_iata"`
	DelayMinutes    []float64 `json:"delay_minutes"`

	Percentiles Percentiles `json:"percentiles"`
}

// Percentiles summarizes a delay distribution.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// SequenceSummary is one sequence's line in the run summary.
type SequenceSummary struct {
	SequenceID  int         `json:"sequence_id"`
	Legs        int         `json:"legs"`
	Percentiles Percentiles `json:"percentiles"`
}

// RunSummary is the output of the merge job: per-sequence summaries plus
// the fleet-wide distribution over all scenarios of all sequences.
type RunSummary struct {
	Sequences []SequenceSummary `json:"sequences"`
	Fleet     Percentiles       `json:"fleet"`
}

// ModelRouteDelays simulates one leg and returns its delay vector. The same
// route always yields the same scenarios.
func ModelRouteDelays(seqID, legIndex int, route *rundef.Route) ([]float64, error) {
	ground, err := route.GroundMinutes()
	if err != nil {
		return nil, err
	}
	flight, err := route.FlightMinutes()
	if err != nil {
		return nil, err
	}
	scheduled := ground + flight

	rng := rand.New(rand.NewSource(routeSeed(seqID, legIndex, route)))
	delays := make([]float64, ScenarioCount)
	for i := range delays {
		// Simulated duration skews late: most scenarios run a little over
		// schedule, a few run well over.
		factor := 0.97 + rng.ExpFloat64()*0.06
		delays[i] = scheduled*factor - scheduled
	}
	return delays, nil
}

func routeSeed(seqID, legIndex int, route *rundef.Route) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s", seqID, legIndex,
		route.OriginIATA, route.DestinationIATA, route.EstimatedTakeoffTime)
	return int64(h.Sum64())
}

// SumDelays adds two per-scenario vectors elementwise.
func SumDelays(prev, cur []float64) ([]float64, error) {
	if len(prev) != len(cur) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrScenarioMismatch, len(prev), len(cur))
	}
	out := make([]float64, len(cur))
	for i := range cur {
		out[i] = prev[i] + cur[i]
	}
	return out, nil
}

// Summarize computes distribution percentiles over a delay vector.
func Summarize(delays []float64) Percentiles {
	if len(delays) == 0 {
		return Percentiles{}
	}
	sorted := make([]float64, len(delays))
	copy(sorted, delays)
	sort.Float64s(sorted)
	return Percentiles{
		P50: percentile(sorted, 0.50),
		P90: percentile(sorted, 0.90),
		P99: percentile(sorted, 0.99),
	}
}

// percentile reads from an already-sorted slice using nearest-rank.
func percentile(sorted []float64, p float64) float64 {
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// MergeSequences builds the run summary from each sequence's final leg
// result. The fleet distribution pools every scenario across sequences.
func MergeSequences(finals []*LegResult) (*RunSummary, error) {
	if len(finals) == 0 {
		return nil, errors.New("delay: no sequence results to merge")
	}

	summary := &RunSummary{Sequences: make([]SequenceSummary, 0, len(finals))}
	var pooled []float64
	for _, res := range finals {
		if len(res.DelayMinutes) != ScenarioCount {
			return nil, fmt.Errorf("%w: sequence %d has %d scenarios",
				ErrScenarioMismatch, res.SequenceID, len(res.DelayMinutes))
		}
		summary.Sequences = append(summary.Sequences, SequenceSummary{
			SequenceID:  res.SequenceID,
			Legs:        res.LegIndex + 1,
			Percentiles: Summarize(res.DelayMinutes),
		})
		pooled = append(pooled, res.DelayMinutes...)
	}
	sort.Slice(summary.Sequences, func(i, k int) bool {
		return summary.Sequences[i].SequenceID < summary.Sequences[k].SequenceID
	})
	summary.Fleet = Summarize(pooled)
	return summary, nil
}
