package rundef

import (
	"encoding/json"
	"fmt"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

// Job types produced by BuildRun. Worker deployments register handlers
// under these names.
const (
	JobTypeRouteDelays = "route-delays"
	JobTypeMergeDelays = "merge-delays"
)

// MergeJobID is the fixed ID of the run's aggregation job.
const MergeJobID = "merge"

// LegPayload is the dispatch payload for one route-delay job.
type LegPayload struct {
	SequenceID      int   `json:"sequence_id"`
	HomeAirportIATA string `json:"home_airport_iata"`
	LegIndex        int   `json:"leg_index"`
	Route           Route `json:"route"`
}

// MergePayload is the dispatch payload for the aggregation job.
type MergePayload struct {
	SequenceCount int `json:"sequence_count"`
}

// LegJobID returns the deterministic job ID for a sequence leg. Stable IDs
// keep reruns of the same day's definition comparable across runs.
func LegJobID(sequenceID, legIndex int) string {
	return fmt.Sprintf("seq-%d-leg-%d", sequenceID, legIndex)
}

// BuildRun turns validated sequences into one job graph: a linear chain of
// route-delay jobs per sequence, all chains fanning into a single merge job.
// A single one-leg sequence degenerates to source→merge, which is still a
// well-formed DAG.
func BuildRun(runID string, seqs []*Sequence) ([]*core.Job, error) {
	if len(seqs) == 0 {
		return nil, core.ErrEmptyRun
	}

	seen := make(map[int]bool, len(seqs))
	var jobs []*core.Job
	finalLegs := make([]string, 0, len(seqs))

	for _, seq := range seqs {
		if seen[seq.SequenceID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSequence, seq.SequenceID)
		}
		seen[seq.SequenceID] = true
		if err := seq.Validate(); err != nil {
			return nil, err
		}

		for i, route := range seq.Routes {
			payload, err := json.Marshal(&LegPayload{
				SequenceID:      seq.SequenceID,
				HomeAirportIATA: seq.HomeAirportIATA,
				LegIndex:        i,
				Route:           route,
			})
			if err != nil {
				return nil, fmt.Errorf("rundef: marshal leg payload: %w", err)
			}

			job := &core.Job{
				RunID:    runID,
				JobID:    LegJobID(seq.SequenceID, i),
				Type:     JobTypeRouteDelays,
				ExecType: core.ExecInterior,
				Payload:  payload,
			}
			if i == 0 {
				job.ExecType = core.ExecSource
			} else {
				job.Predecessors = []string{LegJobID(seq.SequenceID, i-1)}
			}
			if i < len(seq.Routes)-1 {
				job.Successors = []string{LegJobID(seq.SequenceID, i+1)}
			} else {
				job.Successors = []string{MergeJobID}
				finalLegs = append(finalLegs, job.JobID)
			}
			jobs = append(jobs, job)
		}
	}

	mergePayload, err := json.Marshal(&MergePayload{SequenceCount: len(seqs)})
	if err != nil {
		return nil, fmt.Errorf("rundef: marshal merge payload: %w", err)
	}
	jobs = append(jobs, &core.Job{
		RunID:        runID,
		JobID:        MergeJobID,
		Type:         JobTypeMergeDelays,
		ExecType:     core.ExecAggregation,
		Predecessors: finalLegs,
		Payload:      mergePayload,
	})

	if err := core.ValidateGraph(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
