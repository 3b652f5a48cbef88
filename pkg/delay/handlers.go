package delay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aviary-sim/jobgraph/pkg/blob"
	"github.com/aviary-sim/jobgraph/pkg/rundef"
	"github.com/aviary-sim/jobgraph/pkg/worker"
)

// RegisterHandlers binds the delay-modelling job types on w. Leg results
// travel between jobs as blobs; the result refs on the wire are blob keys.
func RegisterHandlers(w *worker.Worker, blobs blob.Store) {
	w.Register(rundef.JobTypeRouteDelays, RouteDelaysHandler(blobs))
	w.Register(rundef.JobTypeMergeDelays, MergeDelaysHandler(blobs))
}

// RouteDelaysHandler models one leg and folds in the cumulative delays of
// the previous leg when there is one.
func RouteDelaysHandler(blobs blob.Store) worker.Handler {
	return func(ctx context.Context, task *worker.Task) (string, error) {
		var payload rundef.LegPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return "", fmt.Errorf("parse leg payload: %w", err)
		}

		delays, err := ModelRouteDelays(payload.SequenceID, payload.LegIndex, &payload.Route)
		if err != nil {
			return "", err
		}

		if refs := task.Msg.PredecessorRefs; len(refs) > 0 {
			if len(refs) != 1 {
				return "", fmt.Errorf("route-delay job expects one predecessor result, got %d", len(refs))
			}
			prev, err := loadLegResult(ctx, blobs, refs[0])
			if err != nil {
				return "", err
			}
			delays, err = SumDelays(prev.DelayMinutes, delays)
			if err != nil {
				return "", err
			}
		}

		result := &LegResult{
			SequenceID:      payload.SequenceID,
			LegIndex:        payload.LegIndex,
			OriginIATA:      payload.Route.OriginIATA,
			DestinationIATA: payload.Route.DestinationIATA,
			DelayMinutes:    delays,
			Percentiles:     Summarize(delays),
		}
		return putResult(ctx, blobs, task.Msg.RunID, task.Msg.JobID, result)
	}
}

// MergeDelaysHandler aggregates every sequence's final leg result into the
// run summary.
func MergeDelaysHandler(blobs blob.Store) worker.Handler {
	return func(ctx context.Context, task *worker.Task) (string, error) {
		var payload rundef.MergePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return "", fmt.Errorf("parse merge payload: %w", err)
		}

		refs := task.Msg.PredecessorRefs
		if payload.SequenceCount > 0 && len(refs) != payload.SequenceCount {
			return "", fmt.Errorf("merge expects %d sequence results, got %d",
				payload.SequenceCount, len(refs))
		}

		finals := make([]*LegResult, 0, len(refs))
		for _, ref := range refs {
			res, err := loadLegResult(ctx, blobs, ref)
			if err != nil {
				return "", err
			}
			finals = append(finals, res)
		}

		summary, err := MergeSequences(finals)
		if err != nil {
			return "", err
		}
		return putResult(ctx, blobs, task.Msg.RunID, task.Msg.JobID, summary)
	}
}

func loadLegResult(ctx context.Context, blobs blob.Store, key string) (*LegResult, error) {
	data, err := blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load result %q: %w", key, err)
	}
	var res LegResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse result %q: %w", key, err)
	}
	return &res, nil
}

func putResult(ctx context.Context, blobs blob.Store, runID, jobID string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	key := blob.ResultKey(runID, jobID)
	if err := blobs.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("store result %q: %w", key, err)
	}
	return key, nil
}
