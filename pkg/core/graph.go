package core

import "fmt"

// ValidateGraph checks a run's job set before insertion: every edge must
// reference a job in the set, predecessor and successor sets must mirror each
// other, and the graph must be acyclic (Kahn's algorithm).
func ValidateGraph(jobs []*Job) error {
	if len(jobs) == 0 {
		return ErrEmptyRun
	}

	byID := make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		if _, ok := byID[j.JobID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, j.JobID)
		}
		byID[j.JobID] = j
	}

	inDeg := make(map[string]int, len(jobs))
	for _, j := range jobs {
		inDeg[j.JobID] = len(j.Predecessors)
		for _, pred := range j.Predecessors {
			p, ok := byID[pred]
			if !ok {
				return fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, pred, j.JobID)
			}
			if !contains(p.Successors, j.JobID) {
				return fmt.Errorf("%w: %s lists predecessor %s but is not among its successors", ErrDanglingEdge, j.JobID, pred)
			}
		}
		for _, succ := range j.Successors {
			if _, ok := byID[succ]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, j.JobID, succ)
			}
		}
	}

	var queue []string
	for id, deg := range inDeg {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		processed++

		for _, succ := range byID[id].Successors {
			inDeg[succ]--
			if inDeg[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if processed != len(jobs) {
		return fmt.Errorf("%w: reached %d of %d jobs", ErrGraphCycle, processed, len(jobs))
	}
	return nil
}

func contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}
