package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aviary-sim/jobgraph/pkg/core"
	"github.com/aviary-sim/jobgraph/pkg/security"
)

// GormStore implements core.JobStore and core.RunRegistry using GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for callers that share the database,
// such as the gorm-backed queue.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.Run{})
}

// Insert bulk-registers a run's DAG. The whole batch is rejected with
// ErrDuplicateJob if any (run_id, job_id) already exists.
func (s *GormStore) Insert(ctx context.Context, jobs []*core.Job) error {
	if len(jobs) == 0 {
		return core.ErrEmptyRun
	}

	for _, j := range jobs {
		if j.Status == "" {
			j.Status = core.StatusPending
		}
		j.MaxAttempts = security.ClampAttempts(j.MaxAttempts)
		j.PredCount = len(j.Predecessors)
		j.SuccCount = len(j.Successors)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.JobID
		}

		var count int64
		err := tx.Model(&core.Job{}).
			Where("run_id = ?", jobs[0].RunID).
			Where("job_id IN ?", ids).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return core.ErrDuplicateJob
		}

		return tx.Create(&jobs).Error
	})
}

// Get retrieves a job by (run_id, job_id).
func (s *GormStore) Get(ctx context.Context, runID, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).
		First(&job, "run_id = ? AND job_id = ?", runID, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListReadySources returns pending jobs with an empty predecessor set.
func (s *GormStore) ListReadySources(ctx context.Context, runID string) ([]*core.Job, error) {
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Where("pred_count = 0").
		Where("status = ?", core.StatusPending).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListSuccessors returns the jobs named in the given job's successor set.
func (s *GormStore) ListSuccessors(ctx context.Context, runID, jobID string) ([]*core.Job, error) {
	job, err := s.Get(ctx, runID, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Successors) == 0 {
		return nil, nil
	}

	var jobs []*core.Job
	err = s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Where("job_id IN ?", job.Successors).
		Find(&jobs).Error
	return jobs, err
}

// ListSinks returns jobs with no successors.
func (s *GormStore) ListSinks(ctx context.Context, runID string) ([]*core.Job, error) {
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Where("succ_count = 0").
		Find(&jobs).Error
	return jobs, err
}

// ListJobs returns every job of the run.
func (s *GormStore) ListJobs(ctx context.Context, runID string) ([]*core.Job, error) {
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// TransitionStatus performs the compare-and-swap status update. The WHERE
// clause carries the expected status; a concurrent transition leaves
// RowsAffected at zero and the call reports false without error.
func (s *GormStore) TransitionStatus(ctx context.Context, runID, jobID string, from, to core.JobStatus) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("run_id = ? AND job_id = ? AND status = ?", runID, jobID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AllPredecessorsDone evaluates the join invariant with a single consistent
// count: the job is ready when done-predecessors equal total predecessors.
func (s *GormStore) AllPredecessorsDone(ctx context.Context, runID, jobID string) (bool, error) {
	job, err := s.Get(ctx, runID, jobID)
	if err != nil {
		return false, err
	}
	if len(job.Predecessors) == 0 {
		return true, nil
	}

	var done int64
	err = s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("run_id = ?", runID).
		Where("job_id IN ?", job.Predecessors).
		Where("status = ?", core.StatusDone).
		Count(&done).Error
	if err != nil {
		return false, err
	}
	return done == int64(len(job.Predecessors)), nil
}

// RecordDispatch stamps the dispatch time and bumps the attempt counter.
func (s *GormStore) RecordDispatch(ctx context.Context, runID, jobID string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("run_id = ? AND job_id = ?", runID, jobID).
		Updates(map[string]any{
			"dispatched_at": at,
			"attempt":       gorm.Expr("attempt + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	return nil
}

// RecordResult stores worker-reported outcome metadata. Error messages are
// sanitized before storage.
func (s *GormStore) RecordResult(ctx context.Context, runID, jobID, resultRef, errMsg string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("run_id = ? AND job_id = ?", runID, jobID).
		Updates(map[string]any{
			"result_ref":   resultRef,
			"last_error":   security.SanitizeErrorMessage(errMsg),
			"completed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", core.ErrJobNotFound, runID, jobID)
	}
	return nil
}

// CountByStatus returns how many jobs of the run hold the status.
func (s *GormStore) CountByStatus(ctx context.Context, runID string, status core.JobStatus) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("run_id = ?", runID).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// ListInProgressBefore returns in-progress jobs dispatched before the cutoff.
func (s *GormStore) ListInProgressBefore(ctx context.Context, cutoff time.Time) ([]*core.Job, error) {
	var jobs []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusInProgress).
		Where("dispatched_at IS NOT NULL AND dispatched_at < ?", cutoff).
		Find(&jobs).Error
	return jobs, err
}
