package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

// RunRegistry implementation. Keeping the registry in the same database as
// the job records means a scheduler restart resumes tracking where the
// previous process stopped.

// Register adds a run in its initial state.
func (s *GormStore) Register(ctx context.Context, run *core.Run) error {
	if run.Status == "" {
		run.Status = core.RunActive
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&core.Run{}).Where("run_id = ?", run.RunID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return core.ErrDuplicateRun
		}
		return tx.Create(run).Error
	})
}

// GetRun retrieves a run by ID.
func (s *GormStore) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run core.Run
	err := s.db.WithContext(ctx).First(&run, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// TransitionRun performs the compare-and-swap run status update, mirroring
// TransitionStatus for jobs.
func (s *GormStore) TransitionRun(ctx context.Context, runID string, from, to core.RunStatus) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Run{}).
		Where("run_id = ? AND status = ?", runID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FinishRun stamps the run as retired.
func (s *GormStore) FinishRun(ctx context.Context, runID string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Run{}).
		Where("run_id = ?", runID).
		Update("finished_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return nil
}

// ListActiveRuns returns runs not yet retired.
func (s *GormStore) ListActiveRuns(ctx context.Context) ([]*core.Run, error) {
	var runs []*core.Run
	err := s.db.WithContext(ctx).
		Where("finished_at IS NULL").
		Order("started_at ASC").
		Find(&runs).Error
	return runs, err
}

// ListRuns returns every known run, newest first.
func (s *GormStore) ListRuns(ctx context.Context) ([]*core.Run, error) {
	var runs []*core.Run
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Find(&runs).Error
	return runs, err
}
