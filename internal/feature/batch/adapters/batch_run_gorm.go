// Package adapters provides the gorm-backed batch run repository.
package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"risk_backend/internal/feature/batch/domain/entity"
	"risk_backend/internal/feature/batch/usecase"
)

type batchRunGorm struct {
	db *gorm.DB
}

var _ usecase.BatchRunRepository = (*batchRunGorm)(nil)

func NewBatchRunRepository(db *gorm.DB) *batchRunGorm {
	return &batchRunGorm{db: db}
}

func (r *batchRunGorm) Create(ctx context.Context, run *entity.BatchRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *batchRunGorm) Finalize(ctx context.Context, runID string, status entity.RunStatus, processed, failed int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&entity.BatchRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]any{
			"status":          status,
			"items_processed": processed,
			"items_failed":    failed,
			"finished_at":     now,
		}).Error
}

func (r *batchRunGorm) LatestSuccessDate(ctx context.Context, jobType entity.JobType) (time.Time, error) {
	var run entity.BatchRun
	err := r.db.WithContext(ctx).
		Where("job_type = ? AND status IN ?", jobType,
			[]entity.RunStatus{entity.RunCompleted, entity.RunCompletedWithError}).
		Order("target_date DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, usecase.ErrRunNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return run.TargetDate, nil
}

func (r *batchRunGorm) CompletionForDate(ctx context.Context, jobType entity.JobType, date time.Time) (*entity.BatchRun, error) {
	var run entity.BatchRun
	err := r.db.WithContext(ctx).
		Where("job_type = ? AND target_date = ? AND status <> ?", jobType, date, entity.RunRunning).
		Order("id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *batchRunGorm) Recent(ctx context.Context, jobType entity.JobType, limit int) ([]entity.BatchRun, error) {
	var runs []entity.BatchRun
	q := r.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
