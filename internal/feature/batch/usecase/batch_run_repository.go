package usecase

import (
	"context"
	"errors"
	"time"

	"risk_backend/internal/feature/batch/domain/entity"
)

// ErrRunNotFound is returned when no batch run matches a query.
var ErrRunNotFound = errors.New("batch run not found")

// BatchRunRepository persists batch runs. The rows double as the
// cross-process completion markers: the portfolio refresh process discovers
// the symbol batch's state purely by polling them.
type BatchRunRepository interface {
	Create(ctx context.Context, run *entity.BatchRun) error
	// Finalize sets the terminal status and counts of the run with runID.
	Finalize(ctx context.Context, runID string, status entity.RunStatus, processed, failed int) error
	// LatestSuccessDate returns the most recent target date with a
	// successful run of jobType (the watermark), or ErrRunNotFound.
	LatestSuccessDate(ctx context.Context, jobType entity.JobType) (time.Time, error)
	// CompletionForDate returns the newest terminal run of jobType for the
	// exact target date, or ErrRunNotFound.
	CompletionForDate(ctx context.Context, jobType entity.JobType, date time.Time) (*entity.BatchRun, error)
	// Recent lists the newest runs of jobType.
	Recent(ctx context.Context, jobType entity.JobType, limit int) ([]entity.BatchRun, error)
}
