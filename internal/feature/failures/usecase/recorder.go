// Package usecase implements the partial-failure recorder.
package usecase

import (
	"context"
	"log/slog"

	"risk_backend/internal/feature/failures/domain/entity"
)

// FailureRepository abstracts failure record persistence.
type FailureRepository interface {
	Create(ctx context.Context, rec *entity.FailureRecord) error
	Recent(ctx context.Context, limit int) ([]entity.FailureRecord, error)
}

// Recorder writes partial failures for operator visibility. Recording is
// best-effort and observational; it never alters batch control flow, so a
// failed write is logged and swallowed.
type Recorder struct {
	repo FailureRepository
}

func NewRecorder(repo FailureRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record persists one failure. A nil err is ignored.
func (r *Recorder) Record(ctx context.Context, scope entity.Scope, key, runID string, err error) {
	if err == nil {
		return
	}
	slog.Warn("partial failure", "scope", scope, "key", key, "run_id", runID, "error", err)

	rec := &entity.FailureRecord{
		Scope:   scope,
		Key:     key,
		RunID:   runID,
		Message: err.Error(),
	}
	if werr := r.repo.Create(ctx, rec); werr != nil {
		slog.Error("failed to persist failure record", "scope", scope, "key", key, "error", werr)
	}
}

// Recent lists the newest failure records for the admin surface.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]entity.FailureRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.repo.Recent(ctx, limit)
}
