// Package adapters provides the gorm-backed failure record repository.
package adapters

import (
	"context"

	"gorm.io/gorm"

	"risk_backend/internal/feature/failures/domain/entity"
	"risk_backend/internal/feature/failures/usecase"
)

type failureGorm struct {
	db *gorm.DB
}

var _ usecase.FailureRepository = (*failureGorm)(nil)

func NewFailureRepository(db *gorm.DB) *failureGorm {
	return &failureGorm{db: db}
}

func (r *failureGorm) Create(ctx context.Context, rec *entity.FailureRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *failureGorm) Recent(ctx context.Context, limit int) ([]entity.FailureRecord, error) {
	var rows []entity.FailureRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
