// Package adapters provides the gorm-backed symbol repository.
package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"risk_backend/internal/feature/universe/domain/entity"
	"risk_backend/internal/feature/universe/usecase"
)

type symbolGorm struct {
	db *gorm.DB
}

var _ usecase.SymbolRepository = (*symbolGorm)(nil)

func NewSymbolRepository(db *gorm.DB) *symbolGorm {
	return &symbolGorm{db: db}
}

func (r *symbolGorm) FindByCode(ctx context.Context, code string) (*entity.SymbolRecord, error) {
	var rec entity.SymbolRecord
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *symbolGorm) ListActiveCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&entity.SymbolRecord{}).
		Where("status = ?", entity.StatusActive).
		Order("code ASC").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *symbolGorm) Create(ctx context.Context, rec *entity.SymbolRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *symbolGorm) UpdateStatus(ctx context.Context, code string, status entity.Status, lastSeen time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.SymbolRecord{}).
		Where("code = ?", code).
		Updates(map[string]any{"status": status, "last_seen": lastSeen}).Error
}
