// Package adapters provides factor persistence and the default regression.
package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"risk_backend/internal/feature/factors/domain/entity"
	"risk_backend/internal/feature/factors/usecase"
)

type definitionGorm struct {
	db *gorm.DB
}

var _ usecase.DefinitionRepository = (*definitionGorm)(nil)

func NewDefinitionRepository(db *gorm.DB) *definitionGorm {
	return &definitionGorm{db: db}
}

func (r *definitionGorm) UpsertBatch(ctx context.Context, defs []entity.FactorDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	// DoNothing keeps seeding idempotent without touching existing rows.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&defs).Error
}

func (r *definitionGorm) ListAll(ctx context.Context) ([]entity.FactorDefinition, error) {
	var defs []entity.FactorDefinition
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

type exposureGorm struct {
	db *gorm.DB
}

var _ usecase.ExposureRepository = (*exposureGorm)(nil)

func NewExposureRepository(db *gorm.DB) *exposureGorm {
	return &exposureGorm{db: db}
}

func (r *exposureGorm) UpsertBatch(ctx context.Context, exposures []entity.FactorExposure) error {
	if len(exposures) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "factor_code"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"beta", "r_squared", "sample_size", "method"}),
	}).Create(&exposures).Error
}

func (r *exposureGorm) ForSymbolDate(ctx context.Context, symbol string, date time.Time) (entity.FactorSet, error) {
	var rows []entity.FactorExposure
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date = ?", symbol, date).
		Order("factor_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *exposureGorm) ForSymbol(ctx context.Context, symbol string) ([]entity.FactorExposure, error) {
	var rows []entity.FactorExposure
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("date ASC, factor_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *exposureGorm) SymbolsWithExposure(ctx context.Context, symbols []string, date time.Time) (map[string]bool, error) {
	out := make(map[string]bool, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	var have []string
	err := r.db.WithContext(ctx).
		Model(&entity.FactorExposure{}).
		Where("symbol IN ? AND date = ?", symbols, date).
		Distinct().
		Pluck("symbol", &have).Error
	if err != nil {
		return nil, err
	}
	for _, s := range have {
		out[s] = true
	}
	return out, nil
}

func (r *exposureGorm) ListSince(ctx context.Context, since time.Time) ([]entity.FactorExposure, error) {
	var rows []entity.FactorExposure
	err := r.db.WithContext(ctx).
		Where("date >= ?", since).
		Order("symbol ASC, date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
