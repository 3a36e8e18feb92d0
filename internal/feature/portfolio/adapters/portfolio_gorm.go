// Package adapters provides the gorm-backed portfolio repositories.
package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"risk_backend/internal/feature/portfolio/domain/entity"
	"risk_backend/internal/feature/portfolio/usecase"
)

type portfolioGorm struct {
	db *gorm.DB
}

var _ usecase.PortfolioRepository = (*portfolioGorm)(nil)

func NewPortfolioRepository(db *gorm.DB) *portfolioGorm {
	return &portfolioGorm{db: db}
}

func (r *portfolioGorm) ListAll(ctx context.Context) ([]entity.Portfolio, error) {
	var out []entity.Portfolio
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *portfolioGorm) FindByID(ctx context.Context, id uint) (*entity.Portfolio, error) {
	var pf entity.Portfolio
	err := r.db.WithContext(ctx).First(&pf, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pf, nil
}

type positionGorm struct {
	db *gorm.DB
}

var _ usecase.PositionRepository = (*positionGorm)(nil)

func NewPositionRepository(db *gorm.DB) *positionGorm {
	return &positionGorm{db: db}
}

func (r *positionGorm) ForPortfolio(ctx context.Context, portfolioID uint) ([]entity.Position, error) {
	var out []entity.Position
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("symbol").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *positionGorm) DistinctSymbols(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&entity.Position{}).
		Distinct("symbol").
		Order("symbol").
		Pluck("symbol", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

type snapshotGorm struct {
	db *gorm.DB
}

var _ usecase.SnapshotRepository = (*snapshotGorm)(nil)

func NewSnapshotRepository(db *gorm.DB) *snapshotGorm {
	return &snapshotGorm{db: db}
}

func (r *snapshotGorm) Create(ctx context.Context, snap *entity.PortfolioSnapshot) error {
	return r.db.WithContext(ctx).Create(snap).Error
}

func (r *snapshotGorm) Exists(ctx context.Context, portfolioID uint, date time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&entity.PortfolioSnapshot{}).
		Where("portfolio_id = ? AND date = ?", portfolioID, date).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *snapshotGorm) LatestDate(ctx context.Context, portfolioID uint) (time.Time, error) {
	var snap entity.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("date DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, usecase.ErrSnapshotNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return snap.Date, nil
}

func (r *snapshotGorm) ForPortfolio(ctx context.Context, portfolioID uint, limit int) ([]entity.PortfolioSnapshot, error) {
	var out []entity.PortfolioSnapshot
	q := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type portfolioExposureGorm struct {
	db *gorm.DB
}

var _ usecase.PortfolioExposureRepository = (*portfolioExposureGorm)(nil)

func NewPortfolioExposureRepository(db *gorm.DB) *portfolioExposureGorm {
	return &portfolioExposureGorm{db: db}
}

func (r *portfolioExposureGorm) UpsertBatch(ctx context.Context, exposures []entity.PortfolioExposure) error {
	if len(exposures) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "portfolio_id"}, {Name: "factor_code"}, {Name: "date"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"exposure"}),
		}).
		Create(&exposures).Error
}

func (r *portfolioExposureGorm) ForPortfolioDate(ctx context.Context, portfolioID uint, date time.Time) ([]entity.PortfolioExposure, error) {
	var out []entity.PortfolioExposure
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ? AND date = ?", portfolioID, date).
		Order("factor_code").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
