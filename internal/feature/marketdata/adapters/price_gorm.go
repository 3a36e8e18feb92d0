// Package adapters provides market data persistence and provider clients.
package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"risk_backend/internal/feature/marketdata/domain/entity"
	"risk_backend/internal/feature/marketdata/usecase"
)

type priceGorm struct {
	db *gorm.DB
}

var _ usecase.PriceRepository = (*priceGorm)(nil)

func NewPriceRepository(db *gorm.DB) *priceGorm {
	return &priceGorm{db: db}
}

func (r *priceGorm) UpsertBatch(ctx context.Context, points []entity.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).Create(&points).Error
}

func (r *priceGorm) History(ctx context.Context, symbol string, limit int) ([]entity.PricePoint, error) {
	var rows []entity.PricePoint
	q := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	// Query newest-first to honor the limit, return ascending.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (r *priceGorm) ForDate(ctx context.Context, symbol string, date time.Time) (*entity.PricePoint, error) {
	var row entity.PricePoint
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date = ?", symbol, date).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrPriceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *priceGorm) CountForDate(ctx context.Context, date time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.PricePoint{}).
		Where("date = ?", date).
		Count(&count).Error
	return count, err
}

func (r *priceGorm) LatestDate(ctx context.Context) (time.Time, error) {
	var row entity.PricePoint
	err := r.db.WithContext(ctx).
		Order("date DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, usecase.ErrPriceNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return row.Date, nil
}

func (r *priceGorm) ListSince(ctx context.Context, since time.Time) ([]entity.PricePoint, error) {
	var rows []entity.PricePoint
	err := r.db.WithContext(ctx).
		Where("date >= ?", since).
		Order("symbol ASC, date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
