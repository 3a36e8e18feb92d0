// Package usecase implements portfolio valuation and the dependent refresh
// batch.
package usecase

import (
	"context"
	"errors"
	"time"

	"risk_backend/internal/feature/portfolio/domain/entity"
)

// ErrSnapshotNotFound is returned when a portfolio has no snapshot matching
// a query.
var ErrSnapshotNotFound = errors.New("portfolio snapshot not found")

// ErrPortfolioNotFound is returned when no portfolio matches a query.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// PortfolioRepository abstracts portfolio persistence.
type PortfolioRepository interface {
	ListAll(ctx context.Context) ([]entity.Portfolio, error)
	FindByID(ctx context.Context, id uint) (*entity.Portfolio, error)
}

// PositionRepository abstracts position persistence.
type PositionRepository interface {
	ForPortfolio(ctx context.Context, portfolioID uint) ([]entity.Position, error)
	// DistinctSymbols returns the deduplicated symbols across all open
	// positions. The symbol batch prices held symbols even when they are
	// outside the active universe.
	DistinctSymbols(ctx context.Context) ([]string, error)
}

// SnapshotRepository abstracts snapshot persistence. Snapshots are
// append-only: exactly one row per (portfolio, date).
type SnapshotRepository interface {
	Create(ctx context.Context, snap *entity.PortfolioSnapshot) error
	Exists(ctx context.Context, portfolioID uint, date time.Time) (bool, error)
	// LatestDate returns the most recent snapshot date for the portfolio,
	// or ErrSnapshotNotFound.
	LatestDate(ctx context.Context, portfolioID uint) (time.Time, error)
	ForPortfolio(ctx context.Context, portfolioID uint, limit int) ([]entity.PortfolioSnapshot, error)
}

// PortfolioExposureRepository abstracts aggregated exposure persistence.
type PortfolioExposureRepository interface {
	// UpsertBatch overwrites on the (portfolio, factor, date) key.
	UpsertBatch(ctx context.Context, exposures []entity.PortfolioExposure) error
	ForPortfolioDate(ctx context.Context, portfolioID uint, date time.Time) ([]entity.PortfolioExposure, error)
}
