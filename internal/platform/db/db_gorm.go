// Package db opens the postgres connection and runs schema migration.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	batchentity "risk_backend/internal/feature/batch/domain/entity"
	factorentity "risk_backend/internal/feature/factors/domain/entity"
	failureentity "risk_backend/internal/feature/failures/domain/entity"
	marketentity "risk_backend/internal/feature/marketdata/domain/entity"
	portfolioentity "risk_backend/internal/feature/portfolio/domain/entity"
	universeentity "risk_backend/internal/feature/universe/domain/entity"
)

// Open connects to postgres with a bounded retry loop. The database is
// usually starting alongside the process in container deployments, so a few
// connection refusals at boot are expected.
func Open(dsn string, runMigration bool) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	deadline := time.Now().Add(60 * time.Second)
	for {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("db connect failed after 60s: %w", err)
		}
		slog.Warn("db connect failed, retrying", "error", err)
		time.Sleep(3 * time.Second)
	}

	if runMigration {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return db, nil
}

// Migrate creates or updates the schema for every persistent entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&universeentity.SymbolRecord{},
		&marketentity.PricePoint{},
		&factorentity.FactorDefinition{},
		&factorentity.FactorExposure{},
		&portfolioentity.Portfolio{},
		&portfolioentity.Position{},
		&portfolioentity.PortfolioSnapshot{},
		&portfolioentity.PortfolioExposure{},
		&batchentity.BatchRun{},
		&failureentity.FailureRecord{},
	)
}
