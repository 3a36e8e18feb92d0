// Package usecase defines factor persistence contracts and the definition seeder.
package usecase

import (
	"context"
	"errors"
	"time"

	"risk_backend/internal/feature/factors/domain/entity"
	marketentity "risk_backend/internal/feature/marketdata/domain/entity"
)

// ErrExposureNotFound is returned when no exposure row matches a query.
var ErrExposureNotFound = errors.New("factor exposure not found")

// DefinitionRepository abstracts factor definition persistence.
type DefinitionRepository interface {
	// UpsertBatch creates missing definitions; existing codes are untouched.
	UpsertBatch(ctx context.Context, defs []entity.FactorDefinition) error
	ListAll(ctx context.Context) ([]entity.FactorDefinition, error)
}

// ExposureRepository abstracts factor exposure persistence.
type ExposureRepository interface {
	// UpsertBatch overwrites on the (symbol, factor, date) key.
	UpsertBatch(ctx context.Context, exposures []entity.FactorExposure) error
	// ForSymbolDate returns the exposures of one symbol on one date.
	ForSymbolDate(ctx context.Context, symbol string, date time.Time) (entity.FactorSet, error)
	// ForSymbol returns all exposures of one symbol, ascending by date.
	ForSymbol(ctx context.Context, symbol string) ([]entity.FactorExposure, error)
	// SymbolsWithExposure filters symbols to the subset that has at least
	// one exposure row on date.
	SymbolsWithExposure(ctx context.Context, symbols []string, date time.Time) (map[string]bool, error)
	// ListSince returns all exposures dated on or after since. Used by the
	// cache warm-up.
	ListSince(ctx context.Context, since time.Time) ([]entity.FactorExposure, error)
}

// Calculator is the external factor-regression collaborator. Given a symbol's
// price series and the benchmark series it returns the symbol's exposures for
// the calculation date.
type Calculator interface {
	Compute(ctx context.Context, symbol string, date time.Time,
		prices []marketentity.PricePoint,
		benchmarks map[string][]marketentity.PricePoint) (entity.FactorSet, error)
}

// DefaultDefinitions is the factor set seeded before any exposure write.
func DefaultDefinitions() []entity.FactorDefinition {
	return []entity.FactorDefinition{
		{Code: "market", Name: "Broad market beta", Benchmark: "SPY"},
		{Code: "growth", Name: "Growth tilt", Benchmark: "QQQ"},
		{Code: "small_cap", Name: "Small cap tilt", Benchmark: "IWM"},
		{Code: "rates", Name: "Rates sensitivity", Benchmark: "TLT"},
	}
}

// Seeder idempotently installs the factor definitions. Seeding is a
// prerequisite to any exposure write: exposure rows reference definitions by
// code.
type Seeder struct {
	defs DefinitionRepository
}

func NewSeeder(defs DefinitionRepository) *Seeder {
	return &Seeder{defs: defs}
}

// Ensure seeds the default definitions. A no-op when already present.
func (s *Seeder) Ensure(ctx context.Context) error {
	return s.defs.UpsertBatch(ctx, DefaultDefinitions())
}
