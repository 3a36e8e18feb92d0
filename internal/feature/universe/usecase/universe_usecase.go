// Package usecase implements symbol universe lifecycle operations.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"risk_backend/internal/feature/universe/domain/entity"
)

// ErrInvalidTransition is returned when a status change would violate the
// symbol lifecycle.
var ErrInvalidTransition = errors.New("invalid symbol status transition")

// SymbolRepository abstracts symbol persistence. Following Go convention,
// the interface is defined by the consumer (usecase), not the provider.
type SymbolRepository interface {
	FindByCode(ctx context.Context, code string) (*entity.SymbolRecord, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
	Create(ctx context.Context, rec *entity.SymbolRecord) error
	UpdateStatus(ctx context.Context, code string, status entity.Status, lastSeen time.Time) error
}

// ErrNotFound is returned by repositories when no symbol matches.
var ErrNotFound = errors.New("symbol not found")

// UniverseUsecase manages which symbols belong to the tradable universe.
type UniverseUsecase struct {
	symbols SymbolRepository
}

func NewUniverseUsecase(symbols SymbolRepository) *UniverseUsecase {
	return &UniverseUsecase{symbols: symbols}
}

// Normalize canonicalizes a user-supplied ticker.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListActiveCodes returns the codes of all active symbols.
func (u *UniverseUsecase) ListActiveCodes(ctx context.Context) ([]string, error) {
	return u.symbols.ListActiveCodes(ctx)
}

// IsActive reports whether the symbol is already active in the universe.
func (u *UniverseUsecase) IsActive(ctx context.Context, code string) (bool, error) {
	rec, err := u.symbols.FindByCode(ctx, Normalize(code))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Status == entity.StatusActive, nil
}

// RegisterPending records a previously-unseen symbol as pending. It is a
// no-op for symbols that already exist in any state.
func (u *UniverseUsecase) RegisterPending(ctx context.Context, code string, source entity.Source) error {
	code = Normalize(code)
	if _, err := u.symbols.FindByCode(ctx, code); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	now := time.Now().UTC()
	return u.symbols.Create(ctx, &entity.SymbolRecord{
		Code:      code,
		Status:    entity.StatusPending,
		Source:    source,
		FirstSeen: now,
		LastSeen:  now,
	})
}

// Transition moves a symbol to the given status, enforcing lifecycle rules.
func (u *UniverseUsecase) Transition(ctx context.Context, code string, next entity.Status) error {
	code = Normalize(code)
	rec, err := u.symbols.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if rec.Status == next {
		return nil
	}
	if !rec.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, rec.Status, next, code)
	}
	return u.symbols.UpdateStatus(ctx, code, next, time.Now().UTC())
}

// Activate marks a symbol active, registering it first if unseen.
func (u *UniverseUsecase) Activate(ctx context.Context, code string, source entity.Source) error {
	if err := u.RegisterPending(ctx, code, source); err != nil {
		return err
	}
	return u.Transition(ctx, code, entity.StatusActive)
}

// EnsureSeeded registers and activates a fixed symbol list (the benchmark
// regressors). Idempotent: symbols already present keep their state.
func (u *UniverseUsecase) EnsureSeeded(ctx context.Context, codes []string) error {
	for _, code := range codes {
		active, err := u.IsActive(ctx, code)
		if err != nil {
			return err
		}
		if active {
			continue
		}
		if err := u.Activate(ctx, code, entity.SourceBatchSeed); err != nil {
			return err
		}
	}
	return nil
}
