package usecase

import (
	"context"
	"errors"
	"time"

	"risk_backend/internal/shared/calendar"
)

// AlertLevel grades how stale the universe's price data is.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// FreshnessStatus is the observational staleness report for the admin surface.
type FreshnessStatus struct {
	LatestDate  time.Time  `json:"latest_date"`
	StaleDays   int        `json:"stale_trading_days"`
	Level       AlertLevel `json:"level"`
	HasAnyPrice bool       `json:"has_any_price"`
}

// FreshnessMonitor computes trading-day staleness of the latest stored
// price data. Purely observational: it never alters batch control flow.
type FreshnessMonitor struct {
	prices PriceRepository
	cal    *calendar.Calendar
}

func NewFreshnessMonitor(prices PriceRepository, cal *calendar.Calendar) *FreshnessMonitor {
	return &FreshnessMonitor{prices: prices, cal: cal}
}

// CurrentStaleness grades the latest price date against ref. An empty store
// reports critical.
func (f *FreshnessMonitor) CurrentStaleness(ctx context.Context, ref time.Time) (FreshnessStatus, error) {
	latest, err := f.prices.LatestDate(ctx)
	if errors.Is(err, ErrPriceNotFound) {
		return FreshnessStatus{Level: AlertCritical}, nil
	}
	if err != nil {
		return FreshnessStatus{}, err
	}

	stale := f.cal.Staleness(latest, ref)
	level := AlertNone
	switch {
	case stale >= 2:
		level = AlertCritical
	case stale == 1:
		level = AlertWarning
	}

	return FreshnessStatus{
		LatestDate:  latest,
		StaleDays:   stale,
		Level:       level,
		HasAnyPrice: true,
	}, nil
}
