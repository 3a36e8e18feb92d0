// Package entity defines the portfolio domain models.
package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass categorizes a position for valuation and factor aggregation.
// Private positions contribute to portfolio value but never to factor
// exposures, because they have no market price series to regress.
type AssetClass string

const (
	AssetEquity  AssetClass = "equity"
	AssetETF     AssetClass = "etf"
	AssetPrivate AssetClass = "private"
)

// IsPublic reports whether the asset class carries market prices.
func (a AssetClass) IsPublic() bool {
	switch a {
	case AssetEquity, AssetETF:
		return true
	case AssetPrivate:
		return false
	default:
		return false
	}
}

// Portfolio is a user holding container tracked for valuation and risk.
type Portfolio struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Owner     string    `gorm:"size:255;not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

// Position is one holding inside a portfolio.
type Position struct {
	ID          uint       `gorm:"primaryKey"`
	PortfolioID uint       `gorm:"not null;index"`
	Symbol      string     `gorm:"size:20;not null;index"`
	AssetClass  AssetClass `gorm:"size:16;not null;default:equity"`

	Quantity  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	CostBasis decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Position) TableName() string {
	return "positions"
}

// PortfolioSnapshot is a portfolio's valuation on one date. Exactly one row
// exists per (portfolio, date); re-runs never recreate it.
type PortfolioSnapshot struct {
	ID          uint      `gorm:"primaryKey"`
	PortfolioID uint      `gorm:"not null;uniqueIndex:snap_pf_date,priority:1"`
	Date        time.Time `gorm:"not null;uniqueIndex:snap_pf_date,priority:2;index"`

	TotalValue    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	TotalCost     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PnL           decimal.Decimal `gorm:"column:pnl;type:numeric(30,10);not null"`
	PositionCount int             `gorm:"not null"`

	// PrivateAllocationPct discloses the share of value excluded from
	// factor aggregation, in percent.
	PrivateAllocationPct decimal.Decimal `gorm:"type:numeric(10,4);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}

// PortfolioExposure is the equity-weighted aggregate of symbol-level factor
// exposures for one portfolio, factor and date.
type PortfolioExposure struct {
	ID          uint      `gorm:"primaryKey"`
	PortfolioID uint      `gorm:"not null;uniqueIndex:pexp_pf_factor_date,priority:1"`
	FactorCode  string    `gorm:"size:32;not null;uniqueIndex:pexp_pf_factor_date,priority:2"`
	Date        time.Time `gorm:"not null;uniqueIndex:pexp_pf_factor_date,priority:3"`

	Exposure decimal.Decimal `gorm:"type:numeric(20,10);not null"`
}

func (PortfolioExposure) TableName() string {
	return "portfolio_exposures"
}
