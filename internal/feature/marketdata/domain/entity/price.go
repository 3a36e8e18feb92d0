// Package entity defines the market data domain models.
package entity

import "time"

// PricePoint is one OHLCV observation for a symbol on a trading day.
type PricePoint struct {
	ID     uint      `gorm:"primaryKey"`
	Symbol string    `gorm:"size:20;not null;uniqueIndex:price_sym_date,priority:1"`
	Date   time.Time `gorm:"not null;uniqueIndex:price_sym_date,priority:2;index"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume int64   `gorm:"not null;default:0"`
}

func (PricePoint) TableName() string {
	return "price_points"
}
