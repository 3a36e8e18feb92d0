// Package entity defines the risk factor domain models.
package entity

import "time"

// FactorDefinition names a risk factor and the benchmark series it regresses
// against. Definitions are seeded once and referenced by every exposure row.
type FactorDefinition struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:32;not null;uniqueIndex"`
	Name      string    `gorm:"size:255;not null"`
	Benchmark string    `gorm:"size:20;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (FactorDefinition) TableName() string {
	return "factor_definitions"
}

// FactorExposure is one symbol's regression sensitivity to one factor on one
// calculation date. Later dates supersede earlier ones; rows are never deleted.
type FactorExposure struct {
	ID         uint      `gorm:"primaryKey"`
	Symbol     string    `gorm:"size:20;not null;uniqueIndex:exp_sym_factor_date,priority:1"`
	FactorCode string    `gorm:"size:32;not null;uniqueIndex:exp_sym_factor_date,priority:2"`
	Date       time.Time `gorm:"not null;uniqueIndex:exp_sym_factor_date,priority:3;index"`

	Beta       float64 `gorm:"not null"`
	RSquared   float64 `gorm:"not null"`
	SampleSize int     `gorm:"not null"`
	Method     string  `gorm:"size:32;not null"`
}

func (FactorExposure) TableName() string {
	return "factor_exposures"
}

// FactorSet is the full set of exposures computed for one symbol on one date.
type FactorSet []FactorExposure

// ByCode returns the exposure for a factor code, if present.
func (fs FactorSet) ByCode(code string) (FactorExposure, bool) {
	for _, e := range fs {
		if e.FactorCode == code {
			return e, true
		}
	}
	return FactorExposure{}, false
}
