package adapters

import (
	"context"
	"time"

	"risk_backend/internal/feature/factors/domain/entity"
	"risk_backend/internal/feature/factors/usecase"
	marketentity "risk_backend/internal/feature/marketdata/domain/entity"
)

// minSampleSize is the fewest paired return observations accepted for a
// regression; factors with less history are skipped rather than reported
// with meaningless coefficients.
const minSampleSize = 20

// OLSCalculator is the built-in Calculator: a per-factor univariate OLS beta
// of symbol returns against the factor's benchmark returns. Deployments with
// a richer regression engine inject their own Calculator instead.
type OLSCalculator struct {
	defs []entity.FactorDefinition
}

var _ usecase.Calculator = (*OLSCalculator)(nil)

func NewOLSCalculator(defs []entity.FactorDefinition) *OLSCalculator {
	return &OLSCalculator{defs: defs}
}

// Compute regresses the symbol's daily returns on each factor benchmark's
// returns, pairing observations by date.
func (c *OLSCalculator) Compute(_ context.Context, symbol string, date time.Time,
	prices []marketentity.PricePoint,
	benchmarks map[string][]marketentity.PricePoint) (entity.FactorSet, error) {

	symReturns := dailyReturns(prices)

	var out entity.FactorSet
	for _, def := range c.defs {
		benchReturns := dailyReturns(benchmarks[def.Benchmark])

		xs, ys := pairByDate(benchReturns, symReturns)
		if len(xs) < minSampleSize {
			continue
		}

		beta, r2 := olsBeta(xs, ys)
		out = append(out, entity.FactorExposure{
			Symbol:     symbol,
			FactorCode: def.Code,
			Date:       date,
			Beta:       beta,
			RSquared:   r2,
			SampleSize: len(xs),
			Method:     "ols",
		})
	}
	return out, nil
}

type datedReturn struct {
	date time.Time
	ret  float64
}

func dailyReturns(prices []marketentity.PricePoint) []datedReturn {
	var out []datedReturn
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, datedReturn{
			date: prices[i].Date,
			ret:  (prices[i].Close - prev) / prev,
		})
	}
	return out
}

func pairByDate(xs, ys []datedReturn) ([]float64, []float64) {
	byDate := make(map[time.Time]float64, len(xs))
	for _, x := range xs {
		byDate[x.date] = x.ret
	}
	var px, py []float64
	for _, y := range ys {
		if x, ok := byDate[y.date]; ok {
			px = append(px, x)
			py = append(py, y.ret)
		}
	}
	return px, py
}

// olsBeta returns the slope and r-squared of y regressed on x.
func olsBeta(xs, ys []float64) (beta, r2 float64) {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var covXY, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		covXY += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 {
		return 0, 0
	}
	beta = covXY / varX
	if varY == 0 {
		return beta, 0
	}
	r2 = (covXY * covXY) / (varX * varY)
	return beta, r2
}
