// Package features derives price statistics from a close series.
package features

import (
	"math"

	"StockSentinel/internal/domain/models"
)

// TradingDaysPerYear annualizes daily volatility.
const TradingDaysPerYear = 252

// CloseStats summarizes a daily close series.
type CloseStats struct {
	First      float64
	Last       float64
	High       float64
	Low        float64
	Change     float64 // fractional change first to last
	Volatility float64 // annualized realized volatility, 0 when too short
}

// LogReturns computes r_t = ln(C_t / C_{t-1}). Non-positive closes yield a
// zero return. It returns nil for fewer than two points.
func LogReturns(points []models.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1].Close, points[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample standard deviation of the last
// window returns.
func RealizedVolatility(returns []float64, window int, periodsPerYear float64) float64 {
	if window <= 1 || len(returns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range returns[len(returns)-window:] {
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * periodsPerYear)
}

// Stats summarizes points, which must be ordered oldest first. ok is false
// when there are fewer than two usable closes.
func Stats(points []models.PricePoint) (CloseStats, bool) {
	valid := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Close > 0 && !math.IsNaN(p.Close) {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return CloseStats{}, false
	}

	st := CloseStats{
		First: valid[0].Close,
		Last:  valid[len(valid)-1].Close,
		High:  valid[0].Close,
		Low:   valid[0].Close,
	}
	for _, p := range valid[1:] {
		st.High = math.Max(st.High, p.Close)
		st.Low = math.Min(st.Low, p.Close)
	}
	st.Change = st.Last/st.First - 1

	returns := LogReturns(valid)
	st.Volatility = RealizedVolatility(returns, len(returns), TradingDaysPerYear)
	return st, true
}
