package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// VariancePercent returns |actual - expected| / expected * 100. A zero
// expected value gives 0 when actual is also zero, otherwise 100.
func VariancePercent(expected, actual decimal.Decimal) float64 {
	diff := actual.Sub(expected).Abs()
	if expected.IsZero() {
		if diff.IsZero() {
			return 0
		}
		return 100
	}
	pct, _ := diff.Div(expected.Abs()).Mul(hundred).Float64()
	return pct
}

// WithinAmount reports |a - b| <= tolerance. The boundary is inclusive.
func WithinAmount(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// PercentOf returns amount * pct / 100
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// TruncateDay drops the time of day and returns the calendar date at UTC midnight
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(math.Round(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24))
}

// AbsDays returns the unsigned number of calendar days between a and b
func AbsDays(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// RoundScore rounds a score to two decimals so reruns compare byte-identical
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

// ClampScore limits score to [0, 100]
func ClampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
