// Package calculator implements the pure amount, date and scoring rules used
// by the matching engine. Nothing here touches storage.
package calculator

import (
	"github.com/mmynk/posrecon/internal/models"
	"github.com/shopspring/decimal"
)

// epsilon keeps PercentDifference defined when both amounts are zero.
var epsilon = decimal.New(1, -9)

// Tolerance is an OR of two limits: a difference passes when it is within
// Absolute currency units or within Percent (a fraction, 0.05 = 5%).
type Tolerance struct {
	Absolute decimal.Decimal
	Percent  float64
}

// AmountDifference returns |a - b|.
func AmountDifference(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}

// PercentDifference returns |a - b| / max(|a|, |b|, ε) as a fraction.
// Negative amounts are valid signed values.
func PercentDifference(a, b decimal.Decimal) float64 {
	base := decimal.Max(a.Abs(), b.Abs(), epsilon)
	pct, _ := AmountDifference(a, b).Div(base).Float64()
	return pct
}

// PercentOf returns |diff| / |base| as a fraction. A zero base yields zero for
// a zero diff and 1 (100%) otherwise.
func PercentOf(diff, base decimal.Decimal) float64 {
	if base.IsZero() {
		if diff.IsZero() {
			return 0
		}
		return 1
	}
	pct, _ := diff.Abs().Div(base.Abs()).Float64()
	return pct
}

// IsWithinAmountTolerance reports whether a and b are close enough under tol.
func IsWithinAmountTolerance(a, b decimal.Decimal, tol Tolerance) bool {
	if AmountDifference(a, b).LessThanOrEqual(tol.Absolute) {
		return true
	}
	return PercentDifference(a, b) <= tol.Percent
}

// IsWithinDifference applies tol to an already computed difference measured
// against base, the form used for group sums.
func IsWithinDifference(diff, base decimal.Decimal, tol Tolerance) bool {
	if diff.Abs().LessThanOrEqual(tol.Absolute) {
		return true
	}
	return PercentOf(diff, base) <= tol.Percent
}

// DayDifference returns the absolute number of calendar days between two dates.
func DayDifference(a, b models.Date) int {
	d := a.DaysBetween(b)
	if d < 0 {
		return -d
	}
	return d
}

// IsWithinDateBuffer reports whether the two dates are at most bufferDays apart.
func IsWithinDateBuffer(a, b models.Date, bufferDays int) bool {
	return DayDifference(a, b) <= bufferDays
}

// AmountsEqual compares two amounts at scale decimal places, so values that
// agree in minor currency units are equal regardless of float residue.
func AmountsEqual(a, b decimal.Decimal, scale int32) bool {
	return a.Round(scale).Equal(b.Round(scale))
}
