// Package num holds the rounding helpers shared by every price calculation.
// Live and replay paths must round identically, so all rounding goes through
// here.
package num

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds x half away from zero to places decimal digits. NaN and
// infinities are returned unchanged.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

// Price rounds to 3 decimals, the precision of every stored price.
func Price(x float64) float64 { return Round(x, 3) }

// Money rounds to cents.
func Money(x float64) float64 { return Round(x, 2) }

// FloorInt truncates a non-negative quantity toward zero. Negative or NaN
// input yields 0.
func FloorInt(x float64) int {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	return int(math.Floor(x))
}
