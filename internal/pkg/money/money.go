// Package money rounds scores and costs at presentation boundaries.
//
// Scoring runs on float64 throughout; values pass through here only when
// they leave the engine for display or export.
package money

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return Round(v, 2)
}

// Round rounds v half away from zero to places decimal places. NaN and
// infinities are returned unchanged.
func Round(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Format renders v with exactly two decimals, e.g. "13887.13".
func Format(v float64) string {
	if !finite(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Percent returns part/whole*100 rounded to two places, or 0 when whole is 0.
// A non-finite operand yields the plain float quotient.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	if !finite(part) || !finite(whole) {
		return part / whole * 100
	}
	p := decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(decimal.NewFromInt(100))
	f, _ := p.Round(2).Float64()
	return f
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
