package scoring

import (
	"fmt"
	"math"
)

// Quality sub-weights and the native scale of quality indicators.
const (
	QualityRatingWeight   = 0.6
	PastPerformanceWeight = 0.4
	IndicatorScale        = 5.0
)

// rangeEpsilon is how close min and max must be to count as one value.
const rangeEpsilon = 1e-9

// PriceMethod selects the price normalization curve.
type PriceMethod string

// Price normalization methods. All are non-increasing in price.
const (
	PriceInverseLinear PriceMethod = "inverse_linear"
	PriceInverseLog    PriceMethod = "inverse_log"
	PriceRatio         PriceMethod = "ratio"
)

// ParsePriceMethod validates a method name; empty means inverse_linear.
func ParsePriceMethod(s string) (PriceMethod, error) {
	switch m := PriceMethod(s); m {
	case "":
		return PriceInverseLinear, nil
	case PriceInverseLinear, PriceInverseLog, PriceRatio:
		return m, nil
	}
	return "", fmt.Errorf("unknown price method %q (must be inverse_linear, inverse_log, or ratio)", s)
}

// Range is the observed span of one raw attribute across a bid set.
type Range struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// NewRange returns a range with explicit bounds, as used for previews.
func NewRange(lo, hi float64) Range {
	if lo > hi {
		lo, hi = hi, lo
	}
	return Range{Min: lo, Max: hi, Count: 2}
}

// RangeOf returns the span of values.
func RangeOf(values []float64) Range {
	var r Range
	for _, v := range values {
		r = r.Extend(v)
	}
	return r
}

// Extend widens r to include v.
func (r Range) Extend(v float64) Range {
	if r.Count == 0 {
		return Range{Min: v, Max: v, Count: 1}
	}
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
	r.Count++
	return r
}

// Degenerate reports whether the range has no usable spread, in which case
// every value scores full marks.
func (r Range) Degenerate() bool {
	return r.Count == 0 || math.Abs(r.Max-r.Min) < rangeEpsilon
}

// Linear maps v onto [0,max] with higher raw values scoring higher.
func Linear(v float64, r Range, maxScore float64) float64 {
	if r.Degenerate() {
		return maxScore
	}
	return clamp(maxScore*(v-r.Min)/(r.Max-r.Min), maxScore)
}

// InverseLinear maps v onto [0,max] with lower raw values scoring higher.
func InverseLinear(v float64, r Range, maxScore float64) float64 {
	if r.Degenerate() {
		return maxScore
	}
	return clamp(maxScore*(1-(v-r.Min)/(r.Max-r.Min)), maxScore)
}

// Price scores a price within r using method.
func Price(price float64, r Range, method PriceMethod, maxScore float64) float64 {
	switch method {
	case PriceInverseLog:
		if r.Min <= 0 || price <= 0 {
			return InverseLinear(price, r, maxScore)
		}
		if r.Degenerate() {
			return maxScore
		}
		lo, hi := math.Log(r.Min), math.Log(r.Max)
		return clamp(maxScore*(1-(math.Log(price)-lo)/(hi-lo)), maxScore)
	case PriceRatio:
		if r.Min <= 0 || price <= 0 {
			return InverseLinear(price, r, maxScore)
		}
		if r.Degenerate() {
			return maxScore
		}
		return clamp(maxScore*r.Min/price, maxScore)
	default:
		return InverseLinear(price, r, maxScore)
	}
}

// Delivery scores a lead time in days; shorter is better.
func Delivery(days float64, r Range, maxScore float64) float64 {
	return InverseLinear(days, r, maxScore)
}

// Quality combines the quality rating and past performance, each scaled
// from [0,5] to [0,max]. It returns false when either indicator is absent.
func Quality(rating, past *float64, maxScore float64) (float64, bool) {
	if rating == nil || past == nil {
		return 0, false
	}
	return scaleIndicator(*rating, maxScore)*QualityRatingWeight +
		scaleIndicator(*past, maxScore)*PastPerformanceWeight, true
}

func scaleIndicator(v, maxScore float64) float64 {
	return clamp(v, IndicatorScale) / IndicatorScale * maxScore
}

func clamp(v, maxScore float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > maxScore:
		return maxScore
	}
	return v
}
