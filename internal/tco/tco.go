// Package tco computes total cost of ownership for vendor bids: acquisition
// cost plus maintenance over the asset lifespan, inflated and discounted
// to present value.
package tco

import (
	"fmt"
	"math"

	"github.com/procurepro/tbe/internal/bid"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/money"
)

// DefaultLifespanYears is used when neither the bid nor the configuration
// names a lifespan.
const DefaultLifespanYears = 5

// Config holds the evaluation-level cost assumptions.
type Config struct {
	LifespanYears int     `json:"lifespan_years" yaml:"lifespan_years" envconfig:"TBE_TCO_LIFESPAN_YEARS"`
	InflationRate float64 `json:"inflation_rate" yaml:"inflation_rate" envconfig:"TBE_TCO_INFLATION_RATE"`
	DiscountRate  float64 `json:"discount_rate" yaml:"discount_rate" envconfig:"TBE_TCO_DISCOUNT_RATE"`
}

// DefaultConfig returns a five year lifespan with no inflation or discounting.
func DefaultConfig() Config {
	return Config{LifespanYears: DefaultLifespanYears}
}

// Validate rejects rates at or below -100% and negative lifespans.
func (c Config) Validate() error {
	switch {
	case c.LifespanYears < 0:
		return fmt.Errorf("lifespan_years %d must not be negative", c.LifespanYears)
	case c.InflationRate <= -1:
		return fmt.Errorf("inflation_rate %v must be above -100%%", c.InflationRate)
	case c.DiscountRate <= -1:
		return fmt.Errorf("discount_rate %v must be above -100%%", c.DiscountRate)
	}
	return nil
}

// Lifespan resolves the lifespan for b: product metadata first, then the
// configured fallback, then DefaultLifespanYears.
func (c Config) Lifespan(b *bid.VendorBid) int {
	switch {
	case b.LifespanYears > 0:
		return b.LifespanYears
	case c.LifespanYears > 0:
		return c.LifespanYears
	}
	return DefaultLifespanYears
}

// YearCost is one year of operational cost.
type YearCost struct {
	Year         int     `json:"year"`
	Maintenance  float64 `json:"maintenance"`
	Inflated     float64 `json:"inflated"`
	PresentValue float64 `json:"present_value"`
}

// Breakdown is the auditable TCO of one bid. Cost fields are full
// precision; use Rounded for display.
type Breakdown struct {
	BidID         string     `json:"bid_id"`
	BasePrice     float64    `json:"base_price"`
	Shipping      float64    `json:"shipping"`
	Installation  float64    `json:"installation"`
	Training      float64    `json:"training"`
	Acquisition   float64    `json:"acquisition_cost"`
	Operational   float64    `json:"operational_cost"`
	Total         float64    `json:"total"`
	LifespanYears int        `json:"lifespan_years"`
	Years         []YearCost `json:"years,omitempty"`
	PerYear       float64    `json:"per_year"`
	PerUnit       float64    `json:"per_unit"`
	Score         float64    `json:"score"`
	Rank          int        `json:"rank"`
}

// Calculate computes the TCO of b under cfg.
func Calculate(b *bid.VendorBid, cfg Config) (*Breakdown, error) {
	base, ok := b.Price()
	if !ok {
		return nil, apperrors.InvalidCostInput(b.ID, "bid has no price").WithDetail("field", bid.AttrPrice)
	}

	checks := []struct {
		field string
		v     float64
	}{
		{"base_price", base},
		{"shipping", b.Shipping},
		{"installation", b.Installation},
		{"training", b.Training},
		{"annual_maintenance", b.AnnualMaintenance},
	}
	for _, c := range checks {
		if c.v < 0 || math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return nil, apperrors.InvalidCostInput(b.ID, fmt.Sprintf("%s must be a non-negative number, got %v", c.field, c.v)).
				WithDetail("field", c.field)
		}
	}
	for i, m := range b.Maintenance {
		if m < 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, apperrors.InvalidCostInput(b.ID, fmt.Sprintf("maintenance for year %d must be a non-negative number, got %v", i+1, m)).
				WithDetail("field", "maintenance")
		}
	}
	if cfg.InflationRate <= -1 {
		return nil, apperrors.InvalidCostInput(b.ID, fmt.Sprintf("inflation rate %v must be above -100%%", cfg.InflationRate)).
			WithDetail("field", "inflation_rate")
	}
	if cfg.DiscountRate <= -1 {
		return nil, apperrors.InvalidCostInput(b.ID, fmt.Sprintf("discount rate %v must be above -100%%", cfg.DiscountRate)).
			WithDetail("field", "discount_rate")
	}

	lifespan := cfg.Lifespan(b)
	out := &Breakdown{
		BidID:         b.ID,
		BasePrice:     base,
		Shipping:      b.Shipping,
		Installation:  b.Installation,
		Training:      b.Training,
		LifespanYears: lifespan,
	}
	out.Acquisition = base + b.Shipping + b.Installation + b.Training

	schedule := Schedule(b, lifespan)
	for i, m := range schedule {
		year := i + 1
		inflated := m * math.Pow(1+cfg.InflationRate, float64(year))
		pv := inflated / math.Pow(1+cfg.DiscountRate, float64(year))
		out.Operational += pv
		out.Years = append(out.Years, YearCost{
			Year:         year,
			Maintenance:  m,
			Inflated:     inflated,
			PresentValue: pv,
		})
	}

	out.Total = out.Acquisition + out.Operational
	if !finite(out.Acquisition) || !finite(out.Operational) || !finite(out.Total) {
		return nil, apperrors.InvalidCostInput(b.ID, fmt.Sprintf("total cost overflows: acquisition %v, operational %v", out.Acquisition, out.Operational)).
			WithDetail("field", "total")
	}
	out.PerYear = out.Total / float64(lifespan)
	out.PerUnit = out.Total / float64(b.Units())
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Schedule returns the maintenance estimate for years 1..lifespan. An
// explicit per-year schedule wins; otherwise AnnualMaintenance applies to
// every year after the warranty. Nil means no operational cost.
func Schedule(b *bid.VendorBid, lifespan int) []float64 {
	if lifespan <= 0 {
		return nil
	}
	if len(b.Maintenance) > 0 {
		out := make([]float64, lifespan)
		copy(out, b.Maintenance)
		return out
	}
	if b.AnnualMaintenance > 0 {
		out := make([]float64, lifespan)
		for i := range out {
			if i+1 > b.WarrantyYears {
				out[i] = b.AnnualMaintenance
			}
		}
		return out
	}
	return nil
}

// Rounded returns a copy with every cost rounded to two decimals.
func (b *Breakdown) Rounded() Breakdown {
	r := *b
	r.BasePrice = money.Round2(b.BasePrice)
	r.Shipping = money.Round2(b.Shipping)
	r.Installation = money.Round2(b.Installation)
	r.Training = money.Round2(b.Training)
	r.Acquisition = money.Round2(b.Acquisition)
	r.Operational = money.Round2(b.Operational)
	r.Total = money.Round2(b.Total)
	r.PerYear = money.Round2(b.PerYear)
	r.PerUnit = money.Round2(b.PerUnit)
	r.Score = money.Round2(b.Score)
	r.Years = make([]YearCost, len(b.Years))
	for i, y := range b.Years {
		r.Years[i] = YearCost{
			Year:         y.Year,
			Maintenance:  money.Round2(y.Maintenance),
			Inflated:     money.Round2(y.Inflated),
			PresentValue: money.Round2(y.PresentValue),
		}
	}
	return r
}
