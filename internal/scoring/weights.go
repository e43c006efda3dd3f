// Package scoring normalizes raw bid attributes to bounded scores and
// combines them into a weighted total.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/procurepro/tbe/internal/bid"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
)

// WeightTolerance is the allowed distance of the weight sum from 1.0.
const WeightTolerance = 0.001

// DefaultMaxScore is the upper bound of every category score.
const DefaultMaxScore = 100.0

// Weights are the top-level category weights.
type Weights struct {
	Price      float64 `json:"price" yaml:"price" envconfig:"TBE_WEIGHT_PRICE"`
	Quality    float64 `json:"quality" yaml:"quality" envconfig:"TBE_WEIGHT_QUALITY"`
	Delivery   float64 `json:"delivery" yaml:"delivery" envconfig:"TBE_WEIGHT_DELIVERY"`
	Compliance float64 `json:"compliance" yaml:"compliance" envconfig:"TBE_WEIGHT_COMPLIANCE"`
}

// DefaultWeights returns the organization default distribution.
func DefaultWeights() Weights {
	return Weights{
		Price:      0.40,
		Quality:    0.25,
		Delivery:   0.20,
		Compliance: 0.15,
	}
}

// Sum returns the total of the four category weights.
func (w Weights) Sum() float64 {
	return w.Price + w.Quality + w.Delivery + w.Compliance
}

// Criterion is an organization-defined criterion scored alongside the
// built-in categories.
//
// A criterion is scored either from a raw value, normalized min-max across
// the bid set in its Direction, or from Scores, explicit per-bid scores in
// [0, max score] keyed by bid ID. The raw value comes from Extract when set,
// otherwise from the bid's custom value named Attribute (default: Name).
type Criterion struct {
	Name      string             `json:"name" yaml:"name"`
	Category  bid.Category       `json:"category,omitempty" yaml:"category,omitempty"`
	Weight    float64            `json:"weight" yaml:"weight"`
	Direction bid.Direction      `json:"direction,omitempty" yaml:"direction,omitempty"`
	Attribute string             `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Scores    map[string]float64 `json:"scores,omitempty" yaml:"scores,omitempty"`

	Extract func(*bid.VendorBid) (float64, bool) `json:"-" yaml:"-"`
}

// Explicit reports whether the criterion uses caller-supplied scores.
func (c Criterion) Explicit() bool {
	return c.Extract == nil && c.Scores != nil
}

// Raw returns the criterion's raw value for b.
func (c Criterion) Raw(b *bid.VendorBid) (float64, bool) {
	if c.Extract != nil {
		return c.Extract(b)
	}
	attr := c.Attribute
	if attr == "" {
		attr = c.Name
	}
	v, ok := b.Custom[attr]
	if !ok {
		return 0, false
	}
	return v.Numeric()
}

// WeightConfig is a validated, immutable weighting for one evaluation run.
type WeightConfig struct {
	weights  Weights
	criteria []Criterion
	sum      float64
}

// NewWeightConfig validates weights and custom criteria. Every weight must
// lie in [0,1] and all active weights must sum to 1 within WeightTolerance.
func NewWeightConfig(w Weights, criteria []Criterion) (*WeightConfig, error) {
	named := []struct {
		name string
		v    float64
	}{
		{"price", w.Price},
		{"quality", w.Quality},
		{"delivery", w.Delivery},
		{"compliance", w.Compliance},
	}

	sum := 0.0
	for _, n := range named {
		if err := checkWeight(n.name, n.v); err != nil {
			return nil, err
		}
		sum += n.v
	}

	seen := map[string]bool{"price": true, "quality": true, "delivery": true, "compliance": true}
	out := make([]Criterion, 0, len(criteria))
	for _, c := range criteria {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, apperrors.InvalidWeightConfiguration("custom criterion name must not be empty")
		}
		if seen[c.Name] {
			return nil, apperrors.InvalidWeightConfiguration(fmt.Sprintf("duplicate criterion %q", c.Name)).
				WithDetail("criterion", c.Name)
		}
		seen[c.Name] = true

		if err := checkWeight(c.Name, c.Weight); err != nil {
			return nil, err
		}
		if c.Category == "" {
			c.Category = bid.CategoryCustom
		}
		if !c.Category.Valid() {
			return nil, apperrors.InvalidWeightConfiguration(fmt.Sprintf("criterion %q has unknown category %q", c.Name, c.Category)).
				WithDetail("criterion", c.Name)
		}
		switch c.Direction {
		case "":
			c.Direction = bid.HigherIsBetter
		case bid.HigherIsBetter, bid.LowerIsBetter:
		default:
			return nil, apperrors.InvalidWeightConfiguration(fmt.Sprintf("criterion %q has unknown direction %q", c.Name, c.Direction)).
				WithDetail("criterion", c.Name)
		}
		sum += c.Weight
		out = append(out, c)
	}

	if math.Abs(sum-1.0) > WeightTolerance {
		return nil, apperrors.InvalidWeightConfiguration(fmt.Sprintf("weights sum to %.4f, must sum to 1.0", sum)).
			WithDetail("sum", fmt.Sprintf("%.6f", sum))
	}

	return &WeightConfig{weights: w, criteria: out, sum: sum}, nil
}

func checkWeight(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return apperrors.InvalidWeightConfiguration(fmt.Sprintf("weight %q = %v is outside [0,1]", name, v)).
			WithDetail("criterion", name)
	}
	return nil
}

// Weights returns the category weights.
func (c *WeightConfig) Weights() Weights {
	return c.weights
}

// Criteria returns a copy of the custom criteria.
func (c *WeightConfig) Criteria() []Criterion {
	out := make([]Criterion, len(c.criteria))
	copy(out, c.criteria)
	return out
}

// Sum returns the validated weight sum.
func (c *WeightConfig) Sum() float64 {
	return c.sum
}

// CriterionWeight is one row of the active weighting, in display order.
type CriterionWeight struct {
	Name     string       `json:"name"`
	Category bid.Category `json:"category"`
	Weight   float64      `json:"weight"`
}

// Active lists the built-in categories followed by custom criteria.
func (c *WeightConfig) Active() []CriterionWeight {
	out := []CriterionWeight{
		{Name: string(bid.CategoryPrice), Category: bid.CategoryPrice, Weight: c.weights.Price},
		{Name: string(bid.CategoryQuality), Category: bid.CategoryQuality, Weight: c.weights.Quality},
		{Name: string(bid.CategoryDelivery), Category: bid.CategoryDelivery, Weight: c.weights.Delivery},
		{Name: string(bid.CategoryCompliance), Category: bid.CategoryCompliance, Weight: c.weights.Compliance},
	}
	for _, cr := range c.criteria {
		out = append(out, CriterionWeight{Name: cr.Name, Category: cr.Category, Weight: cr.Weight})
	}
	return out
}

// Total combines category scores, normalized by the weight sum so the
// result stays a convex combination of the inputs.
func (c *WeightConfig) Total(s CategoryScores) float64 {
	total := s.Price*c.weights.Price +
		s.Quality*c.weights.Quality +
		s.Delivery*c.weights.Delivery +
		s.Compliance*c.weights.Compliance
	for _, cr := range c.criteria {
		total += s.Custom[cr.Name] * cr.Weight
	}
	return total / c.sum
}
