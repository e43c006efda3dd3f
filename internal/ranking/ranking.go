// Package ranking disqualifies, orders and categorizes scored bids.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procurepro/tbe/internal/scoring"
)

// Recommendation is the category assigned to a bid after ranking.
type Recommendation string

// Recommendation categories.
const (
	HighlyRecommended Recommendation = "highly_recommended"
	Recommended       Recommendation = "recommended"
	Acceptable        Recommendation = "acceptable"
	NotRecommended    Recommendation = "not_recommended"
	Disqualified      Recommendation = "disqualified"
)

// Thresholds are the minimum totals for each qualified category.
type Thresholds struct {
	HighlyRecommended float64 `json:"highly_recommended" yaml:"highly_recommended" envconfig:"TBE_THRESHOLD_HIGHLY_RECOMMENDED"`
	Recommended       float64 `json:"recommended" yaml:"recommended" envconfig:"TBE_THRESHOLD_RECOMMENDED"`
	Acceptable        float64 `json:"acceptable" yaml:"acceptable" envconfig:"TBE_THRESHOLD_ACCEPTABLE"`
}

// DefaultThresholds returns 85 / 70 / 50.
func DefaultThresholds() Thresholds {
	return Thresholds{HighlyRecommended: 85, Recommended: 70, Acceptable: 50}
}

// Validate requires non-negative, strictly descending thresholds.
func (t Thresholds) Validate() error {
	if t.Acceptable < 0 || t.Recommended <= t.Acceptable || t.HighlyRecommended <= t.Recommended {
		return fmt.Errorf("recommendation thresholds must be descending and non-negative, got %v/%v/%v",
			t.HighlyRecommended, t.Recommended, t.Acceptable)
	}
	return nil
}

// Categorize maps a qualified bid's total to a category.
func (t Thresholds) Categorize(total float64) Recommendation {
	switch {
	case total >= t.HighlyRecommended:
		return HighlyRecommended
	case total >= t.Recommended:
		return Recommended
	case total >= t.Acceptable:
		return Acceptable
	}
	return NotRecommended
}

// Rules decide disqualification.
type Rules struct {
	// MinCompliance disqualifies bids whose compliance percentage is below
	// it. Zero disables the check.
	MinCompliance float64 `json:"min_compliance" yaml:"min_compliance"`
	// AllowMissingMandatory keeps bids that miss mandatory requirements.
	AllowMissingMandatory bool `json:"allow_missing_mandatory" yaml:"allow_missing_mandatory"`
}

// Candidate is one scored bid awaiting ranking.
type Candidate struct {
	BidID            string                 `json:"bid_id"`
	VendorID         string                 `json:"vendor_id"`
	VendorName       string                 `json:"vendor_name"`
	Total            float64                `json:"total"`
	Scores           scoring.CategoryScores `json:"scores"`
	CompliancePct    float64                `json:"compliance_pct"`
	Price            *float64               `json:"price"`
	MissingMandatory []string               `json:"missing_mandatory,omitempty"`
	// Incomplete lists missing attributes for bids excluded under strict mode.
	Incomplete []string `json:"incomplete,omitempty"`
}

// Ranked is a candidate with its ranking outcome. Rank is nil for
// disqualified bids.
type Ranked struct {
	Candidate
	Rank           *int           `json:"rank"`
	Recommendation Recommendation `json:"recommendation"`
	Disqualified   bool           `json:"disqualified"`
	Reasons        []string       `json:"reasons,omitempty"`
	Notes          string         `json:"notes"`
}

// Result holds every candidate: qualified bids in rank order, then
// disqualified bids in the same ordering.
type Result struct {
	Ranked            []Ranked `json:"ranked"`
	NoCompliantVendor bool     `json:"no_compliant_vendor"`
}

// Engine ranks candidates under fixed thresholds and rules.
type Engine struct {
	thresholds Thresholds
	rules      Rules
	maxScore   float64
}

// NewEngine validates thresholds and returns an engine.
func NewEngine(t Thresholds, r Rules, maxScore float64) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if r.MinCompliance < 0 || r.MinCompliance > 100 {
		return nil, fmt.Errorf("minimum compliance %v must be within [0,100]", r.MinCompliance)
	}
	if maxScore <= 0 {
		maxScore = scoring.DefaultMaxScore
	}
	return &Engine{thresholds: t, rules: r, maxScore: maxScore}, nil
}

// Thresholds returns the engine's category thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Rank disqualifies, orders and categorizes candidates. It never fails:
// when nothing qualifies the result has no ranks and NoCompliantVendor set.
func (e *Engine) Rank(cands []Candidate) Result {
	var qualified, out []Ranked
	for _, c := range cands {
		r := Ranked{Candidate: c}
		r.Reasons = e.disqualify(c)
		if len(r.Reasons) > 0 {
			r.Disqualified = true
			r.Recommendation = Disqualified
			out = append(out, r)
			continue
		}
		qualified = append(qualified, r)
	}

	sort.SliceStable(qualified, func(i, j int) bool { return Less(qualified[i].Candidate, qualified[j].Candidate) })
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i].Candidate, out[j].Candidate) })

	for i := range qualified {
		rank := i + 1
		qualified[i].Rank = &rank
		qualified[i].Recommendation = e.thresholds.Categorize(qualified[i].Total)
		qualified[i].Notes = e.notes(qualified[i], len(qualified))
	}
	for i := range out {
		out[i].Notes = "Disqualified: " + strings.Join(out[i].Reasons, "; ") + "."
	}

	return Result{
		Ranked:            append(qualified, out...),
		NoCompliantVendor: len(qualified) == 0,
	}
}

func (e *Engine) disqualify(c Candidate) []string {
	var reasons []string
	if len(c.Incomplete) > 0 {
		reasons = append(reasons, "incomplete bid, missing "+strings.Join(c.Incomplete, ", "))
	}
	if e.rules.MinCompliance > 0 && c.CompliancePct < e.rules.MinCompliance {
		reasons = append(reasons, fmt.Sprintf("compliance %.2f%% below minimum %.2f%%", c.CompliancePct, e.rules.MinCompliance))
	}
	if !e.rules.AllowMissingMandatory && len(c.MissingMandatory) > 0 {
		reasons = append(reasons, "missing mandatory "+strings.Join(c.MissingMandatory, ", "))
	}
	return reasons
}

// Less orders candidates: higher total, then higher compliance, then lower
// price (absent prices last), then vendor ID, then bid ID.
func Less(a, b Candidate) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if a.CompliancePct != b.CompliancePct {
		return a.CompliancePct > b.CompliancePct
	}
	switch {
	case a.Price != nil && b.Price == nil:
		return true
	case a.Price == nil && b.Price != nil:
		return false
	case a.Price != nil && b.Price != nil && *a.Price != *b.Price:
		return *a.Price < *b.Price
	}
	if a.VendorID != b.VendorID {
		return a.VendorID < b.VendorID
	}
	return a.BidID < b.BidID
}

func (e *Engine) notes(r Ranked, of int) string {
	var parts []string
	if *r.Rank == 1 {
		parts = append(parts, fmt.Sprintf("Top-ranked of %d qualified bids.", of))
	} else {
		parts = append(parts, fmt.Sprintf("Ranked #%d of %d qualified bids.", *r.Rank, of))
	}

	frac := r.Total / e.maxScore
	switch {
	case frac >= 0.9:
		parts = append(parts, "Exceptional overall score.")
	case frac >= 0.8:
		parts = append(parts, "Strong overall performance.")
	case frac >= 0.7:
		parts = append(parts, "Good overall performance.")
	case frac >= 0.6:
		parts = append(parts, "Acceptable overall performance.")
	default:
		parts = append(parts, "Below expectations on several criteria.")
	}

	remarks := []struct {
		score      float64
		good, weak string
	}{
		{r.Scores.Price, "Very competitive price.", "Price well above the cheapest bid."},
		{r.Scores.Quality, "Outstanding quality record.", "Quality record needs attention."},
		{r.Scores.Delivery, "Among the fastest deliveries.", "Delivery lead time is a concern."},
		{r.Scores.Compliance, "Meets compliance requirements.", "Compliance gaps identified."},
	}
	for _, rm := range remarks {
		switch {
		case rm.score >= 0.9*e.maxScore:
			parts = append(parts, rm.good)
		case rm.score <= 0.5*e.maxScore:
			parts = append(parts, rm.weak)
		}
	}
	return strings.Join(parts, " ")
}

// Qualified returns the ranked, qualified bids.
func (r Result) Qualified() []Ranked {
	var out []Ranked
	for _, x := range r.Ranked {
		if !x.Disqualified {
			out = append(out, x)
		}
	}
	return out
}

// Top returns up to n qualified bids in rank order.
func (r Result) Top(n int) []Ranked {
	q := r.Qualified()
	if n >= 0 && n < len(q) {
		q = q[:n]
	}
	return q
}

// Find returns the ranked entry for a bid.
func (r Result) Find(bidID string) (Ranked, bool) {
	for _, x := range r.Ranked {
		if x.BidID == bidID {
			return x, true
		}
	}
	return Ranked{}, false
}
