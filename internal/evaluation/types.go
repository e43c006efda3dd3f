package evaluation

import (
	"fmt"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/compliance"
	"github.com/procurepro/tbe/internal/matrix"
	"github.com/procurepro/tbe/internal/ranking"
	"github.com/procurepro/tbe/internal/scoring"
	"github.com/procurepro/tbe/internal/tco"
)

// IncompletePolicy decides what strict mode does with an incomplete bid.
type IncompletePolicy string

// Incomplete bid policies.
const (
	// PolicyAbort fails the whole run on the first incomplete bid.
	PolicyAbort IncompletePolicy = "abort"
	// PolicyExclude disqualifies the bid and keeps it out of every range.
	PolicyExclude IncompletePolicy = "exclude"
)

// PriceSource selects the value the price criterion scores on.
type PriceSource string

// Price sources.
const (
	PriceQuoted PriceSource = "quoted"
	PriceTCO    PriceSource = "tco"
)

// Options are the per-run switches. The zero value is usable: every empty
// field falls back to its documented default. Pointer fields tell an
// explicit false or zero apart from an absent one.
type Options struct {
	StrictIncomplete      *bool               `json:"strict_incomplete,omitempty" yaml:"strict_incomplete,omitempty"`
	IncompletePolicy      IncompletePolicy    `json:"incomplete_policy,omitempty" yaml:"incomplete_policy,omitempty"`
	CostErrorsFatal       *bool               `json:"cost_errors_fatal,omitempty" yaml:"cost_errors_fatal,omitempty"`
	PriceSource           PriceSource         `json:"price_source,omitempty" yaml:"price_source,omitempty"`
	PriceMethod           scoring.PriceMethod `json:"price_method,omitempty" yaml:"price_method,omitempty"`
	MaxScore              float64             `json:"max_score,omitempty" yaml:"max_score,omitempty"`
	MinCompliance         *float64            `json:"min_compliance_threshold,omitempty" yaml:"min_compliance_threshold,omitempty"`
	AllowMissingMandatory *bool               `json:"allow_missing_mandatory,omitempty" yaml:"allow_missing_mandatory,omitempty"`
	Thresholds            *ranking.Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Compliance            *compliance.Config  `json:"compliance,omitempty" yaml:"compliance,omitempty"`
}

// Strict reports whether incomplete bids are handled strictly.
func (o Options) Strict() bool { return o.StrictIncomplete != nil && *o.StrictIncomplete }

// FatalCostErrors reports whether a cost error aborts the run.
func (o Options) FatalCostErrors() bool { return o.CostErrorsFatal != nil && *o.CostErrorsFatal }

// MinCompliancePct returns the disqualifying compliance floor, 0 when unset.
func (o Options) MinCompliancePct() float64 {
	if o.MinCompliance == nil {
		return 0
	}
	return *o.MinCompliance
}

// MissingMandatoryAllowed reports whether bids missing mandatory
// requirements stay qualified.
func (o Options) MissingMandatoryAllowed() bool {
	return o.AllowMissingMandatory != nil && *o.AllowMissingMandatory
}

// Merge returns o with every field o leaves empty taken from base.
func (o Options) Merge(base Options) Options {
	if o.StrictIncomplete == nil {
		o.StrictIncomplete = base.StrictIncomplete
	}
	if o.IncompletePolicy == "" {
		o.IncompletePolicy = base.IncompletePolicy
	}
	if o.CostErrorsFatal == nil {
		o.CostErrorsFatal = base.CostErrorsFatal
	}
	if o.PriceSource == "" {
		o.PriceSource = base.PriceSource
	}
	if o.PriceMethod == "" {
		o.PriceMethod = base.PriceMethod
	}
	if o.MaxScore == 0 {
		o.MaxScore = base.MaxScore
	}
	if o.MinCompliance == nil {
		o.MinCompliance = base.MinCompliance
	}
	if o.AllowMissingMandatory == nil {
		o.AllowMissingMandatory = base.AllowMissingMandatory
	}
	if o.Thresholds == nil {
		o.Thresholds = base.Thresholds
	}
	if o.Compliance == nil {
		o.Compliance = base.Compliance
	}
	return o
}

// DefaultOptions returns non-strict scoring on quoted prices out of 100.
func DefaultOptions() Options {
	th := ranking.DefaultThresholds()
	cc := compliance.DefaultConfig()
	return Options{
		IncompletePolicy: PolicyAbort,
		PriceSource:      PriceQuoted,
		PriceMethod:      scoring.PriceInverseLinear,
		MaxScore:         scoring.DefaultMaxScore,
		Thresholds:       &th,
		Compliance:       &cc,
	}
}

// Validate reports an unknown enumeration value in o.
func (o Options) Validate() error {
	o, err := o.withDefaults()
	if err != nil {
		return err
	}
	if err := o.Thresholds.Validate(); err != nil {
		return err
	}
	return o.Compliance.Validate()
}

// withDefaults fills empty fields and validates the enumerations.
func (o Options) withDefaults() (Options, error) {
	d := DefaultOptions()
	switch o.IncompletePolicy {
	case "":
		o.IncompletePolicy = d.IncompletePolicy
	case PolicyAbort, PolicyExclude:
	default:
		return o, fmt.Errorf("unknown incomplete policy %q (must be abort or exclude)", o.IncompletePolicy)
	}
	switch o.PriceSource {
	case "":
		o.PriceSource = d.PriceSource
	case PriceQuoted, PriceTCO:
	default:
		return o, fmt.Errorf("unknown price source %q (must be quoted or tco)", o.PriceSource)
	}
	m, err := scoring.ParsePriceMethod(string(o.PriceMethod))
	if err != nil {
		return o, err
	}
	o.PriceMethod = m
	if o.MaxScore <= 0 {
		o.MaxScore = d.MaxScore
	}
	if o.Thresholds == nil {
		o.Thresholds = d.Thresholds
	}
	if o.Compliance == nil {
		o.Compliance = d.Compliance
	}
	return o, nil
}

// Request is the full input of one evaluation run.
type Request struct {
	RFQID             string                      `json:"rfq_id,omitempty" yaml:"rfq_id,omitempty"`
	Bids              []bid.VendorBid             `json:"bids" yaml:"bids"`
	Vendors           map[string]bid.VendorRecord `json:"vendors,omitempty" yaml:"vendors,omitempty"`
	Weights           *scoring.Weights            `json:"weights,omitempty" yaml:"weights,omitempty"`
	RequiredStandards []bid.Requirement           `json:"required_standards,omitempty" yaml:"required_standards,omitempty"`
	RequiredCerts     []bid.Requirement           `json:"required_certs,omitempty" yaml:"required_certs,omitempty"`
	CustomCriteria    []scoring.Criterion         `json:"custom_criteria,omitempty" yaml:"custom_criteria,omitempty"`
	TCO               *tco.Config                 `json:"tco_config,omitempty" yaml:"tco_config,omitempty"`
	Options           Options                     `json:"options" yaml:"options"`
}

// ScoreResult is one bid's scored outcome. Scores and Total are rounded to
// two decimals; ranking used the unrounded values.
type ScoreResult struct {
	BidID          string                 `json:"bid_id"`
	VendorID       string                 `json:"vendor_id"`
	VendorName     string                 `json:"vendor_name"`
	Price          *float64               `json:"price"`
	Scores         scoring.CategoryScores `json:"scores"`
	Total          float64                `json:"total"`
	CompliancePct  float64                `json:"compliance_pct"`
	TCOTotal       *float64               `json:"tco_total,omitempty"`
	Missing        []string               `json:"missing,omitempty"`
	Rank           *int                   `json:"rank"`
	Recommendation ranking.Recommendation `json:"recommendation,omitempty"`
	Disqualified   bool                   `json:"disqualified"`
	Notes          string                 `json:"notes,omitempty"`
	// Warnings is filled by CalculateSingleScore only; a full run reports
	// warnings on the outcome.
	Warnings       []Warning              `json:"warnings,omitempty"`
}

// Warning is a non-fatal issue attached to one bid.
type Warning struct {
	BidID   string `json:"bid_id"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Summaries groups the aggregate views of one run.
type Summaries struct {
	Ranking    ranking.Summary    `json:"ranking"`
	TCO        tco.Summary        `json:"tco"`
	Compliance compliance.Summary `json:"compliance"`
}

// Snapshot records the effective configuration a run used.
type Snapshot struct {
	Weights           []scoring.CriterionWeight `json:"weights"`
	RequiredStandards []bid.Requirement         `json:"required_standards"`
	RequiredCerts     []bid.Requirement         `json:"required_certs"`
	TCO               tco.Config                `json:"tco"`
	Options           Options                   `json:"options"`
}

// Outcome is the assembled result of one run. TCO holds nil for bids whose
// cost inputs were rejected.
type Outcome struct {
	Results           []ScoreResult                `json:"results"`
	Matrix            *matrix.Matrix               `json:"matrix"`
	Ranking           ranking.Result               `json:"ranking"`
	TCO               map[string]*tco.Breakdown    `json:"tco"`
	Compliance        map[string]compliance.Detail `json:"compliance"`
	Summary           Summaries                    `json:"summary"`
	Warnings          []Warning                    `json:"warnings"`
	NoCompliantVendor bool                         `json:"no_compliant_vendor"`
	RecommendedBidID  string                       `json:"recommended_bid_id,omitempty"`
	Comparison        ranking.Comparison           `json:"comparison"`
	Config            Snapshot                     `json:"config"`
}

// Result returns the score result for a bid.
func (o *Outcome) Result(bidID string) (ScoreResult, bool) {
	for _, r := range o.Results {
		if r.BidID == bidID {
			return r, true
		}
	}
	return ScoreResult{}, false
}

// PreviewContext parameterizes a single-bid what-if score. Ranges stand in
// for the bid set a full run would derive them from; a zero range gives
// full marks on that attribute.
type PreviewContext struct {
	Weights           *scoring.Weights    `json:"weights,omitempty" yaml:"weights,omitempty"`
	CustomCriteria    []scoring.Criterion `json:"custom_criteria,omitempty" yaml:"custom_criteria,omitempty"`
	Ranges            scoring.Ranges      `json:"ranges" yaml:"ranges"`
	Vendor            bid.VendorRecord    `json:"vendor" yaml:"vendor"`
	RequiredStandards []bid.Requirement   `json:"required_standards,omitempty" yaml:"required_standards,omitempty"`
	RequiredCerts     []bid.Requirement   `json:"required_certs,omitempty" yaml:"required_certs,omitempty"`
	TCO               *tco.Config         `json:"tco_config,omitempty" yaml:"tco_config,omitempty"`
	Options           Options             `json:"options" yaml:"options"`
}
