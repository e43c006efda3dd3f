// Package compliance scores how well a bid covers the required standards
// and certifications of an RFQ.
package compliance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/pkg/money"
)

// Mode selects how standards and certifications combine into one score.
type Mode string

// Scoring modes.
const (
	// ModePooled scores matched items over all required items.
	ModePooled Mode = "pooled"
	// ModeWeighted blends the standards and certifications scores.
	ModeWeighted Mode = "weighted"
	// ModeStandards scores standards only.
	ModeStandards Mode = "standards"
	// ModeCerts scores certifications only.
	ModeCerts Mode = "certs"
)

// Config configures the scorer.
type Config struct {
	Mode               Mode                `json:"mode" yaml:"mode"`
	StandardsWeight    float64             `json:"standards_weight" yaml:"standards_weight"`
	CertsWeight        float64             `json:"certs_weight" yaml:"certs_weight"`
	PartialCredit      bool                `json:"partial_credit" yaml:"partial_credit"`
	PartialCreditRatio float64             `json:"partial_credit_ratio" yaml:"partial_credit_ratio"`
	Relations          map[string][]string `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// DefaultConfig returns pooled scoring without partial credit.
func DefaultConfig() Config {
	return Config{
		Mode:               ModePooled,
		StandardsWeight:    0.7,
		CertsWeight:        0.3,
		PartialCreditRatio: 0.5,
	}
}

// Validate checks mode and weights.
func (c Config) Validate() error {
	switch c.Mode {
	case ModePooled, ModeStandards, ModeCerts:
	case ModeWeighted:
		if c.StandardsWeight < 0 || c.CertsWeight < 0 || math.Abs(c.StandardsWeight+c.CertsWeight-1) > 0.001 {
			return fmt.Errorf("compliance weights %.3f/%.3f must be non-negative and sum to 1", c.StandardsWeight, c.CertsWeight)
		}
	default:
		return fmt.Errorf("unknown compliance mode %q (must be pooled, weighted, standards, or certs)", c.Mode)
	}
	if c.PartialCredit && (c.PartialCreditRatio < 0 || c.PartialCreditRatio >= 1) {
		return fmt.Errorf("partial credit ratio %v must be in [0,1)", c.PartialCreditRatio)
	}
	return nil
}

// Detail is the compliance outcome for one bid. Scores are percentages.
// MissingStandards lists every required standard the bid does not hold,
// including those in PartialStandards that earned related-standard credit.
type Detail struct {
	BidID            string   `json:"bid_id"`
	VendorID         string   `json:"vendor_id"`
	Score            float64  `json:"score"`
	StandardsScore   float64  `json:"standards_score"`
	CertsScore       float64  `json:"certs_score"`
	HeldStandards    []string `json:"held_standards,omitempty"`
	HeldCerts        []string `json:"held_certs,omitempty"`
	MatchedStandards []string `json:"matched_standards"`
	MissingStandards []string `json:"missing_standards"`
	PartialStandards []string `json:"partial_standards,omitempty"`
	MatchedCerts     []string `json:"matched_certs"`
	MissingCerts     []string `json:"missing_certs"`
	MissingMandatory []string `json:"missing_mandatory,omitempty"`
	Compliant        bool     `json:"compliant"`
	Notes            string   `json:"notes"`
}

// Scorer scores compliance under a fixed Config.
type Scorer struct {
	cfg       Config
	relations map[string][]string
}

// NewScorer validates cfg and returns a scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModePooled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rel := cfg.Relations
	if rel == nil {
		rel = DefaultRelations()
	}
	norm := make(map[string][]string, len(rel))
	for k, vs := range rel {
		key := NormalizeStandard(k)
		for _, v := range vs {
			norm[key] = append(norm[key], NormalizeStandard(v))
		}
	}
	return &Scorer{cfg: cfg, relations: norm}, nil
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score checks b, together with what its vendor record holds, against the
// required standards and certifications. A bid matching nothing scores 0;
// empty requirements score 100.
func (s *Scorer) Score(b *bid.VendorBid, vendor bid.VendorRecord, standards, certs []bid.Requirement) Detail {
	heldStd := normalizeAll(append(append([]string{}, b.Standards...), vendor.Standards...), NormalizeStandard)
	heldCert := normalizeAll(append(append([]string{}, b.Certifications...), vendor.Certifications...), NormalizeCert)

	d := Detail{
		BidID:            b.ID,
		VendorID:         b.VendorID,
		HeldStandards:    heldStd,
		HeldCerts:        heldCert,
		MatchedStandards: []string{},
		MissingStandards: []string{},
		MatchedCerts:     []string{},
		MissingCerts:     []string{},
	}

	stdCredit := 0.0
	for _, req := range standards {
		name := NormalizeStandard(req.Name)
		switch {
		case anyCovers(heldStd, name):
			stdCredit++
			d.MatchedStandards = append(d.MatchedStandards, req.Name)
		case s.cfg.PartialCredit && s.related(heldStd, name):
			stdCredit += s.cfg.PartialCreditRatio
			d.PartialStandards = append(d.PartialStandards, req.Name)
			d.MissingStandards = append(d.MissingStandards, req.Name)
			if req.Mandatory {
				d.MissingMandatory = append(d.MissingMandatory, req.Name)
			}
		default:
			d.MissingStandards = append(d.MissingStandards, req.Name)
			if req.Mandatory {
				d.MissingMandatory = append(d.MissingMandatory, req.Name)
			}
		}
	}

	certCredit := 0.0
	for _, req := range certs {
		name := NormalizeCert(req.Name)
		if anyCovers(heldCert, name) {
			certCredit++
			d.MatchedCerts = append(d.MatchedCerts, req.Name)
			continue
		}
		d.MissingCerts = append(d.MissingCerts, req.Name)
		if req.Mandatory {
			d.MissingMandatory = append(d.MissingMandatory, req.Name)
		}
	}

	d.StandardsScore = ratio(stdCredit, len(standards))
	d.CertsScore = ratio(certCredit, len(certs))

	switch s.cfg.Mode {
	case ModeWeighted:
		switch {
		case len(standards) > 0 && len(certs) > 0:
			d.Score = d.StandardsScore*s.cfg.StandardsWeight + d.CertsScore*s.cfg.CertsWeight
		case len(standards) > 0:
			d.Score = d.StandardsScore
		default:
			d.Score = d.CertsScore
		}
	case ModeStandards:
		d.Score = d.StandardsScore
	case ModeCerts:
		d.Score = d.CertsScore
	default:
		d.Score = ratio(stdCredit+certCredit, len(standards)+len(certs))
	}

	d.Compliant = len(d.MissingStandards) == 0 && len(d.PartialStandards) == 0 && len(d.MissingCerts) == 0
	d.Notes = notes(d)
	return d
}

func (s *Scorer) related(held []string, required string) bool {
	for _, r := range s.relations[required] {
		if anyCovers(held, r) {
			return true
		}
	}
	return false
}

func ratio(credit float64, n int) float64 {
	if n == 0 {
		return 100
	}
	return credit / float64(n) * 100
}

func anyCovers(held []string, required string) bool {
	for _, h := range held {
		if covers(h, required) {
			return true
		}
	}
	return false
}

func normalizeAll(in []string, norm func(string) string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		n := norm(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func notes(d Detail) string {
	if d.Compliant {
		return "Meets all required standards and certifications."
	}

	var parts []string
	if len(d.MissingStandards) > 0 {
		parts = append(parts, fmt.Sprintf("Standards %.1f%%, missing %s.", d.StandardsScore, strings.Join(d.MissingStandards, ", ")))
	}
	if len(d.PartialStandards) > 0 {
		parts = append(parts, fmt.Sprintf("Partial credit via related standards for %s.", strings.Join(d.PartialStandards, ", ")))
	}
	if len(d.MissingCerts) > 0 {
		parts = append(parts, fmt.Sprintf("Certifications %.1f%%, missing %s.", d.CertsScore, strings.Join(d.MissingCerts, ", ")))
	}
	if len(d.MissingMandatory) > 0 {
		parts = append(parts, fmt.Sprintf("Mandatory requirements unmet: %s.", strings.Join(d.MissingMandatory, ", ")))
	}

	switch {
	case d.Score >= 80:
		parts = append(parts, "Gaps are minor.")
	case d.Score >= 50:
		parts = append(parts, "Gaps are significant.")
	default:
		parts = append(parts, "Gaps are critical.")
	}
	return strings.Join(parts, " ")
}

// Gap counts how many bids miss one requirement.
type Gap struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary aggregates compliance across a bid set.
type Summary struct {
	Count          int     `json:"count"`
	FullyCompliant int     `json:"fully_compliant"`
	ComplianceRate float64 `json:"compliance_rate"`
	AverageScore   float64 `json:"average_score"`
	MinScore       float64 `json:"min_score"`
	MaxScore       float64 `json:"max_score"`
	High           int     `json:"high"`
	Medium         int     `json:"medium"`
	Low            int     `json:"low"`
	CommonGaps     []Gap   `json:"common_gaps"`
}

// maxGaps bounds the number of gaps reported in a summary.
const maxGaps = 5

// Summarize aggregates details. Bands are >=80 high, >=50 medium, else low.
func Summarize(details []Detail) Summary {
	s := Summary{Count: len(details), CommonGaps: []Gap{}}
	if len(details) == 0 {
		return s
	}

	counts := map[string]int{}
	sum := 0.0
	s.MinScore = math.Inf(1)
	s.MaxScore = math.Inf(-1)
	for _, d := range details {
		if d.Compliant {
			s.FullyCompliant++
		}
		sum += d.Score
		s.MinScore = math.Min(s.MinScore, d.Score)
		s.MaxScore = math.Max(s.MaxScore, d.Score)
		switch {
		case d.Score >= 80:
			s.High++
		case d.Score >= 50:
			s.Medium++
		default:
			s.Low++
		}
		for _, m := range d.MissingStandards {
			counts[m]++
		}
		for _, m := range d.MissingCerts {
			counts[m]++
		}
	}

	s.ComplianceRate = money.Percent(float64(s.FullyCompliant), float64(len(details)))
	s.AverageScore = money.Round2(sum / float64(len(details)))
	s.MinScore = money.Round2(s.MinScore)
	s.MaxScore = money.Round2(s.MaxScore)

	for name, n := range counts {
		s.CommonGaps = append(s.CommonGaps, Gap{Name: name, Count: n})
	}
	sort.Slice(s.CommonGaps, func(i, j int) bool {
		if s.CommonGaps[i].Count != s.CommonGaps[j].Count {
			return s.CommonGaps[i].Count > s.CommonGaps[j].Count
		}
		return s.CommonGaps[i].Name < s.CommonGaps[j].Name
	})
	if len(s.CommonGaps) > maxGaps {
		s.CommonGaps = s.CommonGaps[:maxGaps]
	}
	return s
}
