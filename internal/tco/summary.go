package tco

import (
	"sort"

	"github.com/procurepro/tbe/internal/pkg/money"
	"github.com/procurepro/tbe/internal/scoring"
)

// Rank scores each breakdown inverse-linearly over the set's totals and
// assigns ranks by ascending total. Ties share order by bid ID.
func Rank(breakdowns []*Breakdown, maxScore float64) {
	if maxScore <= 0 {
		maxScore = scoring.DefaultMaxScore
	}

	var r scoring.Range
	for _, b := range breakdowns {
		r = r.Extend(b.Total)
	}
	for _, b := range breakdowns {
		b.Score = scoring.InverseLinear(b.Total, r, maxScore)
	}

	ordered := make([]*Breakdown, len(breakdowns))
	copy(ordered, breakdowns)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Total != ordered[j].Total {
			return ordered[i].Total < ordered[j].Total
		}
		return ordered[i].BidID < ordered[j].BidID
	})
	for i, b := range ordered {
		b.Rank = i + 1
	}
}

// Summary describes the spread of TCO across a bid set.
type Summary struct {
	Count               int     `json:"count"`
	Average             float64 `json:"average"`
	Min                 float64 `json:"min"`
	Max                 float64 `json:"max"`
	Range               float64 `json:"range"`
	BestBidID           string  `json:"best_bid_id,omitempty"`
	WorstBidID          string  `json:"worst_bid_id,omitempty"`
	SavingsPotentialPct float64 `json:"savings_potential_pct"`
}

// Summarize computes summary statistics, rounded for display.
func Summarize(breakdowns []*Breakdown) Summary {
	s := Summary{Count: len(breakdowns)}
	if len(breakdowns) == 0 {
		return s
	}

	sum := 0.0
	best, worst := breakdowns[0], breakdowns[0]
	for _, b := range breakdowns {
		sum += b.Total
		if b.Total < best.Total || (b.Total == best.Total && b.BidID < best.BidID) {
			best = b
		}
		if b.Total > worst.Total || (b.Total == worst.Total && b.BidID < worst.BidID) {
			worst = b
		}
	}

	s.Average = money.Round2(sum / float64(len(breakdowns)))
	s.Min = money.Round2(best.Total)
	s.Max = money.Round2(worst.Total)
	s.Range = money.Round2(worst.Total - best.Total)
	s.BestBidID = best.BidID
	s.WorstBidID = worst.BidID
	s.SavingsPotentialPct = money.Percent(worst.Total-best.Total, worst.Total)
	return s
}

// Delta is the difference other - base for one cost component.
type Delta struct {
	Base     float64 `json:"base"`
	Other    float64 `json:"other"`
	Absolute float64 `json:"absolute"`
	Percent  float64 `json:"percent"`
}

func delta(base, other float64) Delta {
	return Delta{
		Base:     money.Round2(base),
		Other:    money.Round2(other),
		Absolute: money.Round2(other - base),
		Percent:  money.Percent(other-base, base),
	}
}

// Comparison contrasts two bids' cost structures.
type Comparison struct {
	BaseBidID    string `json:"base_bid_id"`
	OtherBidID   string `json:"other_bid_id"`
	Acquisition  Delta  `json:"acquisition"`
	Operational  Delta  `json:"operational"`
	Total        Delta  `json:"total"`
	CheaperBidID string `json:"cheaper_bid_id"`
}

// Compare returns how other differs from base.
func Compare(base, other *Breakdown) Comparison {
	c := Comparison{
		BaseBidID:   base.BidID,
		OtherBidID:  other.BidID,
		Acquisition: delta(base.Acquisition, other.Acquisition),
		Operational: delta(base.Operational, other.Operational),
		Total:       delta(base.Total, other.Total),
	}
	c.CheaperBidID = base.BidID
	if other.Total < base.Total {
		c.CheaperBidID = other.BidID
	}
	return c
}
