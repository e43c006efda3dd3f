package ranking

import (
	"math"

	"github.com/procurepro/tbe/internal/pkg/money"
	"github.com/procurepro/tbe/internal/scoring"
)

// ScoreStats describes the spread of qualified totals.
type ScoreStats struct {
	Average float64 `json:"average"`
	Maximum float64 `json:"maximum"`
	Minimum float64 `json:"minimum"`
	Spread  float64 `json:"spread"`
}

// TopPick is the headline recommendation.
type TopPick struct {
	BidID          string         `json:"bid_id"`
	VendorID       string         `json:"vendor_id"`
	VendorName     string         `json:"vendor_name"`
	Total          float64        `json:"total"`
	Recommendation Recommendation `json:"recommendation"`
}

// Summary is the ranking overview shown above the detailed table.
type Summary struct {
	TotalBids         int                    `json:"total_bids"`
	Qualified         int                    `json:"qualified"`
	Disqualified      int                    `json:"disqualified"`
	Breakdown         map[Recommendation]int `json:"breakdown"`
	Scores            ScoreStats             `json:"scores"`
	Top               *TopPick               `json:"top,omitempty"`
	NoCompliantVendor bool                   `json:"no_compliant_vendor"`
}

// Summarize builds the overview. Score statistics cover qualified bids.
func Summarize(r Result) Summary {
	s := Summary{
		TotalBids:         len(r.Ranked),
		Breakdown:         make(map[Recommendation]int),
		NoCompliantVendor: r.NoCompliantVendor,
	}

	sum := 0.0
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, x := range r.Ranked {
		s.Breakdown[x.Recommendation]++
		if x.Disqualified {
			s.Disqualified++
			continue
		}
		s.Qualified++
		sum += x.Total
		hi = math.Max(hi, x.Total)
		lo = math.Min(lo, x.Total)
	}

	if s.Qualified > 0 {
		s.Scores = ScoreStats{
			Average: money.Round2(sum / float64(s.Qualified)),
			Maximum: money.Round2(hi),
			Minimum: money.Round2(lo),
			Spread:  money.Round2(hi - lo),
		}
		top := r.Ranked[0]
		s.Top = &TopPick{
			BidID:          top.BidID,
			VendorID:       top.VendorID,
			VendorName:     top.VendorName,
			Total:          money.Round2(top.Total),
			Recommendation: top.Recommendation,
		}
	}
	return s
}

// CriterionWinner names the best of the compared bids on one criterion.
type CriterionWinner struct {
	Criterion string             `json:"criterion"`
	BidID     string             `json:"bid_id"`
	Scores    map[string]float64 `json:"scores"`
}

// Comparison contrasts the top qualified bids criterion by criterion.
type Comparison struct {
	BidIDs  []string          `json:"bid_ids"`
	Winners []CriterionWinner `json:"winners"`
}

// CompareTop compares the top n qualified bids. Ties on a criterion go to
// the better-ranked bid.
func CompareTop(r Result, n int, criteria []scoring.CriterionWeight) Comparison {
	top := r.Top(n)
	c := Comparison{BidIDs: make([]string, 0, len(top))}
	for _, x := range top {
		c.BidIDs = append(c.BidIDs, x.BidID)
	}
	if len(top) == 0 {
		return c
	}

	for _, cr := range criteria {
		w := CriterionWinner{Criterion: cr.Name, Scores: make(map[string]float64, len(top))}
		best := math.Inf(-1)
		for _, x := range top {
			v := x.Scores.Get(cr.Name)
			w.Scores[x.BidID] = money.Round2(v)
			if v > best {
				best = v
				w.BidID = x.BidID
			}
		}
		c.Winners = append(c.Winners, w)
	}
	return c
}
