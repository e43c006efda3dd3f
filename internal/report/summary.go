// Package report renders evaluation outcomes for people: a short executive
// summary and a spreadsheet workbook.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/procurepro/tbe/internal/evaluation"
	"github.com/procurepro/tbe/internal/pkg/money"
	"github.com/procurepro/tbe/internal/ranking"
)

// Pick names one ranked bid in the summary.
type Pick struct {
	BidID          string                 `json:"bid_id"`
	Vendor         string                 `json:"vendor"`
	Total          float64                `json:"total"`
	Recommendation ranking.Recommendation `json:"recommendation"`
}

// Excluded is a disqualified bid and why.
type Excluded struct {
	BidID   string   `json:"bid_id"`
	Vendor  string   `json:"vendor"`
	Reasons []string `json:"reasons,omitempty"`
}

// Executive is the condensed view of an outcome a buyer reads first.
type Executive struct {
	Winner            *Pick      `json:"winner,omitempty"`
	RunnerUp          *Pick      `json:"runner_up,omitempty"`
	Margin            float64    `json:"margin"`
	Disqualified      []Excluded `json:"disqualified"`
	BestTCOBidID      string     `json:"best_tco_bid_id,omitempty"`
	TCOSavingsPct     float64    `json:"tco_savings_pct"`
	FullyCompliant    int        `json:"fully_compliant"`
	TotalBids         int        `json:"total_bids"`
	Warnings          int        `json:"warnings"`
	NoCompliantVendor bool       `json:"no_compliant_vendor"`
}

// NewExecutive condenses o.
func NewExecutive(o *evaluation.Outcome) Executive {
	e := Executive{
		Disqualified:      []Excluded{},
		BestTCOBidID:      o.Summary.TCO.BestBidID,
		TCOSavingsPct:     o.Summary.TCO.SavingsPotentialPct,
		FullyCompliant:    o.Summary.Compliance.FullyCompliant,
		TotalBids:         len(o.Ranking.Ranked),
		Warnings:          len(o.Warnings),
		NoCompliantVendor: o.NoCompliantVendor,
	}

	q := o.Ranking.Top(2)
	if len(q) > 0 {
		e.Winner = pick(q[0])
	}
	if len(q) > 1 {
		e.RunnerUp = pick(q[1])
		e.Margin = money.Round2(q[0].Total - q[1].Total)
	}

	for _, r := range o.Ranking.Ranked {
		if r.Disqualified {
			e.Disqualified = append(e.Disqualified, Excluded{
				BidID:   r.BidID,
				Vendor:  vendorLabel(r.Candidate),
				Reasons: r.Reasons,
			})
		}
	}
	return e
}

func pick(r ranking.Ranked) *Pick {
	return &Pick{
		BidID:          r.BidID,
		Vendor:         vendorLabel(r.Candidate),
		Total:          money.Round2(r.Total),
		Recommendation: r.Recommendation,
	}
}

func vendorLabel(c ranking.Candidate) string {
	switch {
	case c.VendorName != "":
		return c.VendorName
	case c.VendorID != "":
		return c.VendorID
	default:
		return c.BidID
	}
}

// humanize turns a recommendation constant into prose.
func humanize(r ranking.Recommendation) string {
	return strings.ReplaceAll(string(r), "_", " ")
}

// Text renders the summary as a few plain sentences.
func (e Executive) Text() string {
	var b strings.Builder

	if e.Winner == nil {
		b.WriteString("No compliant vendor: every bid was disqualified.\n")
	} else {
		fmt.Fprintf(&b, "Recommended: %s (bid %s) with %s points, %s.\n",
			e.Winner.Vendor, e.Winner.BidID, money.Format(e.Winner.Total), humanize(e.Winner.Recommendation))
		if e.RunnerUp != nil {
			fmt.Fprintf(&b, "Runner-up: %s (bid %s), %s points behind.\n",
				e.RunnerUp.Vendor, e.RunnerUp.BidID, money.Format(e.Margin))
		}
	}

	if len(e.Disqualified) == 0 {
		b.WriteString("Disqualified: none.\n")
	} else {
		parts := make([]string, len(e.Disqualified))
		for i, d := range e.Disqualified {
			parts[i] = d.Vendor
			if len(d.Reasons) > 0 {
				parts[i] += " (" + strings.Join(d.Reasons, "; ") + ")"
			}
		}
		fmt.Fprintf(&b, "Disqualified: %s.\n", strings.Join(parts, ", "))
	}

	if e.BestTCOBidID != "" {
		fmt.Fprintf(&b, "Lowest total cost of ownership: bid %s, saving %s%% against the most expensive bid.\n",
			e.BestTCOBidID, money.Format(e.TCOSavingsPct))
	}
	fmt.Fprintf(&b, "Compliance: %d of %d bids fully compliant.\n", e.FullyCompliant, e.TotalBids)
	if e.Warnings > 0 {
		fmt.Fprintf(&b, "Warnings: %d.\n", e.Warnings)
	}
	return b.String()
}

// WriteText writes the executive summary of o to w.
func WriteText(w io.Writer, o *evaluation.Outcome) error {
	_, err := io.WriteString(w, NewExecutive(o).Text())
	return err
}
