// Package matrix builds the vendor by criterion comparison grid shown to
// evaluators and kept for audit.
package matrix

import (
	"sort"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/scoring"
)

// Row is one bid's scored data as fed to Build.
type Row struct {
	BidID        string
	VendorID     string
	VendorName   string
	Raw          map[string]*float64
	Scores       scoring.CategoryScores
	Total        float64
	Disqualified bool
}

// Entry is one (criterion, bid) cell. Raw is nil when the bid lacked the
// attribute.
type Entry struct {
	Criterion    string       `json:"criterion"`
	Category     bid.Category `json:"category"`
	Weight       float64      `json:"weight"`
	BidID        string       `json:"bid_id"`
	VendorID     string       `json:"vendor_id"`
	VendorName   string       `json:"vendor_name"`
	Raw          *float64     `json:"raw"`
	Score        float64      `json:"score"`
	Weighted     float64      `json:"weighted"`
	Rank         int          `json:"rank"`
	IsBest       bool         `json:"is_best"`
	IsWorst      bool         `json:"is_worst"`
	Disqualified bool         `json:"disqualified"`
}

// Vendor is one matrix column with its total.
type Vendor struct {
	BidID        string  `json:"bid_id"`
	VendorID     string  `json:"vendor_id"`
	VendorName   string  `json:"vendor_name"`
	Total        float64 `json:"total"`
	Disqualified bool    `json:"disqualified"`
}

// Matrix is the dense comparison grid. Every submitted bid appears,
// disqualified or not.
type Matrix struct {
	Criteria   []scoring.CriterionWeight `json:"criteria"`
	Vendors    []Vendor                  `json:"vendors"`
	Entries    []Entry                   `json:"entries"`
	BestBidID  string                    `json:"best_bid_id,omitempty"`
	WorstBidID string                    `json:"worst_bid_id,omitempty"`
	ByCategory map[bid.Category][]string `json:"by_category"`
}

// Build assembles the grid. Entries are ordered criterion-major in the
// order of criteria, then by the order of rows.
func Build(criteria []scoring.CriterionWeight, rows []Row) *Matrix {
	m := &Matrix{
		Criteria:   append([]scoring.CriterionWeight(nil), criteria...),
		Vendors:    make([]Vendor, 0, len(rows)),
		Entries:    make([]Entry, 0, len(criteria)*len(rows)),
		ByCategory: make(map[bid.Category][]string),
	}

	for _, r := range rows {
		m.Vendors = append(m.Vendors, Vendor{
			BidID:        r.BidID,
			VendorID:     r.VendorID,
			VendorName:   r.VendorName,
			Total:        r.Total,
			Disqualified: r.Disqualified,
		})
	}

	for _, c := range criteria {
		m.ByCategory[c.Category] = append(m.ByCategory[c.Category], c.Name)

		start := len(m.Entries)
		for _, r := range rows {
			score := r.Scores.Get(c.Name)
			m.Entries = append(m.Entries, Entry{
				Criterion:    c.Name,
				Category:     c.Category,
				Weight:       c.Weight,
				BidID:        r.BidID,
				VendorID:     r.VendorID,
				VendorName:   r.VendorName,
				Raw:          r.Raw[c.Name],
				Score:        score,
				Weighted:     score * c.Weight,
				Disqualified: r.Disqualified,
			})
		}
		markCriterion(m.Entries[start:])
	}

	m.BestBidID, m.WorstBidID = extremes(m.Vendors)
	return m
}

// markCriterion ranks one criterion's cells by score and flags the best
// and worst. Worst is only flagged when scores differ.
func markCriterion(cells []Entry) {
	if len(cells) == 0 {
		return
	}

	idx := make([]int, len(cells))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := cells[idx[a]], cells[idx[b]]
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		return ca.BidID < cb.BidID
	})

	hi := cells[idx[0]].Score
	lo := cells[idx[len(idx)-1]].Score
	for rank, i := range idx {
		cells[i].Rank = rank + 1
		cells[i].IsBest = cells[i].Score == hi
		cells[i].IsWorst = hi != lo && cells[i].Score == lo
	}
}

// extremes picks the best and worst qualified vendors by total.
func extremes(vendors []Vendor) (best, worst string) {
	var b, w *Vendor
	for i := range vendors {
		v := &vendors[i]
		if v.Disqualified {
			continue
		}
		if b == nil || v.Total > b.Total || (v.Total == b.Total && v.BidID < b.BidID) {
			b = v
		}
		if w == nil || v.Total < w.Total || (v.Total == w.Total && v.BidID > w.BidID) {
			w = v
		}
	}
	if b != nil {
		best = b.BidID
	}
	if w != nil {
		worst = w.BidID
	}
	return best, worst
}

// Cell returns the entry for criterion and bid.
func (m *Matrix) Cell(criterion, bidID string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Criterion == criterion && e.BidID == bidID {
			return e, true
		}
	}
	return Entry{}, false
}

// Column returns every entry for one bid in criteria order.
func (m *Matrix) Column(bidID string) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.BidID == bidID {
			out = append(out, e)
		}
	}
	return out
}
