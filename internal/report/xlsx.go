package report

import (
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/procurepro/tbe/internal/evaluation"
	"github.com/procurepro/tbe/internal/pkg/money"
)

// Workbook sheet names, in order.
const (
	SheetRanking    = "Ranking"
	SheetMatrix     = "Matrix"
	SheetTCO        = "TCO"
	SheetCompliance = "Compliance"
	SheetWarnings   = "Warnings"
)

// ContentTypeXLSX is the media type of WriteXLSX output.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// sheet writes rows into one worksheet and keeps the first error.
type sheet struct {
	f      *excelize.File
	name   string
	row    int
	header int
	best   int
	err    error
}

func (s *sheet) write(values ...any) {
	if s.err != nil {
		return
	}
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.name, cell, &values)
}

func (s *sheet) headerRow(values ...any) {
	s.write(values...)
	s.style(1, len(values), s.header)
}

// style applies styleID to columns [from, to] of the current row.
func (s *sheet) style(from, to, styleID int) {
	if s.err != nil || to < from {
		return
	}
	hc, err := excelize.CoordinatesToCellName(from, s.row)
	if err != nil {
		s.err = err
		return
	}
	vc, err := excelize.CoordinatesToCellName(to, s.row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetCellStyle(s.name, hc, vc, styleID)
}

func (s *sheet) widths(w ...float64) {
	for i, width := range w {
		if s.err != nil {
			return
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			s.err = err
			return
		}
		s.err = s.f.SetColWidth(s.name, col, col, width)
	}
}

// WriteXLSX writes o as a workbook with one sheet per view.
func WriteXLSX(w io.Writer, o *evaluation.Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}
	best, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E2EFDA"}},
	})
	if err != nil {
		return err
	}

	if err := f.SetSheetName("Sheet1", SheetRanking); err != nil {
		return err
	}
	for _, name := range []string{SheetMatrix, SheetTCO, SheetCompliance, SheetWarnings} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	writers := []struct {
		name string
		fill func(*sheet, *evaluation.Outcome)
	}{
		{SheetRanking, rankingSheet},
		{SheetMatrix, matrixSheet},
		{SheetTCO, tcoSheet},
		{SheetCompliance, complianceSheet},
		{SheetWarnings, warningsSheet},
	}
	for _, wr := range writers {
		s := &sheet{f: f, name: wr.name, header: header, best: best}
		wr.fill(s, o)
		if s.err != nil {
			return s.err
		}
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func rankingSheet(s *sheet, o *evaluation.Outcome) {
	s.headerRow("Rank", "Bid", "Vendor", "Total", "Price", "Quality", "Delivery", "Compliance",
		"Compliance %", "Recommendation", "Disqualified", "Notes")
	for _, r := range o.Ranking.Ranked {
		var rank any = ""
		if r.Rank != nil {
			rank = *r.Rank
		}
		s.write(rank, r.BidID, vendorLabel(r.Candidate), money.Round2(r.Total),
			money.Round2(r.Scores.Price), money.Round2(r.Scores.Quality),
			money.Round2(r.Scores.Delivery), money.Round2(r.Scores.Compliance),
			money.Round2(r.CompliancePct), humanize(r.Recommendation), r.Disqualified, r.Notes)
		if r.BidID == o.RecommendedBidID {
			s.style(1, 12, s.best)
		}
	}
	s.widths(6, 12, 24, 10, 10, 10, 10, 12, 14, 20, 12, 60)
}

func matrixSheet(s *sheet, o *evaluation.Outcome) {
	m := o.Matrix
	if m == nil {
		return
	}

	head := []any{"Criterion", "Category", "Weight"}
	for _, v := range m.Vendors {
		label := v.VendorName
		if label == "" {
			label = v.BidID
		}
		head = append(head, label)
	}
	s.headerRow(head...)

	for _, c := range m.Criteria {
		row := []any{c.Name, string(c.Category), c.Weight}
		for _, v := range m.Vendors {
			e, ok := m.Cell(c.Name, v.BidID)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, money.Round2(e.Score))
		}
		s.write(row...)
		for i, v := range m.Vendors {
			if e, ok := m.Cell(c.Name, v.BidID); ok && e.IsBest {
				s.style(i+4, i+4, s.best)
			}
		}
	}

	totals := []any{"Total", "", ""}
	for _, v := range m.Vendors {
		totals = append(totals, money.Round2(v.Total))
	}
	s.write(totals...)
	s.style(1, len(totals), s.header)

	w := []float64{24, 12, 8}
	for range m.Vendors {
		w = append(w, 16)
	}
	s.widths(w...)
}

func tcoSheet(s *sheet, o *evaluation.Outcome) {
	s.headerRow("Bid", "Base price", "Shipping", "Installation", "Training", "Acquisition",
		"Operational", "Total", "Lifespan (years)", "Per year", "Per unit", "Score", "Rank")
	for _, r := range o.Ranking.Ranked {
		b := o.TCO[r.BidID]
		if b == nil {
			s.write(r.BidID, "cost inputs rejected")
			continue
		}
		d := b.Rounded()
		s.write(r.BidID, d.BasePrice, d.Shipping, d.Installation, d.Training, d.Acquisition,
			d.Operational, d.Total, d.LifespanYears, d.PerYear, d.PerUnit, d.Score, d.Rank)
		if r.BidID == o.Summary.TCO.BestBidID {
			s.style(1, 13, s.best)
		}
	}
	s.widths(12, 12, 10, 12, 10, 12, 12, 12, 16, 10, 10, 8, 6)
}

func complianceSheet(s *sheet, o *evaluation.Outcome) {
	s.headerRow("Bid", "Vendor", "Score", "Standards", "Certifications", "Matched standards",
		"Missing standards", "Matched certifications", "Missing certifications", "Missing mandatory",
		"Compliant", "Notes")
	for _, r := range o.Ranking.Ranked {
		d, ok := o.Compliance[r.BidID]
		if !ok {
			continue
		}
		s.write(r.BidID, vendorLabel(r.Candidate), money.Round2(d.Score),
			money.Round2(d.StandardsScore), money.Round2(d.CertsScore),
			strings.Join(d.MatchedStandards, ", "), strings.Join(d.MissingStandards, ", "),
			strings.Join(d.MatchedCerts, ", "), strings.Join(d.MissingCerts, ", "),
			strings.Join(d.MissingMandatory, ", "), d.Compliant, d.Notes)
	}
	s.widths(12, 24, 8, 10, 14, 24, 24, 24, 24, 20, 10, 60)
}

func warningsSheet(s *sheet, o *evaluation.Outcome) {
	s.headerRow("Bid", "Code", "Field", "Message")
	for _, w := range o.Warnings {
		s.write(w.BidID, w.Code, w.Field, w.Message)
	}
	s.widths(12, 24, 18, 80)
}
