package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/evaluation"
	"github.com/procurepro/tbe/internal/ranking"
)

func referenceOutcome(t *testing.T) *evaluation.Outcome {
	t.Helper()
	out, err := evaluation.Evaluate(evaluation.Request{
		Bids: []bid.VendorBid{
			{
				ID:              "A",
				VendorID:        "vendor-a",
				TotalPrice:      bid.Float(100),
				QualityRating:   bid.Float(4.5),
				PastPerformance: bid.Float(4.0),
				DeliveryDays:    bid.Float(10),
				Standards:       []string{"ISO 9001"},
			},
			{
				ID:              "B",
				VendorID:        "vendor-b",
				TotalPrice:      bid.Float(150),
				QualityRating:   bid.Float(5.0),
				PastPerformance: bid.Float(5.0),
				DeliveryDays:    bid.Float(5),
				Standards:       []string{"ISO 9001"},
			},
		},
		RequiredStandards: bid.Required("ISO 9001"),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return out
}

func disqualifiedOutcome() *evaluation.Outcome {
	return &evaluation.Outcome{
		Ranking: ranking.Result{
			Ranked: []ranking.Ranked{{
				Candidate:      ranking.Candidate{BidID: "C", VendorName: "Acme"},
				Recommendation: ranking.Disqualified,
				Disqualified:   true,
				Reasons:        []string{"missing ISO 9001"},
			}},
			NoCompliantVendor: true,
		},
		NoCompliantVendor: true,
	}
}

func TestNewExecutive(t *testing.T) {
	e := NewExecutive(referenceOutcome(t))

	if e.Winner == nil || e.Winner.BidID != "A" || e.Winner.Total != 76.5 {
		t.Fatalf("Winner = %+v, want A at 76.5", e.Winner)
	}
	if e.RunnerUp == nil || e.RunnerUp.BidID != "B" {
		t.Fatalf("RunnerUp = %+v, want B", e.RunnerUp)
	}
	if e.Margin != 16.5 {
		t.Errorf("Margin = %v, want 16.5", e.Margin)
	}
	if len(e.Disqualified) != 0 {
		t.Errorf("Disqualified = %v, want none", e.Disqualified)
	}
	if e.TotalBids != 2 || e.FullyCompliant != 2 {
		t.Errorf("compliance = %d of %d, want 2 of 2", e.FullyCompliant, e.TotalBids)
	}

	text := e.Text()
	for _, want := range []string{
		"Recommended: vendor-a (bid A) with 76.50 points",
		"Runner-up: vendor-b (bid B), 16.50 points behind.",
		"Disqualified: none.",
		"Compliance: 2 of 2 bids fully compliant.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q:\n%s", want, text)
		}
	}
}

func TestExecutive_NoCompliantVendor(t *testing.T) {
	e := NewExecutive(disqualifiedOutcome())

	if e.Winner != nil || e.RunnerUp != nil {
		t.Errorf("Winner/RunnerUp = %v/%v, want nil", e.Winner, e.RunnerUp)
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, disqualifiedOutcome()); err != nil {
		t.Fatal(err)
	}
	text := buf.String()
	for _, want := range []string{
		"No compliant vendor",
		"Disqualified: Acme (missing ISO 9001).",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, referenceOutcome(t)); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	want := []string{SheetRanking, SheetMatrix, SheetTCO, SheetCompliance, SheetWarnings}
	got := f.GetSheetList()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("sheets = %v, want %v", got, want)
	}

	rows, err := f.GetRows(SheetRanking)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("ranking rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Rank" || rows[1][0] != "1" || rows[1][1] != "A" || rows[2][1] != "B" {
		t.Errorf("ranking rows = %v", rows)
	}
	if rows[1][3] != "76.5" {
		t.Errorf("A total cell = %q, want 76.5", rows[1][3])
	}

	matrix, err := f.GetRows(SheetMatrix)
	if err != nil {
		t.Fatal(err)
	}
	last := matrix[len(matrix)-1]
	if last[0] != "Total" {
		t.Errorf("last matrix row = %v, want totals", last)
	}

	tco, err := f.GetRows(SheetTCO)
	if err != nil {
		t.Fatal(err)
	}
	if len(tco) != 3 || tco[1][1] != "100" {
		t.Errorf("tco rows = %v", tco)
	}
}

func TestWriteXLSX_NoMatrix(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, disqualifiedOutcome()); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("workbook is empty")
	}
}
