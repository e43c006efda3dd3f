package evaluation

import (
	"reflect"
	"testing"

	"github.com/procurepro/tbe/internal/bid"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/ranking"
	"github.com/procurepro/tbe/internal/scoring"
	"github.com/procurepro/tbe/internal/tco"
)

// exampleBids are the two bids of the reference scenario: A is cheaper and
// slower, B dearer with better quality and delivery.
func exampleBids() []bid.VendorBid {
	return []bid.VendorBid{
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
	}
}

func mustEvaluate(t *testing.T, req Request) *Outcome {
	t.Helper()
	out, err := Evaluate(req)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return out
}

func mustResult(t *testing.T, out *Outcome, id string) ScoreResult {
	t.Helper()
	r, ok := out.Result(id)
	if !ok {
		t.Fatalf("no result for bid %s", id)
	}
	return r
}

func TestEvaluate_ReferenceScenario(t *testing.T) {
	out := mustEvaluate(t, Request{
		Bids:              exampleBids(),
		RequiredStandards: bid.Required("ISO 9001"),
	})

	a := mustResult(t, out, "A")
	b := mustResult(t, out, "B")

	checks := []struct {
		name      string
		got, want float64
	}{
		{"A price", a.Scores.Price, 100},
		{"B price", b.Scores.Price, 0},
		{"A quality", a.Scores.Quality, 86},
		{"B quality", b.Scores.Quality, 100},
		{"A delivery", a.Scores.Delivery, 0},
		{"B delivery", b.Scores.Delivery, 100},
		{"A compliance", a.Scores.Compliance, 100},
		{"A total", a.Total, 76.5},
		{"B total", b.Total, 60},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if a.Rank == nil || *a.Rank != 1 || b.Rank == nil || *b.Rank != 2 {
		t.Errorf("ranks = %v, %v, want 1, 2", a.Rank, b.Rank)
	}
	if a.Recommendation != ranking.Recommended || b.Recommendation != ranking.Acceptable {
		t.Errorf("recommendations = %s, %s", a.Recommendation, b.Recommendation)
	}
	if out.RecommendedBidID != "A" || out.NoCompliantVendor {
		t.Errorf("recommended = %q, no compliant = %v", out.RecommendedBidID, out.NoCompliantVendor)
	}
	if len(out.Matrix.Entries) != 8 {
		t.Errorf("matrix entries = %d, want 8", len(out.Matrix.Entries))
	}
	if out.TCO["A"] == nil || out.TCO["A"].Total != 100 {
		t.Errorf("TCO[A] = %+v", out.TCO["A"])
	}
	if len(out.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", out.Warnings)
	}
	if got := out.Summary.Ranking.Qualified; got != 2 {
		t.Errorf("qualified = %d, want 2", got)
	}
	if len(out.Config.Weights) != 4 {
		t.Errorf("snapshot weights = %d, want 4", len(out.Config.Weights))
	}
}

func TestEvaluate_FailFast(t *testing.T) {
	bad := scoring.Weights{Price: 0.5, Quality: 0.5, Delivery: 0.5}
	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"empty bid set", Request{}, apperrors.CodeEmptyBidSet},
		{"weights off by more than tolerance", Request{Bids: exampleBids(), Weights: &bad}, apperrors.CodeInvalidWeightConfiguration},
		{"duplicate bid id", Request{Bids: append(exampleBids(), exampleBids()[0])}, apperrors.CodeValidation},
		{"unknown policy", Request{Bids: exampleBids(), Options: Options{IncompletePolicy: "skip"}}, apperrors.CodeValidation},
		{"unknown price method", Request{Bids: exampleBids(), Options: Options{PriceMethod: "cubic"}}, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.req)
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("Evaluate() error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestEvaluate_MandatoryMissing(t *testing.T) {
	bids := exampleBids()
	bids[1].Standards = nil

	out := mustEvaluate(t, Request{
		Bids:              bids,
		RequiredStandards: bid.Mandatory("ISO 9001"),
	})

	b := mustResult(t, out, "B")
	if !b.Disqualified || b.Rank != nil || b.Recommendation != ranking.Disqualified {
		t.Errorf("B = %+v, want disqualified without rank", b)
	}
	if b.Scores.Compliance != 0 {
		t.Errorf("B compliance = %v, want 0", b.Scores.Compliance)
	}
	if got := out.Compliance["B"].MissingStandards; !reflect.DeepEqual(got, []string{"ISO 9001"}) {
		t.Errorf("missing standards = %v", got)
	}

	var found bool
	for _, v := range out.Matrix.Vendors {
		if v.BidID == "B" {
			found = true
			if !v.Disqualified {
				t.Error("matrix row for B not flagged disqualified")
			}
		}
	}
	if !found {
		t.Error("disqualified bid dropped from matrix")
	}
	if len(out.Results) != 2 {
		t.Errorf("results = %d, want 2", len(out.Results))
	}
}

func TestEvaluate_NoCompliantVendor(t *testing.T) {
	bids := exampleBids()
	for i := range bids {
		bids[i].Standards = nil
	}

	out := mustEvaluate(t, Request{Bids: bids, RequiredStandards: bid.Mandatory("ISO 9001")})
	if !out.NoCompliantVendor || out.RecommendedBidID != "" {
		t.Errorf("NoCompliantVendor = %v, recommended = %q", out.NoCompliantVendor, out.RecommendedBidID)
	}
	if len(out.Ranking.Qualified()) != 0 {
		t.Error("expected empty ranking")
	}
}

func incompleteBids() []bid.VendorBid {
	bids := exampleBids()
	return append(bids, bid.VendorBid{
		ID:           "C",
		VendorID:     "vendor-c",
		TotalPrice:   bid.Float(50),
		DeliveryDays: bid.Float(7),
		Standards:    []string{"ISO 9001"},
	})
}

func TestEvaluate_MissingAttributes(t *testing.T) {
	t.Run("non-strict scores zero and keeps the bid", func(t *testing.T) {
		out := mustEvaluate(t, Request{Bids: incompleteBids()})

		c := mustResult(t, out, "C")
		if c.Disqualified || c.Scores.Quality != 0 {
			t.Errorf("C = %+v", c)
		}
		if a := mustResult(t, out, "A"); a.Scores.Price != 50 {
			t.Errorf("A price = %v, want 50 with C in range", a.Scores.Price)
		}
		if len(out.Warnings) != 1 || out.Warnings[0].Code != apperrors.CodeIncompleteBid {
			t.Errorf("warnings = %+v", out.Warnings)
		}
	})

	t.Run("strict abort fails the run", func(t *testing.T) {
		_, err := Evaluate(Request{Bids: incompleteBids(), Options: Options{StrictIncomplete: bid.Bool(true)}})
		if !apperrors.IsCode(err, apperrors.CodeIncompleteBid) {
			t.Fatalf("error = %v, want INCOMPLETE_BID", err)
		}
		appErr := err.(*apperrors.AppError)
		if appErr.Details["bid_id"] != "C" {
			t.Errorf("bid_id detail = %q, want C", appErr.Details["bid_id"])
		}
	})

	t.Run("strict exclude disqualifies and drops from ranges", func(t *testing.T) {
		out := mustEvaluate(t, Request{
			Bids:    incompleteBids(),
			Options: Options{StrictIncomplete: bid.Bool(true), IncompletePolicy: PolicyExclude},
		})

		c := mustResult(t, out, "C")
		if !c.Disqualified || c.Rank != nil {
			t.Errorf("C = %+v, want disqualified", c)
		}
		if a := mustResult(t, out, "A"); a.Scores.Price != 100 || a.Total != 76.5 {
			t.Errorf("A price = %v total = %v, want 100 and 76.5", a.Scores.Price, a.Total)
		}
	})
}

func TestEvaluate_CostErrors(t *testing.T) {
	bids := exampleBids()
	bids[1].Shipping = -5

	out := mustEvaluate(t, Request{Bids: bids})
	if out.TCO["B"] != nil {
		t.Errorf("TCO[B] = %+v, want nil", out.TCO["B"])
	}
	if _, ok := out.TCO["B"]; !ok {
		t.Error("TCO map should still carry an entry for B")
	}
	if len(out.Warnings) != 1 || out.Warnings[0].Code != apperrors.CodeInvalidCostInput || out.Warnings[0].Field != "shipping" {
		t.Errorf("warnings = %+v", out.Warnings)
	}
	if b := mustResult(t, out, "B"); b.Rank == nil {
		t.Error("cost error should not remove B from ranking")
	}

	_, err := Evaluate(Request{Bids: bids, Options: Options{CostErrorsFatal: bid.Bool(true)}})
	if !apperrors.IsCode(err, apperrors.CodeInvalidCostInput) {
		t.Errorf("fatal cost error = %v, want INVALID_COST_INPUT", err)
	}
}

func TestEvaluate_RejectedCostsLeavePriceRange(t *testing.T) {
	bids := append(exampleBids(), bid.VendorBid{
		ID:              "X",
		VendorID:        "vendor-x",
		TotalPrice:      bid.Float(-1000),
		QualityRating:   bid.Float(5.0),
		PastPerformance: bid.Float(5.0),
		DeliveryDays:    bid.Float(5),
		Standards:       []string{"ISO 9001"},
	})

	out := mustEvaluate(t, Request{Bids: bids, RequiredStandards: bid.Required("ISO 9001")})

	a, b, x := mustResult(t, out, "A"), mustResult(t, out, "B"), mustResult(t, out, "X")
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"A price", a.Scores.Price, 100},
		{"B price", b.Scores.Price, 0},
		{"X price", x.Scores.Price, 0},
		{"A total", a.Total, 76.5},
		{"X total", x.Total, 60},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if a.Rank == nil || *a.Rank != 1 {
		t.Errorf("A rank = %v, want 1", a.Rank)
	}
	if x.Price != nil {
		t.Errorf("X price = %v, want nil", *x.Price)
	}
	if len(out.Warnings) != 1 || out.Warnings[0].BidID != "X" || out.Warnings[0].Code != apperrors.CodeInvalidCostInput {
		t.Errorf("warnings = %+v", out.Warnings)
	}
}

func TestEvaluate_OverflowingCostsBecomeWarnings(t *testing.T) {
	bids := exampleBids()
	bids[0].Maintenance = []float64{1000, 1000, 1000}

	out := mustEvaluate(t, Request{Bids: bids, TCO: &tco.Config{LifespanYears: 3, InflationRate: 1e200}})

	if out.TCO["A"] != nil {
		t.Errorf("TCO[A] = %+v, want nil", out.TCO["A"])
	}
	if out.TCO["B"] == nil || out.TCO["B"].Total != 150 {
		t.Errorf("TCO[B] = %+v, want total 150", out.TCO["B"])
	}
	if len(out.Warnings) != 1 || out.Warnings[0].BidID != "A" || out.Warnings[0].Field != "total" {
		t.Errorf("warnings = %+v", out.Warnings)
	}
}

func TestEvaluate_PriceFromTCO(t *testing.T) {
	bids := exampleBids()
	bids[0].AnnualMaintenance = 100

	out := mustEvaluate(t, Request{Bids: bids, Options: Options{PriceSource: PriceTCO}})

	a, b := mustResult(t, out, "A"), mustResult(t, out, "B")
	if *a.Price != 600 || a.Scores.Price != 0 || b.Scores.Price != 100 {
		t.Errorf("A price=%v score=%v, B score=%v", *a.Price, a.Scores.Price, b.Scores.Price)
	}
	if out.Summary.TCO.BestBidID != "B" {
		t.Errorf("best TCO = %s, want B", out.Summary.TCO.BestBidID)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	req := Request{
		Bids:              incompleteBids(),
		RequiredStandards: bid.Required("ISO 9001", "ISO 14001"),
		RequiredCerts:     bid.Required("CE"),
	}
	first := mustEvaluate(t, req)
	second := mustEvaluate(t, req)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different outcomes")
	}
}

func TestEvaluate_BoundedScores(t *testing.T) {
	bids := incompleteBids()
	bids[0].QualityRating = bid.Float(9)
	out := mustEvaluate(t, Request{Bids: bids, Options: Options{MaxScore: 10}})

	for _, r := range out.Results {
		for _, s := range []float64{r.Scores.Price, r.Scores.Quality, r.Scores.Delivery, r.Scores.Compliance, r.Total} {
			if s < 0 || s > 10 {
				t.Errorf("%s score %v outside [0,10]", r.BidID, s)
			}
		}
	}
}

func TestCalculateSingleScore_MatchesBatch(t *testing.T) {
	out := mustEvaluate(t, Request{Bids: exampleBids()})

	pc := PreviewContext{
		Ranges: scoring.Ranges{
			Price:    scoring.NewRange(100, 150),
			Delivery: scoring.NewRange(5, 10),
		},
	}
	for _, b := range exampleBids() {
		got, err := CalculateSingleScore(b, pc)
		if err != nil {
			t.Fatalf("CalculateSingleScore(%s) error = %v", b.ID, err)
		}
		want := mustResult(t, out, b.ID)
		if got.Total != want.Total || !reflect.DeepEqual(got.Scores, want.Scores) {
			t.Errorf("%s preview = %v %+v, batch = %v %+v", b.ID, got.Total, got.Scores, want.Total, want.Scores)
		}
	}
}

func TestCalculateSingleScore_Clamps(t *testing.T) {
	b := exampleBids()[0]
	b.TotalPrice = bid.Float(40)

	got, err := CalculateSingleScore(b, PreviewContext{
		Ranges: scoring.Ranges{Price: scoring.NewRange(100, 150)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Scores.Price != 100 {
		t.Errorf("price below range = %v, want 100", got.Scores.Price)
	}
	if got.Scores.Delivery != 100 {
		t.Errorf("delivery with no range = %v, want 100", got.Scores.Delivery)
	}
}

func TestCalculateSingleScore_CostWarning(t *testing.T) {
	b := exampleBids()[0]
	b.Shipping = -5

	got, err := CalculateSingleScore(b, PreviewContext{
		Ranges: scoring.Ranges{Price: scoring.NewRange(100, 150)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.TCOTotal != nil {
		t.Errorf("TCOTotal = %v, want nil", *got.TCOTotal)
	}
	if got.Scores.Price != 0 {
		t.Errorf("price with rejected costs = %v, want 0", got.Scores.Price)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Code != apperrors.CodeInvalidCostInput || got.Warnings[0].Field != "shipping" {
		t.Errorf("warnings = %+v", got.Warnings)
	}

	_, err = CalculateSingleScore(b, PreviewContext{Options: Options{CostErrorsFatal: bid.Bool(true)}})
	if !apperrors.IsCode(err, apperrors.CodeInvalidCostInput) {
		t.Errorf("fatal cost error = %v, want INVALID_COST_INPUT", err)
	}
}
