// Package evaluation runs the technical bid evaluation pipeline: TCO,
// compliance, normalization, weighting, matrix and ranking.
//
// Evaluate and CalculateSingleScore are pure functions of their inputs. The
// Service type adds run IDs, caching, persistence, events and metrics
// around them.
package evaluation

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/compliance"
	"github.com/procurepro/tbe/internal/matrix"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/money"
	"github.com/procurepro/tbe/internal/ranking"
	"github.com/procurepro/tbe/internal/scoring"
	"github.com/procurepro/tbe/internal/tco"
)

// compareTopN is how many qualified bids the outcome compares per criterion.
const compareTopN = 3

// pipeline holds the validated stages of one run.
type pipeline struct {
	opts    Options
	weights *scoring.WeightConfig
	engine  *scoring.Engine
	scorer  *compliance.Scorer
	ranker  *ranking.Engine
	tco     tco.Config
}

func newPipeline(w *scoring.Weights, criteria []scoring.Criterion, tcoCfg *tco.Config, opts Options) (*pipeline, error) {
	weights := scoring.DefaultWeights()
	if w != nil {
		weights = *w
	}
	wc, err := scoring.NewWeightConfig(weights, criteria)
	if err != nil {
		return nil, err
	}

	opts, err = opts.withDefaults()
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	scorer, err := compliance.NewScorer(*opts.Compliance)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	ranker, err := ranking.NewEngine(*opts.Thresholds, ranking.Rules{
		MinCompliance:         opts.MinCompliancePct(),
		AllowMissingMandatory: opts.MissingMandatoryAllowed(),
	}, opts.MaxScore)
	if err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	tc := tco.DefaultConfig()
	if tcoCfg != nil {
		tc = *tcoCfg
	}

	return &pipeline{
		opts:    opts,
		weights: wc,
		engine:  scoring.NewEngine(wc, opts.PriceMethod, opts.MaxScore),
		scorer:  scorer,
		ranker:  ranker,
		tco:     tc,
	}, nil
}

// bidState carries one bid through the first pass.
type bidState struct {
	b         *bid.VendorBid
	vendor    bid.VendorRecord
	breakdown *tco.Breakdown
	detail    compliance.Detail
	in        scoring.Inputs
	missing   []string
	excluded  bool
}

// Evaluate scores, ranks and summarizes every bid in req.
//
// It fails with EMPTY_BID_SET when there are no bids,
// INVALID_WEIGHT_CONFIGURATION before any bid is processed, INCOMPLETE_BID
// in strict mode under the abort policy, and INVALID_COST_INPUT only when
// cost errors are configured fatal. Otherwise per-bid problems become
// warnings on the outcome.
func Evaluate(req Request) (*Outcome, error) {
	if len(req.Bids) == 0 {
		return nil, apperrors.EmptyBidSet()
	}
	p, err := newPipeline(req.Weights, req.CustomCriteria, req.TCO, req.Options)
	if err != nil {
		return nil, err
	}
	if err := checkBids(req.Bids); err != nil {
		return nil, err
	}
	return p.run(req)
}

func checkBids(bids []bid.VendorBid) error {
	seen := make(map[string]bool, len(bids))
	for i, b := range bids {
		if strings.TrimSpace(b.ID) == "" {
			return apperrors.ValidationError(fmt.Sprintf("bid at position %d has no id", i))
		}
		if seen[b.ID] {
			return apperrors.ValidationError(fmt.Sprintf("duplicate bid id %q", b.ID)).WithDetail("bid_id", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

func (p *pipeline) run(req Request) (*Outcome, error) {
	out := &Outcome{
		TCO:        make(map[string]*tco.Breakdown, len(req.Bids)),
		Compliance: make(map[string]compliance.Detail, len(req.Bids)),
		Warnings:   []Warning{},
	}

	// Pass one: per-bid values that need no cross-bid context.
	states := make([]bidState, len(req.Bids))
	var costs []*tco.Breakdown
	for i := range req.Bids {
		st := &states[i]
		st.b = &req.Bids[i]
		st.vendor = vendorFor(req.Vendors, st.b.VendorID)

		costRejected := false
		if _, ok := st.b.Price(); ok {
			bd, err := tco.Calculate(st.b, p.tco)
			if err != nil {
				if p.opts.FatalCostErrors() {
					return nil, err
				}
				costRejected = true
				out.Warnings = append(out.Warnings, costWarning(st.b.ID, err))
			} else {
				st.breakdown = bd
				costs = append(costs, bd)
			}
		}

		st.detail = p.scorer.Score(st.b, st.vendor, req.RequiredStandards, req.RequiredCerts)
		// A bid with rejected costs scores 0 on price and stays out of the
		// price range.
		var price *float64
		if !costRejected {
			price = p.price(st.b, st.breakdown)
		}
		st.in = p.engine.Inputs(st.b, price, st.detail.Score)

		st.missing = append(st.b.Missing(), p.engine.MissingCustom(st.in)...)
		if len(st.missing) == 0 {
			continue
		}
		switch {
		case !p.opts.Strict():
			out.Warnings = append(out.Warnings, Warning{
				BidID:   st.b.ID,
				Code:    apperrors.CodeIncompleteBid,
				Field:   strings.Join(st.missing, ","),
				Message: fmt.Sprintf("bid %s is missing %s; scored as 0", st.b.ID, strings.Join(st.missing, ", ")),
			})
		case p.opts.IncompletePolicy == PolicyExclude:
			st.excluded = true
			out.Warnings = append(out.Warnings, Warning{
				BidID:   st.b.ID,
				Code:    apperrors.CodeIncompleteBid,
				Field:   strings.Join(st.missing, ","),
				Message: fmt.Sprintf("bid %s is missing %s; excluded from ranking", st.b.ID, strings.Join(st.missing, ", ")),
			})
		default:
			return nil, apperrors.IncompleteBid(st.b.ID, st.missing)
		}
	}
	tco.Rank(costs, p.opts.MaxScore)

	// Pass two: normalize against the ranges of the eligible bids.
	inputs := make([]scoring.Inputs, 0, len(states))
	for _, st := range states {
		if !st.excluded {
			inputs = append(inputs, st.in)
		}
	}
	ranges := p.engine.Ranges(inputs)

	cands := make([]ranking.Candidate, len(states))
	byID := make(map[string]*bidState, len(states))
	for i := range states {
		st := &states[i]
		byID[st.b.ID] = st
		s := p.engine.Normalize(st.in, ranges)
		cands[i] = ranking.Candidate{
			BidID:            st.b.ID,
			VendorID:         st.b.VendorID,
			VendorName:       st.vendor.DisplayName(),
			Total:            p.engine.Total(s),
			Scores:           s,
			CompliancePct:    st.detail.Score,
			Price:            st.in.Price,
			MissingMandatory: st.detail.MissingMandatory,
		}
		if st.excluded {
			cands[i].Incomplete = st.missing
		}
	}

	out.Ranking = p.ranker.Rank(cands)
	out.NoCompliantVendor = out.Ranking.NoCompliantVendor
	if q := out.Ranking.Qualified(); len(q) > 0 {
		out.RecommendedBidID = q[0].BidID
	}

	rows := make([]matrix.Row, 0, len(out.Ranking.Ranked))
	details := make([]compliance.Detail, 0, len(states))
	for _, r := range out.Ranking.Ranked {
		st := byID[r.BidID]
		out.Results = append(out.Results, p.result(st, r))
		rows = append(rows, matrix.Row{
			BidID:        r.BidID,
			VendorID:     r.VendorID,
			VendorName:   r.VendorName,
			Raw:          rawValues(st.in),
			Scores:       r.Scores,
			Total:        r.Total,
			Disqualified: r.Disqualified,
		})

		out.Compliance[r.BidID] = st.detail
		details = append(details, st.detail)
		if st.breakdown != nil {
			rounded := st.breakdown.Rounded()
			out.TCO[r.BidID] = &rounded
		} else {
			out.TCO[r.BidID] = nil
		}
	}

	active := p.weights.Active()
	out.Matrix = matrix.Build(active, rows)
	out.Comparison = ranking.CompareTop(out.Ranking, compareTopN, active)
	out.Summary = Summaries{
		Ranking:    ranking.Summarize(out.Ranking),
		TCO:        tco.Summarize(costs),
		Compliance: compliance.Summarize(details),
	}
	out.Config = p.snapshot(req.RequiredStandards, req.RequiredCerts)
	return out, nil
}

// price resolves the value the price criterion scores on.
func (p *pipeline) price(b *bid.VendorBid, bd *tco.Breakdown) *float64 {
	if p.opts.PriceSource == PriceTCO {
		if bd == nil {
			return nil
		}
		v := bd.Total
		return &v
	}
	if v, ok := b.Price(); ok {
		return &v
	}
	return nil
}

func (p *pipeline) result(st *bidState, r ranking.Ranked) ScoreResult {
	res := ScoreResult{
		BidID:          r.BidID,
		VendorID:       r.VendorID,
		VendorName:     r.VendorName,
		Price:          st.in.Price,
		Scores:         roundScores(r.Scores),
		Total:          money.Round2(r.Total),
		CompliancePct:  money.Round2(st.detail.Score),
		Missing:        st.missing,
		Rank:           r.Rank,
		Recommendation: r.Recommendation,
		Disqualified:   r.Disqualified,
		Notes:          r.Notes,
	}
	if st.breakdown != nil {
		v := money.Round2(st.breakdown.Total)
		res.TCOTotal = &v
	}
	return res
}

func (p *pipeline) snapshot(standards, certs []bid.Requirement) Snapshot {
	s := Snapshot{
		Weights:           p.weights.Active(),
		RequiredStandards: standards,
		RequiredCerts:     certs,
		TCO:               p.tco,
		Options:           p.opts,
	}
	if s.RequiredStandards == nil {
		s.RequiredStandards = []bid.Requirement{}
	}
	if s.RequiredCerts == nil {
		s.RequiredCerts = []bid.Requirement{}
	}
	return s
}

func vendorFor(vendors map[string]bid.VendorRecord, id string) bid.VendorRecord {
	if v, ok := vendors[id]; ok {
		if v.ID == "" {
			v.ID = id
		}
		return v
	}
	return bid.VendorRecord{ID: id}
}

func costWarning(bidID string, err error) Warning {
	w := Warning{BidID: bidID, Code: apperrors.CodeInvalidCostInput, Message: err.Error()}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		w.Code = appErr.Code
		w.Field = appErr.Details["field"]
		w.Message = appErr.Message
	}
	return w
}

// rawValues maps each criterion to the raw value it was scored on.
func rawValues(in scoring.Inputs) map[string]*float64 {
	pct := in.CompliancePct
	raw := map[string]*float64{
		string(bid.CategoryPrice):      in.Price,
		string(bid.CategoryDelivery):   in.DeliveryDays,
		string(bid.CategoryCompliance): &pct,
	}
	if q, ok := in.QualityRaw(); ok {
		raw[string(bid.CategoryQuality)] = &q
	} else {
		raw[string(bid.CategoryQuality)] = nil
	}
	for name, v := range in.Custom {
		raw[name] = v
	}
	return raw
}

func roundScores(s scoring.CategoryScores) scoring.CategoryScores {
	out := scoring.CategoryScores{
		Price:      money.Round2(s.Price),
		Quality:    money.Round2(s.Quality),
		Delivery:   money.Round2(s.Delivery),
		Compliance: money.Round2(s.Compliance),
	}
	if len(s.Custom) > 0 {
		out.Custom = make(map[string]float64, len(s.Custom))
		for k, v := range s.Custom {
			out.Custom[k] = money.Round2(v)
		}
	}
	return out
}

// CalculateSingleScore scores one bid against caller-supplied ranges using
// the same normalization and weighting as Evaluate. Rank and
// recommendation reflect the bid alone: it is categorized by its total
// and disqualified by the same rules a full run applies.
func CalculateSingleScore(b bid.VendorBid, pc PreviewContext) (*ScoreResult, error) {
	p, err := newPipeline(pc.Weights, pc.CustomCriteria, pc.TCO, pc.Options)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(b.ID) == "" {
		b.ID = "preview"
	}

	st := &bidState{b: &b, vendor: pc.Vendor}
	if st.vendor.ID == "" {
		st.vendor.ID = b.VendorID
	}
	var warnings []Warning
	costRejected := false
	if _, ok := b.Price(); ok {
		bd, err := tco.Calculate(&b, p.tco)
		if err != nil {
			if p.opts.FatalCostErrors() {
				return nil, err
			}
			costRejected = true
			warnings = append(warnings, costWarning(b.ID, err))
		}
		st.breakdown = bd
	}
	st.detail = p.scorer.Score(&b, st.vendor, pc.RequiredStandards, pc.RequiredCerts)
	var price *float64
	if !costRejected {
		price = p.price(&b, st.breakdown)
	}
	st.in = p.engine.Inputs(&b, price, st.detail.Score)
	st.missing = append(b.Missing(), p.engine.MissingCustom(st.in)...)
	if len(st.missing) > 0 {
		if p.opts.Strict() && p.opts.IncompletePolicy == PolicyAbort {
			return nil, apperrors.IncompleteBid(b.ID, st.missing)
		}
		warnings = append(warnings, Warning{
			BidID:   b.ID,
			Code:    apperrors.CodeIncompleteBid,
			Field:   strings.Join(st.missing, ","),
			Message: fmt.Sprintf("bid %s is missing %s", b.ID, strings.Join(st.missing, ", ")),
		})
	}

	s := p.engine.Normalize(st.in, pc.Ranges)
	c := ranking.Candidate{
		BidID:            b.ID,
		VendorID:         b.VendorID,
		VendorName:       st.vendor.DisplayName(),
		Total:            p.engine.Total(s),
		Scores:           s,
		CompliancePct:    st.detail.Score,
		Price:            st.in.Price,
		MissingMandatory: st.detail.MissingMandatory,
	}
	if len(st.missing) > 0 && p.opts.Strict() {
		c.Incomplete = st.missing
	}

	ranked := p.ranker.Rank([]ranking.Candidate{c}).Ranked[0]
	res := p.result(st, ranked)
	res.Warnings = warnings
	return &res, nil
}
