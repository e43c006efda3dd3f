package scoring

import (
	"github.com/procurepro/tbe/internal/bid"
)

// CategoryScores are one bid's normalized scores, each in [0, max score].
type CategoryScores struct {
	Price      float64            `json:"price"`
	Quality    float64            `json:"quality"`
	Delivery   float64            `json:"delivery"`
	Compliance float64            `json:"compliance"`
	Custom     map[string]float64 `json:"custom,omitempty"`
}

// Get returns the score for a built-in category or custom criterion name.
func (s CategoryScores) Get(name string) float64 {
	switch bid.Category(name) {
	case bid.CategoryPrice:
		return s.Price
	case bid.CategoryQuality:
		return s.Quality
	case bid.CategoryDelivery:
		return s.Delivery
	case bid.CategoryCompliance:
		return s.Compliance
	}
	return s.Custom[name]
}

// Ranges holds the cross-bid spans used to normalize each attribute.
type Ranges struct {
	Price    Range            `json:"price"`
	Delivery Range            `json:"delivery"`
	Custom   map[string]Range `json:"custom,omitempty"`
}

// Inputs are one bid's raw values, resolved from the bid and from the TCO
// and compliance stages. Nil pointers mark absent values.
type Inputs struct {
	Price           *float64
	QualityRating   *float64
	PastPerformance *float64
	DeliveryDays    *float64
	// CompliancePct is the compliance coverage in [0,100].
	CompliancePct float64
	Custom        map[string]*float64
}

// QualityRaw returns the blended quality indicator on its native [0,5] scale.
func (in Inputs) QualityRaw() (float64, bool) {
	if in.QualityRating == nil || in.PastPerformance == nil {
		return 0, false
	}
	return *in.QualityRating*QualityRatingWeight + *in.PastPerformance*PastPerformanceWeight, true
}

// Engine normalizes and weights bids under one WeightConfig. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	cfg      *WeightConfig
	method   PriceMethod
	maxScore float64
}

// NewEngine creates an engine. A non-positive maxScore means DefaultMaxScore.
func NewEngine(cfg *WeightConfig, method PriceMethod, maxScore float64) *Engine {
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}
	if method == "" {
		method = PriceInverseLinear
	}
	return &Engine{cfg: cfg, method: method, maxScore: maxScore}
}

// Config returns the engine's weight configuration.
func (e *Engine) Config() *WeightConfig {
	return e.cfg
}

// MaxScore returns the upper bound of every score.
func (e *Engine) MaxScore() float64 {
	return e.maxScore
}

// Inputs resolves b's raw values. price is the value to score on, quoted
// or TCO, and may be nil when unavailable.
func (e *Engine) Inputs(b *bid.VendorBid, price *float64, compliancePct float64) Inputs {
	in := Inputs{
		Price:           price,
		QualityRating:   b.QualityRating,
		PastPerformance: b.PastPerformance,
		DeliveryDays:    b.DeliveryDays,
		CompliancePct:   compliancePct,
	}

	if len(e.cfg.criteria) > 0 {
		in.Custom = make(map[string]*float64, len(e.cfg.criteria))
	}
	for _, c := range e.cfg.criteria {
		var v float64
		var ok bool
		if c.Explicit() {
			v, ok = c.Scores[b.ID]
		} else {
			v, ok = c.Raw(b)
		}
		if ok {
			in.Custom[c.Name] = &v
		} else {
			in.Custom[c.Name] = nil
		}
	}
	return in
}

// MissingCustom lists custom criteria without a value for the bid.
func (e *Engine) MissingCustom(in Inputs) []string {
	var missing []string
	for _, c := range e.cfg.criteria {
		if in.Custom[c.Name] == nil {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// Ranges gathers min/max over the inputs. Absent values do not take part.
func (e *Engine) Ranges(inputs []Inputs) Ranges {
	r := Ranges{}
	if len(e.cfg.criteria) > 0 {
		r.Custom = make(map[string]Range, len(e.cfg.criteria))
	}

	for _, in := range inputs {
		if in.Price != nil {
			r.Price = r.Price.Extend(*in.Price)
		}
		if in.DeliveryDays != nil {
			r.Delivery = r.Delivery.Extend(*in.DeliveryDays)
		}
		for _, c := range e.cfg.criteria {
			if c.Explicit() {
				continue
			}
			if v := in.Custom[c.Name]; v != nil {
				r.Custom[c.Name] = r.Custom[c.Name].Extend(*v)
			}
		}
	}
	return r
}

// Normalize scores one bid against r. Absent attributes score 0.
func (e *Engine) Normalize(in Inputs, r Ranges) CategoryScores {
	s := CategoryScores{}

	if in.Price != nil {
		s.Price = Price(*in.Price, r.Price, e.method, e.maxScore)
	}
	if q, ok := Quality(in.QualityRating, in.PastPerformance, e.maxScore); ok {
		s.Quality = q
	}
	if in.DeliveryDays != nil {
		s.Delivery = Delivery(*in.DeliveryDays, r.Delivery, e.maxScore)
	}
	s.Compliance = clamp(in.CompliancePct/100*e.maxScore, e.maxScore)

	if len(e.cfg.criteria) > 0 {
		s.Custom = make(map[string]float64, len(e.cfg.criteria))
	}
	for _, c := range e.cfg.criteria {
		v := in.Custom[c.Name]
		if v == nil {
			s.Custom[c.Name] = 0
			continue
		}
		switch {
		case c.Explicit():
			s.Custom[c.Name] = clamp(*v, e.maxScore)
		case c.Direction == bid.LowerIsBetter:
			s.Custom[c.Name] = InverseLinear(*v, r.Custom[c.Name], e.maxScore)
		default:
			s.Custom[c.Name] = Linear(*v, r.Custom[c.Name], e.maxScore)
		}
	}
	return s
}

// Total returns the weighted total at full precision.
func (e *Engine) Total(s CategoryScores) float64 {
	return e.cfg.Total(s)
}
