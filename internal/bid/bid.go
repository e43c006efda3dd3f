// Package bid defines the inputs of a technical bid evaluation: vendor
// quotations, vendor records and compliance requirements.
//
// Values in this package are read-only once an evaluation starts. Nothing
// in the scoring pipeline mutates a VendorBid.
package bid

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Category groups criteria for weighting and display.
type Category string

// Criteria categories.
const (
	CategoryPrice      Category = "price"
	CategoryQuality    Category = "quality"
	CategoryDelivery   Category = "delivery"
	CategoryCompliance Category = "compliance"
	CategoryCustom     Category = "custom"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrice, CategoryQuality, CategoryDelivery, CategoryCompliance, CategoryCustom:
		return true
	}
	return false
}

// Direction says which end of a raw value range scores best.
type Direction string

// Scoring directions.
const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
)

// Attribute names reported when a bid is incomplete.
const (
	AttrPrice           = "price"
	AttrQualityRating   = "quality_rating"
	AttrPastPerformance = "past_performance"
	AttrDeliveryDays    = "delivery_days"
)

// CustomValue is a raw value for an organization-defined criterion.
// Exactly one of Number or Flag is expected to be set.
type CustomValue struct {
	Number *float64
	Flag   *bool
}

// Numeric returns the value as a number; true flags count as 1.
func (v CustomValue) Numeric() (float64, bool) {
	switch {
	case v.Number != nil:
		return *v.Number, true
	case v.Flag != nil:
		if *v.Flag {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// UnmarshalJSON accepts a bare number or boolean.
func (v *CustomValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("custom value: %w", err)
	}
	return v.set(raw)
}

// MarshalJSON writes the bare number or boolean.
func (v CustomValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Flag != nil:
		return json.Marshal(*v.Flag)
	}
	return []byte("null"), nil
}

// UnmarshalYAML accepts a bare number or boolean.
func (v *CustomValue) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("custom value: %w", err)
	}
	return v.set(raw)
}

func (v *CustomValue) set(raw any) error {
	*v = CustomValue{}
	switch x := raw.(type) {
	case nil:
	case bool:
		v.Flag = &x
	case float64:
		v.Number = &x
	case int:
		f := float64(x)
		v.Number = &f
	case int64:
		f := float64(x)
		v.Number = &f
	default:
		return fmt.Errorf("custom value must be a number or boolean, got %T", raw)
	}
	return nil
}

// VendorBid is one vendor's quotation for one RFQ. Optional attributes are
// pointers so that "absent" differs from "zero".
type VendorBid struct {
	ID        string `json:"id" yaml:"id"`
	VendorID  string `json:"vendor_id" yaml:"vendor_id"`
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Currency  string `json:"currency,omitempty" yaml:"currency,omitempty"`

	UnitPrice  *float64 `json:"unit_price,omitempty" yaml:"unit_price,omitempty"`
	Quantity   int      `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	TotalPrice *float64 `json:"total_price,omitempty" yaml:"total_price,omitempty"`

	QualityRating   *float64 `json:"quality_rating,omitempty" yaml:"quality_rating,omitempty"`
	PastPerformance *float64 `json:"past_performance,omitempty" yaml:"past_performance,omitempty"`
	DeliveryDays    *float64 `json:"delivery_days,omitempty" yaml:"delivery_days,omitempty"`

	Standards      []string `json:"standards,omitempty" yaml:"standards,omitempty"`
	Certifications []string `json:"certifications,omitempty" yaml:"certifications,omitempty"`

	Shipping     float64 `json:"shipping,omitempty" yaml:"shipping,omitempty"`
	Installation float64 `json:"installation,omitempty" yaml:"installation,omitempty"`
	Training     float64 `json:"training,omitempty" yaml:"training,omitempty"`

	// Maintenance is the per-year estimate; index 0 is year 1.
	Maintenance       []float64 `json:"maintenance,omitempty" yaml:"maintenance,omitempty"`
	AnnualMaintenance float64   `json:"annual_maintenance,omitempty" yaml:"annual_maintenance,omitempty"`
	WarrantyYears     int       `json:"warranty_years,omitempty" yaml:"warranty_years,omitempty"`
	LifespanYears     int       `json:"lifespan_years,omitempty" yaml:"lifespan_years,omitempty"`

	Custom map[string]CustomValue `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Price returns the quoted total: TotalPrice when given, otherwise
// UnitPrice times Quantity (quantity defaults to 1).
func (b *VendorBid) Price() (float64, bool) {
	if b.TotalPrice != nil {
		return *b.TotalPrice, true
	}
	if b.UnitPrice != nil {
		return *b.UnitPrice * float64(b.Units()), true
	}
	return 0, false
}

// Units returns the quoted quantity, at least 1.
func (b *VendorBid) Units() int {
	if b.Quantity < 1 {
		return 1
	}
	return b.Quantity
}

// Missing lists the required scoring attributes the bid lacks.
func (b *VendorBid) Missing() []string {
	var missing []string
	if _, ok := b.Price(); !ok {
		missing = append(missing, AttrPrice)
	}
	if b.QualityRating == nil {
		missing = append(missing, AttrQualityRating)
	}
	if b.PastPerformance == nil {
		missing = append(missing, AttrPastPerformance)
	}
	if b.DeliveryDays == nil {
		missing = append(missing, AttrDeliveryDays)
	}
	return missing
}

// VendorRecord is the master data held for a vendor. Standards and
// certifications recorded here count for every bid the vendor submits.
type VendorRecord struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Code           string   `json:"code,omitempty" yaml:"code,omitempty"`
	Country        string   `json:"country,omitempty" yaml:"country,omitempty"`
	Standards      []string `json:"standards,omitempty" yaml:"standards,omitempty"`
	Certifications []string `json:"certifications,omitempty" yaml:"certifications,omitempty"`
}

// DisplayName returns the vendor name, falling back to the ID.
func (v VendorRecord) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

// Requirement is one required standard or certification. In JSON and YAML
// it may be written either as a plain string or as an object.
type Requirement struct {
	Name      string `json:"name" yaml:"name"`
	Mandatory bool   `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
}

// Required builds non-mandatory requirements from names.
func Required(names ...string) []Requirement {
	out := make([]Requirement, len(names))
	for i, n := range names {
		out[i] = Requirement{Name: n}
	}
	return out
}

// Mandatory builds mandatory requirements from names.
func Mandatory(names ...string) []Requirement {
	out := make([]Requirement, len(names))
	for i, n := range names {
		out[i] = Requirement{Name: n, Mandatory: true}
	}
	return out
}

type requirementFields Requirement

// UnmarshalJSON accepts "ISO 9001" or {"name":"ISO 9001","mandatory":true}.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = Requirement{Name: name}
		return nil
	}
	var f requirementFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("requirement: %w", err)
	}
	*r = Requirement(f)
	return nil
}

// UnmarshalYAML accepts a scalar name or a mapping.
func (r *Requirement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Requirement{Name: node.Value}
		return nil
	}
	var f requirementFields
	if err := node.Decode(&f); err != nil {
		return fmt.Errorf("requirement: %w", err)
	}
	*r = Requirement(f)
	return nil
}

// Float returns a pointer to v. Handy for building bids in code.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
