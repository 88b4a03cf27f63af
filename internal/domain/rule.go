package domain

import "time"

// FieldType is the expected type of a scoring input field.
type FieldType string

const (
	FieldInt   FieldType = "int"
	FieldFloat FieldType = "float"
	FieldEnum  FieldType = "enum"
)

// FieldSpec declares one input field of a rule table.
type FieldSpec struct {
	Name string    `json:"name" validate:"required"`
	Type FieldType `json:"type" validate:"oneof=int float enum"`
}

// RuleKind tags the variant of a rule.
type RuleKind string

const (
	// RuleThreshold contributes Adjustment when its boolean Expression holds.
	RuleThreshold RuleKind = "threshold"

	// RuleCategory looks the value of Field up in Values.
	RuleCategory RuleKind = "category"

	// RuleTerm contributes the value of its numeric Expression.
	RuleTerm RuleKind = "term"
)

// Rule is one adjustment in a rule table.
type Rule struct {
	ID          string             `json:"id" validate:"required"`
	Kind        RuleKind           `json:"kind" validate:"oneof=threshold category term"`
	Field       string             `json:"field,omitempty"`
	Expression  string             `json:"expression,omitempty"`
	Adjustment  float64            `json:"adjustment,omitempty"`
	Values      map[string]float64 `json:"values,omitempty"`
	Description string             `json:"description,omitempty"`
}

// CombineMode is how rule contributions are accumulated.
type CombineMode string

const (
	CombineSum     CombineMode = "sum"
	CombineProduct CombineMode = "product"
)

// Identity returns the neutral contribution for the combine mode.
func (c CombineMode) Identity() float64 {
	if c == CombineProduct {
		return 1
	}
	return 0
}

// Perturbation is the uniform range of the single random draw.
type Perturbation struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// IsZero reports whether no perturbation is configured.
func (p Perturbation) IsZero() bool {
	return p.Min == 0 && p.Max == 0
}

// Clamp bounds the final score. Nil bounds are open.
type Clamp struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Band assigns Label to scores strictly above Above.
type Band struct {
	Above float64 `json:"above"`
	Label string  `json:"label" validate:"required"`
}

// FactorSpec describes a display breakdown computed alongside the score.
type FactorSpec struct {
	Name string `json:"name" validate:"required"`

	// Expression is a numeric expression over the fields. When empty the
	// factor is (sum of the contributions of Rules + Offset) * Scale.
	Expression string   `json:"expression,omitempty"`
	Rules      []string `json:"rules,omitempty"`
	Offset     float64  `json:"offset,omitempty"`
	Scale      float64  `json:"scale,omitempty"`

	Floor bool     `json:"floor,omitempty"`
	Round bool     `json:"round,omitempty"` // nearest integer, applied instead of Floor
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// RuleTable is the declarative scorer for one domain.
type RuleTable struct {
	Domain       ScoringDomain `json:"domain" validate:"required"`
	Version      string        `json:"version" validate:"required,max=50"`
	Description  string        `json:"description,omitempty"`
	Fields       []FieldSpec   `json:"fields" validate:"min=1,dive"`
	Combine      CombineMode   `json:"combine" validate:"oneof=sum product"`
	Base         float64       `json:"base"`
	Rules        []Rule        `json:"rules" validate:"min=1,dive"`
	Perturbation Perturbation  `json:"perturbation"`
	Floor        bool          `json:"floor"`
	Clamp        Clamp         `json:"clamp"`
	Bands        []Band        `json:"bands" validate:"dive"` // strictly descending by Above
	DefaultLabel string        `json:"defaultLabel"`
	Factors      []FactorSpec  `json:"factors,omitempty" validate:"dive"`
	Enabled      bool          `json:"enabled"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Float returns a pointer to v, for clamp and factor bounds.
func Float(v float64) *float64 {
	return &v
}
