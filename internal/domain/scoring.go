package domain

// ScoringDomain names one of the prediction scorers.
type ScoringDomain string

const (
	DomainChurn          ScoringDomain = "churn"
	DomainContentSuccess ScoringDomain = "content-success"
	DomainViewership     ScoringDomain = "viewership"
	DomainRevenue        ScoringDomain = "revenue"
)

// Domains lists every scoring domain in display order.
func Domains() []ScoringDomain {
	return []ScoringDomain{DomainChurn, DomainContentSuccess, DomainViewership, DomainRevenue}
}

// Valid reports whether d is a known domain.
func (d ScoringDomain) Valid() bool {
	for _, known := range Domains() {
		if d == known {
			return true
		}
	}
	return false
}

// ScoringRequest is the raw set of named input fields for one evaluation.
// Values are whatever the caller sent: numbers, numeric strings or labels.
type ScoringRequest map[string]any

// Contribution is the isolated effect of one rule on the raw score.
type Contribution struct {
	RuleID  string  `json:"ruleId"`
	Value   float64 `json:"value"`
	Matched bool    `json:"matched"`
}

// Factor is a named display breakdown.
type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ScoreResult is the outcome of evaluating one request against a table.
type ScoreResult struct {
	Domain        ScoringDomain  `json:"domain"`
	TableVersion  string         `json:"tableVersion"`
	Raw           float64        `json:"raw"`          // combined contributions before perturbation
	Perturbation  float64        `json:"perturbation"` // the applied perturbation
	Score         float64        `json:"score"`        // floored and clamped
	Label         string         `json:"label"`
	Contributions []Contribution `json:"contributions"`
	Factors       []Factor       `json:"factors,omitempty"`
	Inputs        map[string]any `json:"inputs"`              // parsed field values
	Defaulted     []string       `json:"defaulted,omitempty"` // fields missing or unparseable
	Warnings      []string       `json:"warnings,omitempty"`
}

// Number returns the parsed numeric input for name, or 0.
func (r *ScoreResult) Number(name string) float64 {
	if v, ok := r.Inputs[name].(float64); ok {
		return v
	}
	return 0
}

// Text returns the parsed enum input for name, or "".
func (r *ScoreResult) Text(name string) string {
	if v, ok := r.Inputs[name].(string); ok {
		return v
	}
	return ""
}

// FactorValue returns the value of the named factor, or 0.
func (r *ScoreResult) FactorValue(name string) float64 {
	for _, f := range r.Factors {
		if f.Name == name {
			return f.Value
		}
	}
	return 0
}

// ContributionOf returns the contribution recorded for ruleID.
func (r *ScoreResult) ContributionOf(ruleID string) (float64, bool) {
	for _, c := range r.Contributions {
		if c.RuleID == ruleID {
			return c.Value, c.Matched
		}
	}
	return 0, false
}
