package models

// MatchKind distinguishes how a sensitivity pattern matches a field name.
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchFuzzy   MatchKind = "fuzzy"
	MatchRegex   MatchKind = "regex"
	MatchContext MatchKind = "context"
)

// SensitivityPattern is one entry in the read-only pattern library
// compiled from regulatory definitions. Loaded once at startup and
// shared without locking.
type SensitivityPattern struct {
	ID          string       `json:"id" yaml:"id"`
	Kind        MatchKind    `json:"kind" yaml:"kind"`
	Value       string       `json:"value" yaml:"value"`
	Category    Category     `json:"category" yaml:"category"`
	Risk        RiskLevel    `json:"risk" yaml:"risk"`
	Regulations []Regulation `json:"regulations" yaml:"regulations"`
	Confidence  float64      `json:"confidence" yaml:"confidence"`
	Region      string       `json:"region,omitempty" yaml:"region,omitempty"`
	CompanyID   string       `json:"company_id,omitempty" yaml:"company_id,omitempty"`
}

// AppliesTo reports whether the pattern is in scope for the regulation.
// Patterns with no regulation list apply to every regulation.
func (p *SensitivityPattern) AppliesTo(reg Regulation) bool {
	if len(p.Regulations) == 0 {
		return true
	}
	for _, r := range p.Regulations {
		if r == reg {
			return true
		}
	}
	return false
}
