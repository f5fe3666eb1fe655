package models

// Regulation identifies a compliance framework whose scope determines
// which categories count as sensitive.
type Regulation string

const (
	RegulationGDPR  Regulation = "GDPR"
	RegulationHIPAA Regulation = "HIPAA"
	RegulationCCPA  Regulation = "CCPA"
)

// KnownRegulations lists every regulation the engine ships patterns for.
var KnownRegulations = []Regulation{RegulationGDPR, RegulationHIPAA, RegulationCCPA}

// IsKnown reports whether the regulation is one the engine recognizes.
func (r Regulation) IsKnown() bool {
	for _, known := range KnownRegulations {
		if r == known {
			return true
		}
	}
	return false
}

// Scope narrows alias visibility and cache identity to an organization
// and/or region. Zero value means global scope.
type Scope struct {
	CompanyID string `json:"company_id,omitempty"`
	Region    string `json:"region,omitempty"`
}

// IsGlobal reports whether the scope carries no narrowing at all.
func (s Scope) IsGlobal() bool {
	return s.CompanyID == "" && s.Region == ""
}
