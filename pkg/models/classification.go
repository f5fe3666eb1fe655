package models

import "time"

// Category classifies what kind of sensitive data a field holds.
type Category string

const (
	CategoryEmail       Category = "EMAIL"
	CategoryPhone       Category = "PHONE"
	CategoryName        Category = "NAME"
	CategoryAddress     Category = "ADDRESS"
	CategoryNationalID  Category = "NATIONAL_ID"
	CategoryDateOfBirth Category = "DATE_OF_BIRTH"
	CategoryFinancial   Category = "FINANCIAL"
	CategoryMedical     Category = "MEDICAL"
	CategoryBiometric   Category = "BIOMETRIC"
	CategoryCredential  Category = "CREDENTIAL"
	CategoryIPAddress   Category = "IP_ADDRESS"
	CategoryLocation    Category = "LOCATION"
	CategoryDemographic Category = "DEMOGRAPHIC"
	CategoryTechnical   Category = "TECHNICAL"
	CategoryUnknown     Category = "UNKNOWN"
)

// RiskLevel grades the exposure impact of a sensitive field.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DetectionMethod records which path produced a classification.
type DetectionMethod string

const (
	MethodLocalPattern DetectionMethod = "local-pattern"
	MethodLocalAlias   DetectionMethod = "local-alias"
	MethodLocalFuzzy   DetectionMethod = "local-fuzzy"
	MethodAI           DetectionMethod = "ai"
	MethodCache        DetectionMethod = "cache"
	MethodFallback     DetectionMethod = "fallback"
)

// ConfidenceBand discretizes a continuous confidence score for reporting.
type ConfidenceBand string

const (
	BandVeryHigh ConfidenceBand = "very-high"
	BandHigh     ConfidenceBand = "high"
	BandMedium   ConfidenceBand = "medium"
	BandLow      ConfidenceBand = "low"
)

// BandForConfidence maps a 0-1 confidence score to its band.
func BandForConfidence(score float64) ConfidenceBand {
	switch {
	case score >= 0.9:
		return BandVeryHigh
	case score >= 0.75:
		return BandHigh
	case score >= 0.5:
		return BandMedium
	default:
		return BandLow
	}
}

// FieldClassification is the unit of output and the unit cached. Every
// code path (pattern, alias, AI, cache, fallback) populates this same
// shape.
type FieldClassification struct {
	SchemaName     string          `json:"schema_name,omitempty"`
	TableName      string          `json:"table_name"`
	ColumnName     string          `json:"column_name"`
	DataType       string          `json:"data_type,omitempty"`
	IsSensitive    bool            `json:"is_sensitive"`
	Category       Category        `json:"category"`
	Risk           RiskLevel       `json:"risk"`
	Regulations    []Regulation    `json:"regulations,omitempty"`
	Confidence     float64         `json:"confidence"`
	ConfidenceBand ConfidenceBand  `json:"confidence_band"`
	Method         DetectionMethod `json:"method"`
	Rationale      string          `json:"rationale,omitempty"`
	ProcessingTime time.Duration   `json:"processing_time_ns,omitempty"`
	CacheHit       bool            `json:"cache_hit"`
}

// FieldKey returns the table.column identity used for de-duplication and
// coverage accounting.
func (c *FieldClassification) FieldKey() string {
	return c.TableName + "." + c.ColumnName
}

// Valid reports whether the classification carries the identifiers every
// downstream consumer requires.
func (c *FieldClassification) Valid() bool {
	return c.TableName != "" && c.ColumnName != ""
}
