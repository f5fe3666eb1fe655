package models

import (
	"time"

	"github.com/google/uuid"
)

// ValidationStatus tracks the approval workflow state of an alias.
type ValidationStatus string

const (
	AliasPending  ValidationStatus = "pending"
	AliasApproved ValidationStatus = "approved"
	AliasRejected ValidationStatus = "rejected"
)

// FieldAlias maps an organization's field naming to a canonical sensitive
// field. Created by import, user feedback, or administrative approval.
// Usage counters are mutated on every successful lookup.
type FieldAlias struct {
	ID            uuid.UUID        `json:"id"`
	StandardField string           `json:"standard_field"`
	AliasName     string           `json:"alias_name"`
	Category      Category         `json:"category"`
	Risk          RiskLevel        `json:"risk"`
	Regulations   []Regulation     `json:"regulations,omitempty"`
	Confidence    float64          `json:"confidence"`
	CompanyID     string           `json:"company_id,omitempty"`
	Region        string           `json:"region,omitempty"`
	Status        ValidationStatus `json:"status"`
	UsageCount    int              `json:"usage_count"`
	SuccessCount  int              `json:"success_count"`
	FailureCount  int              `json:"failure_count"`
	CreatedAt     time.Time        `json:"created_at"`
	LastUsedAt    *time.Time       `json:"last_used_at,omitempty"`
}

// AccuracyRate returns the fraction of reported outcomes that confirmed
// this alias, or 0 when no outcomes have been reported yet.
func (a *FieldAlias) AccuracyRate() float64 {
	total := a.SuccessCount + a.FailureCount
	if total == 0 {
		return 0
	}
	return float64(a.SuccessCount) / float64(total)
}

// VisibleIn reports whether the alias may be returned for the given
// lookup scope. Global aliases are visible everywhere; scoped aliases
// only within their own company or region.
func (a *FieldAlias) VisibleIn(scope Scope) bool {
	if a.CompanyID != "" && a.CompanyID != scope.CompanyID {
		return false
	}
	if a.Region != "" && a.Region != scope.Region {
		return false
	}
	return true
}

// LearningRecord is a write-once audit record of a classification outcome
// reported back by a user. A correction (IsCorrect=false with a corrected
// category) triggers synthesis of a new approved alias.
type LearningRecord struct {
	ID                uuid.UUID       `json:"id"`
	SchemaName        string          `json:"schema_name,omitempty"`
	TableName         string          `json:"table_name"`
	ColumnName        string          `json:"column_name"`
	DetectedCategory  Category        `json:"detected_category"`
	CorrectedCategory Category        `json:"corrected_category,omitempty"`
	Confidence        float64         `json:"confidence"`
	Method            DetectionMethod `json:"method"`
	IsCorrect         bool            `json:"is_correct"`
	CompanyID         string          `json:"company_id,omitempty"`
	Region            string          `json:"region,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// AliasStats summarizes the alias store for the administrative interface.
type AliasStats struct {
	TotalAliases    int           `json:"total_aliases"`
	ApprovedAliases int           `json:"approved_aliases"`
	PendingAliases  int           `json:"pending_aliases"`
	TotalUsage      int           `json:"total_usage"`
	AccuracyRate    float64       `json:"accuracy_rate"`
	TopUsed         []*FieldAlias `json:"top_used,omitempty"`
}
