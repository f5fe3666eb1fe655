// Package scheduler sizes, dispatches, and retries AI classification
// batches for the fields local matching could not resolve.
package scheduler

import (
	"strings"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/matcher"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// Keyword groups that shift a field's estimated classification
// difficulty. Specialized vocabulary takes longer, more careful model
// reasoning; plumbing columns take almost none.
var (
	hardKeywords = []string{
		"biometric", "genetic", "dna", "fingerprint", "retina",
		"clinical", "diagnosis", "prescription", "treatment", "lab",
		"legal", "consent", "contract", "dispute",
		"financial", "account", "balance", "credit", "loan", "tax",
	}
	easyKeywords = []string{
		"id", "uuid", "guid", "key", "index", "count", "total",
		"created", "updated", "deleted", "timestamp", "version", "flag",
	}
)

// FieldComplexity estimates how hard a single field is to classify, in
// [0, 1]. Neutral fields score 0.5.
func FieldComplexity(col models.ColumnDescriptor) float64 {
	score := 0.5

	tokens := append(
		matcher.TokenizeFieldName(col.ColumnName),
		matcher.TokenizeFieldName(col.TableName)...,
	)

	for _, token := range tokens {
		switch {
		case containsAny(token, hardKeywords):
			score += 0.2
		case containsAny(token, easyKeywords):
			score -= 0.2
		}
	}

	// Heavily abbreviated names give the model less to work with.
	normalized := matcher.NormalizeFieldName(col.ColumnName)
	if len(normalized) > 0 && (len(normalized) < 4 || !strings.ContainsAny(normalized, "aeiou")) {
		score += 0.15
	}

	return clamp(score, 0, 1)
}

// BatchComplexity averages field complexity over a set of fields.
// Empty input scores neutral.
func BatchComplexity(fields []models.ColumnDescriptor) float64 {
	if len(fields) == 0 {
		return 0.5
	}

	sum := 0.0
	for _, f := range fields {
		sum += FieldComplexity(f)
	}
	return sum / float64(len(fields))
}

func containsAny(token string, keywords []string) bool {
	for _, kw := range keywords {
		if token == kw || (len(kw) >= 4 && strings.Contains(token, kw)) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
