// Package matcher implements local pattern-based sensitivity
// classification of schema fields. The matcher is a pure function over
// an immutable pattern library: identical input always yields identical
// output, and no usage statistics are updated internally.
package matcher

import (
	"fmt"
	"strings"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// Config holds matcher thresholds.
type Config struct {
	// FuzzyThreshold is the minimum similarity ratio for fuzzy matches.
	FuzzyThreshold float64
	// RegexDiscount is multiplied into regex-derived confidences because
	// regex matching is lower-precision than exact matching.
	RegexDiscount float64
	// minStemLength stops short stems like "dob" from matching as
	// substrings of unrelated names.
	minStemLength int
}

// DefaultConfig returns the standard matcher thresholds.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold: 0.8,
		RegexDiscount:  0.85,
		minStemLength:  4,
	}
}

// Matcher classifies a single field against the pattern library.
type Matcher struct {
	library *Library
	config  Config
}

// New creates a matcher over the given library.
func New(library *Library, config Config) *Matcher {
	if config.FuzzyThreshold == 0 {
		config.FuzzyThreshold = 0.8
	}
	if config.RegexDiscount == 0 {
		config.RegexDiscount = 0.85
	}
	if config.minStemLength == 0 {
		config.minStemLength = 4
	}
	return &Matcher{library: library, config: config}
}

// matchKind priority for tie-breaking on equal confidence.
const (
	priorityExact = 3
	priorityFuzzy = 2
	priorityRegex = 1
)

type candidate struct {
	pattern    *models.SensitivityPattern
	confidence float64
	priority   int
	method     models.DetectionMethod
	rationale  string
}

// Classify runs the local matching pipeline for one field. It returns
// matched=false when nothing applies; fields are never defaulted to
// sensitive or non-sensitive here.
func (m *Matcher) Classify(field models.ColumnDescriptor, regulation models.Regulation, tableContext []models.ColumnDescriptor) (*models.FieldClassification, bool) {
	normalized := NormalizeFieldName(field.ColumnName)
	if normalized == "" {
		return nil, false
	}

	best := m.exactMatch(normalized, field.ColumnName, regulation)
	if best == nil {
		fuzzy := m.fuzzyMatch(field.ColumnName, regulation)
		regex := m.regexMatch(normalized, regulation)
		best = better(fuzzy, regex)
	}
	if best == nil {
		return nil, false
	}

	result := m.buildResult(field, regulation, best)
	m.applyContextBoost(result, field, tableContext)
	return result, true
}

// exactMatch checks the full normalized name first, then individual
// tokens, so "email_address" still hits the "email" stem at full
// confidence.
func (m *Matcher) exactMatch(normalized, original string, regulation models.Regulation) *candidate {
	if p, ok := m.library.ExactLookup(normalized); ok && p.AppliesTo(regulation) {
		return &candidate{
			pattern:    p,
			confidence: p.Confidence,
			priority:   priorityExact,
			method:     models.MethodLocalPattern,
			rationale:  fmt.Sprintf("exact pattern %q matched field name", p.Value),
		}
	}

	var best *candidate
	for _, token := range TokenizeFieldName(original) {
		p, ok := m.library.ExactLookup(token)
		if !ok || !p.AppliesTo(regulation) {
			continue
		}
		c := &candidate{
			pattern:    p,
			confidence: p.Confidence,
			priority:   priorityExact,
			method:     models.MethodLocalPattern,
			rationale:  fmt.Sprintf("exact pattern %q matched name token", p.Value),
		}
		best = better(best, c)
	}
	return best
}

// fuzzyMatch finds the most similar pattern value at or above the
// similarity threshold. Confidence is the pattern base scaled by the
// similarity ratio.
func (m *Matcher) fuzzyMatch(fieldName string, regulation models.Regulation) *candidate {
	var best *candidate
	for _, p := range m.library.fuzzy {
		if !p.AppliesTo(regulation) {
			continue
		}
		sim := Similarity(fieldName, p.Value)
		if sim < m.config.FuzzyThreshold {
			continue
		}
		c := &candidate{
			pattern:    p,
			confidence: p.Confidence * sim,
			priority:   priorityFuzzy,
			method:     models.MethodLocalFuzzy,
			rationale:  fmt.Sprintf("fuzzy match to pattern %q (similarity %.2f)", p.Value, sim),
		}
		best = better(best, c)
	}
	return best
}

// regexMatch tests explicit regex patterns plus containment variants
// derived from exact stems, both discounted relative to exact matches.
func (m *Matcher) regexMatch(normalized string, regulation models.Regulation) *candidate {
	var best *candidate

	for _, cp := range m.library.regex {
		if !cp.pattern.AppliesTo(regulation) {
			continue
		}
		if !cp.re.MatchString(normalized) {
			continue
		}
		c := &candidate{
			pattern:    cp.pattern,
			confidence: cp.pattern.Confidence * m.config.RegexDiscount,
			priority:   priorityRegex,
			method:     models.MethodLocalPattern,
			rationale:  fmt.Sprintf("regex pattern %s matched field name", cp.pattern.ID),
		}
		best = better(best, c)
	}

	// Derived variants: an exact stem appearing inside the name behaves
	// like the ".*stem.*" regex family.
	for stem, p := range m.library.exact {
		if len(stem) < m.config.minStemLength || !p.AppliesTo(regulation) {
			continue
		}
		if !strings.Contains(normalized, stem) {
			continue
		}
		c := &candidate{
			pattern:    p,
			confidence: p.Confidence * m.config.RegexDiscount,
			priority:   priorityRegex,
			method:     models.MethodLocalPattern,
			rationale:  fmt.Sprintf("field name contains sensitive stem %q", stem),
		}
		best = better(best, c)
	}

	return best
}

// applyContextBoost adjusts the confidence of an existing result when the
// table name or sibling columns carry a co-occurring signal of the same
// category. Context never originates a classification.
func (m *Matcher) applyContextBoost(result *models.FieldClassification, field models.ColumnDescriptor, tableContext []models.ColumnDescriptor) {
	tableName := NormalizeFieldName(field.TableName)

	for _, ctx := range m.library.contexts {
		if ctx.Category != result.Category {
			continue
		}
		stem := NormalizeFieldName(ctx.Value)
		boosted := strings.Contains(tableName, stem)
		if !boosted {
			for _, sibling := range tableContext {
				if sibling.ColumnName == field.ColumnName {
					continue
				}
				if strings.Contains(NormalizeFieldName(sibling.ColumnName), stem) {
					boosted = true
					break
				}
			}
		}
		if !boosted {
			continue
		}

		result.Confidence += ctx.Confidence
		if result.Confidence > 0.99 {
			result.Confidence = 0.99
		}
		result.ConfidenceBand = models.BandForConfidence(result.Confidence)
		result.Rationale += fmt.Sprintf("; table context %q supports %s", ctx.Value, ctx.Category)
	}
}

func (m *Matcher) buildResult(field models.ColumnDescriptor, regulation models.Regulation, c *candidate) *models.FieldClassification {
	regulations := c.pattern.Regulations
	if len(regulations) == 0 {
		regulations = []models.Regulation{regulation}
	}

	return &models.FieldClassification{
		SchemaName:     field.SchemaName,
		TableName:      field.TableName,
		ColumnName:     field.ColumnName,
		DataType:       field.DataType,
		IsSensitive:    true,
		Category:       c.pattern.Category,
		Risk:           c.pattern.Risk,
		Regulations:    regulations,
		Confidence:     c.confidence,
		ConfidenceBand: models.BandForConfidence(c.confidence),
		Method:         c.method,
		Rationale:      c.rationale,
	}
}

// better picks the stronger of two candidates: higher confidence wins,
// equal confidence falls back to kind priority (exact > fuzzy > regex).
func better(a, b *candidate) *candidate {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.confidence > a.confidence {
		return b
	}
	if b.confidence == a.confidence && b.priority > a.priority {
		return b
	}
	return a
}
