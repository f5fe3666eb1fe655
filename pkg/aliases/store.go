// Package aliases implements the organization-specific alias store: the
// learning layer that lets the local classifier recognize field names no
// shipped pattern covers.
package aliases

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/apperrors"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/logging"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/matcher"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/repositories"
)

// Match is a successful alias lookup. Similarity is 1.0 for exact name
// matches and the computed ratio for fuzzy ones.
type Match struct {
	Alias      *models.FieldAlias
	Similarity float64
	Confidence float64
}

// Classification builds the output record for a matched column.
func (m *Match) Classification(col models.ColumnDescriptor) *models.FieldClassification {
	return &models.FieldClassification{
		SchemaName:     col.SchemaName,
		TableName:      col.TableName,
		ColumnName:     col.ColumnName,
		DataType:       col.DataType,
		IsSensitive:    true,
		Category:       m.Alias.Category,
		Risk:           m.Alias.Risk,
		Regulations:    m.Alias.Regulations,
		Confidence:     m.Confidence,
		ConfidenceBand: models.BandForConfidence(m.Confidence),
		Method:         models.MethodLocalAlias,
		Rationale:      fmt.Sprintf("matches learned alias %q for %s", m.Alias.AliasName, m.Alias.StandardField),
	}
}

// Store coordinates alias lookup, learning feedback, and the approval
// workflow over the alias and learning repositories.
type Store struct {
	repo           repositories.AliasRepository
	learning       repositories.LearningRepository
	fuzzyThreshold float64
	logger         *zap.Logger
}

// NewStore creates an alias store. fuzzyThreshold bounds how dissimilar
// a field name may be from a stored alias and still match.
func NewStore(repo repositories.AliasRepository, learning repositories.LearningRepository, fuzzyThreshold float64, logger *zap.Logger) *Store {
	return &Store{
		repo:           repo,
		learning:       learning,
		fuzzyThreshold: fuzzyThreshold,
		logger:         logger.Named("aliases"),
	}
}

// FindMatch looks up a field name against the alias store. Exact matches
// on the normalized name win; otherwise the closest approved alias above
// the fuzzy threshold is used. Only approved aliases classify fields.
// Returns (nil, false, nil) when nothing matches.
func (s *Store) FindMatch(ctx context.Context, fieldName string, scope models.Scope) (*Match, bool, error) {
	normalized := matcher.NormalizeFieldName(fieldName)
	if normalized == "" {
		return nil, false, nil
	}

	exact, err := s.repo.GetByName(ctx, normalized, scope)
	if err != nil {
		return nil, false, fmt.Errorf("alias lookup failed: %w", err)
	}
	for _, alias := range exact {
		if alias.Status != models.AliasApproved {
			continue
		}
		s.recordUsage(ctx, alias)
		return &Match{Alias: alias, Similarity: 1.0, Confidence: alias.Confidence}, true, nil
	}

	approved, err := s.repo.ListApproved(ctx, scope)
	if err != nil {
		return nil, false, fmt.Errorf("alias lookup failed: %w", err)
	}

	var best *Match
	for _, alias := range approved {
		sim := matcher.Similarity(normalized, alias.AliasName)
		if sim < s.fuzzyThreshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{Alias: alias, Similarity: sim, Confidence: alias.Confidence * sim}
		}
	}
	if best == nil {
		return nil, false, nil
	}

	s.recordUsage(ctx, best.Alias)
	return best, true, nil
}

// recordUsage bumps the usage counter. Counter failures never block a
// lookup that already succeeded.
func (s *Store) recordUsage(ctx context.Context, alias *models.FieldAlias) {
	if err := s.repo.RecordUsage(ctx, alias.ID); err != nil {
		s.logger.Warn("failed to record alias usage",
			zap.String("alias", logging.SanitizeFieldName(alias.AliasName)),
			zap.Error(err))
	}
}

// AddAlias registers a new alias. The name is normalized before storage
// so lookups and stored names always compare in the same space. Status
// defaults to pending review.
func (s *Store) AddAlias(ctx context.Context, alias *models.FieldAlias) error {
	alias.AliasName = matcher.NormalizeFieldName(alias.AliasName)
	if alias.AliasName == "" {
		return fmt.Errorf("alias name is empty after normalization")
	}
	if alias.StandardField == "" || alias.Category == "" {
		return fmt.Errorf("alias requires a standard field and category")
	}
	if alias.Status == "" {
		alias.Status = models.AliasPending
	}
	if alias.Confidence == 0 {
		alias.Confidence = 0.8
	}
	if alias.Risk == "" {
		alias.Risk = defaultRiskFor(alias.Category)
	}
	if len(alias.Regulations) == 0 {
		alias.Regulations = defaultRegulationsFor(alias.Category)
	}

	if err := s.repo.Create(ctx, alias); err != nil {
		return err
	}

	s.logger.Info("alias added",
		zap.String("alias", logging.SanitizeFieldName(alias.AliasName)),
		zap.String("standard_field", alias.StandardField),
		zap.String("status", string(alias.Status)))
	return nil
}

// RecordFeedback stores a classification outcome reported by a user.
// A confirmation updates accuracy counters on the alias that produced
// the classification. A correction additionally synthesizes an approved
// alias so the field classifies locally next time.
func (s *Store) RecordFeedback(ctx context.Context, record *models.LearningRecord) error {
	if record.TableName == "" || record.ColumnName == "" {
		return fmt.Errorf("feedback requires a table and column name")
	}
	if !record.IsCorrect && record.CorrectedCategory == "" {
		return fmt.Errorf("corrections require a corrected category")
	}

	if err := s.learning.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	scope := models.Scope{CompanyID: record.CompanyID, Region: record.Region}

	if record.Method == models.MethodLocalAlias {
		s.updateOutcome(ctx, record, scope)
	}

	if !record.IsCorrect {
		return s.synthesizeCorrection(ctx, record, scope)
	}
	return nil
}

// updateOutcome attributes the feedback to the alias that matched the
// column name, if it still exists.
func (s *Store) updateOutcome(ctx context.Context, record *models.LearningRecord, scope models.Scope) {
	normalized := matcher.NormalizeFieldName(record.ColumnName)
	matched, err := s.repo.GetByName(ctx, normalized, scope)
	if err != nil || len(matched) == 0 {
		return
	}
	if err := s.repo.RecordOutcome(ctx, matched[0].ID, record.IsCorrect); err != nil {
		s.logger.Warn("failed to record alias outcome",
			zap.String("alias", logging.SanitizeFieldName(normalized)),
			zap.Error(err))
	}
}

func (s *Store) synthesizeCorrection(ctx context.Context, record *models.LearningRecord, scope models.Scope) error {
	alias := &models.FieldAlias{
		StandardField: string(record.CorrectedCategory),
		AliasName:     matcher.NormalizeFieldName(record.ColumnName),
		Category:      record.CorrectedCategory,
		Risk:          defaultRiskFor(record.CorrectedCategory),
		Regulations:   defaultRegulationsFor(record.CorrectedCategory),
		Confidence:    0.85,
		CompanyID:     scope.CompanyID,
		Region:        scope.Region,
		Status:        models.AliasApproved,
	}

	if err := s.repo.Upsert(ctx, alias); err != nil {
		return fmt.Errorf("failed to synthesize alias from correction: %w", err)
	}

	s.logger.Info("alias learned from correction",
		zap.String("alias", logging.SanitizeFieldName(alias.AliasName)),
		zap.String("category", string(alias.Category)),
		zap.String("company_id", scope.CompanyID))
	return nil
}

// Review resolves a pending alias. Rejected aliases are kept for audit
// but never match.
func (s *Store) Review(ctx context.Context, alias *models.FieldAlias, approve bool) error {
	status := models.AliasRejected
	if approve {
		status = models.AliasApproved
	}
	if err := s.repo.UpdateStatus(ctx, alias.ID, status); err != nil {
		return err
	}
	alias.Status = status
	return nil
}

// Pending lists aliases awaiting review.
func (s *Store) Pending(ctx context.Context) ([]*models.FieldAlias, error) {
	return s.repo.ListByStatus(ctx, models.AliasPending)
}

// Import loads aliases in bulk, normalizing names and replacing existing
// entries in the same scope. Returns how many were imported; entries
// missing required fields are skipped and counted separately.
func (s *Store) Import(ctx context.Context, list []*models.FieldAlias) (imported, skipped int, err error) {
	for _, alias := range list {
		alias.AliasName = matcher.NormalizeFieldName(alias.AliasName)
		if alias.AliasName == "" || alias.StandardField == "" || alias.Category == "" {
			skipped++
			continue
		}
		if alias.Status == "" {
			alias.Status = models.AliasApproved
		}
		if alias.Confidence == 0 {
			alias.Confidence = 0.8
		}
		if upsertErr := s.repo.Upsert(ctx, alias); upsertErr != nil {
			return imported, skipped, fmt.Errorf("import failed at alias %q: %w", alias.AliasName, upsertErr)
		}
		imported++
	}

	s.logger.Info("aliases imported",
		zap.Int("imported", imported),
		zap.Int("skipped", skipped))
	return imported, skipped, nil
}

// Export returns every stored alias, all scopes and statuses included.
func (s *Store) Export(ctx context.Context) ([]*models.FieldAlias, error) {
	return s.repo.ListAll(ctx)
}

// Stats summarizes the store for the administrative surface.
func (s *Store) Stats(ctx context.Context) (*models.AliasStats, error) {
	return s.repo.Stats(ctx, 10)
}

// Available reports whether the backing store responds. Used by the
// orchestrator to decide between alias-assisted and pattern-only runs.
func (s *Store) Available(ctx context.Context) error {
	probe, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := s.repo.Stats(probe, 0); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}

func defaultRiskFor(category models.Category) models.RiskLevel {
	switch category {
	case models.CategoryNationalID, models.CategoryBiometric, models.CategoryCredential, models.CategoryFinancial, models.CategoryMedical:
		return models.RiskCritical
	case models.CategoryEmail, models.CategoryPhone, models.CategoryDateOfBirth, models.CategoryLocation:
		return models.RiskHigh
	case models.CategoryName, models.CategoryAddress, models.CategoryDemographic, models.CategoryIPAddress:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func defaultRegulationsFor(category models.Category) []models.Regulation {
	switch category {
	case models.CategoryMedical, models.CategoryBiometric:
		return []models.Regulation{models.RegulationGDPR, models.RegulationHIPAA}
	case models.CategoryTechnical, models.CategoryUnknown:
		return nil
	default:
		return []models.Regulation{models.RegulationGDPR, models.RegulationCCPA}
	}
}
