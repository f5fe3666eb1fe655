package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/repositories"
)

// stubAliasRepo is a canned-data alias repository for pipeline tests.
type stubAliasRepo struct {
	byName   map[string][]*models.FieldAlias
	approved []*models.FieldAlias
	statsErr error
}

var _ repositories.AliasRepository = (*stubAliasRepo)(nil)

func (s *stubAliasRepo) Create(ctx context.Context, alias *models.FieldAlias) error { return nil }
func (s *stubAliasRepo) Upsert(ctx context.Context, alias *models.FieldAlias) error { return nil }

func (s *stubAliasRepo) GetByName(ctx context.Context, aliasName string, scope models.Scope) ([]*models.FieldAlias, error) {
	return s.byName[aliasName], nil
}

func (s *stubAliasRepo) ListApproved(ctx context.Context, scope models.Scope) ([]*models.FieldAlias, error) {
	return s.approved, nil
}

func (s *stubAliasRepo) ListByStatus(ctx context.Context, status models.ValidationStatus) ([]*models.FieldAlias, error) {
	return nil, nil
}

func (s *stubAliasRepo) ListAll(ctx context.Context) ([]*models.FieldAlias, error) { return nil, nil }

func (s *stubAliasRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ValidationStatus) error {
	return nil
}

func (s *stubAliasRepo) RecordUsage(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubAliasRepo) RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	return nil
}

func (s *stubAliasRepo) Stats(ctx context.Context, topN int) (*models.AliasStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return &models.AliasStats{}, nil
}

// stubLearningRepo records feedback in memory.
type stubLearningRepo struct {
	records []*models.LearningRecord
}

var _ repositories.LearningRepository = (*stubLearningRepo)(nil)

func (s *stubLearningRepo) Create(ctx context.Context, record *models.LearningRecord) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubLearningRepo) ListByField(ctx context.Context, tableName, columnName string) ([]*models.LearningRecord, error) {
	return nil, nil
}

func (s *stubLearningRepo) ListRecent(ctx context.Context, limit int) ([]*models.LearningRecord, error) {
	if limit > 0 && limit < len(s.records) {
		return s.records[len(s.records)-limit:], nil
	}
	return s.records, nil
}
