package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/aliases"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/apperrors"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/repositories"
)

// AdminService is the operator surface over the learning layer: alias
// review, bulk import and export, feedback recording, and store
// statistics.
type AdminService struct {
	store    *aliases.Store
	learning repositories.LearningRepository
	logger   *zap.Logger
}

// NewAdminService creates the administrative service.
func NewAdminService(store *aliases.Store, learning repositories.LearningRepository, logger *zap.Logger) *AdminService {
	return &AdminService{
		store:    store,
		learning: learning,
		logger:   logger.Named("admin"),
	}
}

// ImportAliases bulk-loads aliases, typically from a previous Export.
func (s *AdminService) ImportAliases(ctx context.Context, list []*models.FieldAlias) (imported, skipped int, err error) {
	return s.store.Import(ctx, list)
}

// ExportAliases returns every stored alias for backup or transfer.
func (s *AdminService) ExportAliases(ctx context.Context) ([]*models.FieldAlias, error) {
	return s.store.Export(ctx)
}

// PendingAliases lists aliases awaiting review.
func (s *AdminService) PendingAliases(ctx context.Context) ([]*models.FieldAlias, error) {
	return s.store.Pending(ctx)
}

// ReviewAlias approves or rejects a pending alias by id.
func (s *AdminService) ReviewAlias(ctx context.Context, id string, approve bool) error {
	pending, err := s.store.Pending(ctx)
	if err != nil {
		return err
	}
	for _, alias := range pending {
		if alias.ID.String() == id {
			if err := s.store.Review(ctx, alias, approve); err != nil {
				return err
			}
			s.logger.Info("alias reviewed",
				zap.String("alias", alias.AliasName),
				zap.Bool("approved", approve))
			return nil
		}
	}
	return fmt.Errorf("pending alias %s: %w", id, apperrors.ErrNotFound)
}

// RecordFeedback stores a user-reported classification outcome. See
// aliases.Store.RecordFeedback for the learning side effects.
func (s *AdminService) RecordFeedback(ctx context.Context, record *models.LearningRecord) error {
	return s.store.RecordFeedback(ctx, record)
}

// RecentFeedback lists the latest learning records.
func (s *AdminService) RecentFeedback(ctx context.Context, limit int) ([]*models.LearningRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.learning.ListRecent(ctx, limit)
}

// Stats summarizes the alias store.
func (s *AdminService) Stats(ctx context.Context) (*models.AliasStats, error) {
	return s.store.Stats(ctx)
}
