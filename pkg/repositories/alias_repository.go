package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/apperrors"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/database"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// AliasRepository provides data access for learned field aliases.
type AliasRepository interface {
	Create(ctx context.Context, alias *models.FieldAlias) error
	Upsert(ctx context.Context, alias *models.FieldAlias) error
	GetByName(ctx context.Context, aliasName string, scope models.Scope) ([]*models.FieldAlias, error)
	ListApproved(ctx context.Context, scope models.Scope) ([]*models.FieldAlias, error)
	ListByStatus(ctx context.Context, status models.ValidationStatus) ([]*models.FieldAlias, error)
	ListAll(ctx context.Context) ([]*models.FieldAlias, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ValidationStatus) error
	RecordUsage(ctx context.Context, id uuid.UUID) error
	RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error
	Stats(ctx context.Context, topN int) (*models.AliasStats, error)
}

type aliasRepository struct {
	db *database.DB
}

// NewAliasRepository creates a new AliasRepository.
func NewAliasRepository(db *database.DB) AliasRepository {
	return &aliasRepository{db: db}
}

var _ AliasRepository = (*aliasRepository)(nil)

const aliasColumns = `id, standard_field, alias_name, category, risk, regulations, confidence,
		company_id, region, status, usage_count, success_count, failure_count, created_at, last_used_at`

func (r *aliasRepository) Create(ctx context.Context, alias *models.FieldAlias) error {
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now()
	}

	regsJSON, err := json.Marshal(alias.Regulations)
	if err != nil {
		return fmt.Errorf("failed to marshal regulations: %w", err)
	}

	query := `
		INSERT INTO field_aliases (
			id, standard_field, alias_name, category, risk, regulations, confidence,
			company_id, region, status, usage_count, success_count, failure_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, query,
		alias.ID, alias.StandardField, alias.AliasName, alias.Category, alias.Risk,
		regsJSON, alias.Confidence, alias.CompanyID, alias.Region, alias.Status,
		alias.UsageCount, alias.SuccessCount, alias.FailureCount, alias.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("alias %q already exists in scope: %w", alias.AliasName, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create alias: %w", err)
	}

	return nil
}

func (r *aliasRepository) Upsert(ctx context.Context, alias *models.FieldAlias) error {
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now()
	}

	regsJSON, err := json.Marshal(alias.Regulations)
	if err != nil {
		return fmt.Errorf("failed to marshal regulations: %w", err)
	}

	query := `
		INSERT INTO field_aliases (
			id, standard_field, alias_name, category, risk, regulations, confidence,
			company_id, region, status, usage_count, success_count, failure_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (alias_name, company_id, region)
		DO UPDATE SET
			standard_field = EXCLUDED.standard_field,
			category = EXCLUDED.category,
			risk = EXCLUDED.risk,
			regulations = EXCLUDED.regulations,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		alias.ID, alias.StandardField, alias.AliasName, alias.Category, alias.Risk,
		regsJSON, alias.Confidence, alias.CompanyID, alias.Region, alias.Status,
		alias.UsageCount, alias.SuccessCount, alias.FailureCount, alias.CreatedAt,
	).Scan(&alias.ID, &alias.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert alias: %w", err)
	}

	return nil
}

// GetByName returns every alias matching the exact name that is visible
// in the lookup scope: the caller's company-scoped and region-scoped
// aliases plus global ones. Ordered most specific first.
func (r *aliasRepository) GetByName(ctx context.Context, aliasName string, scope models.Scope) ([]*models.FieldAlias, error) {
	query := `
		SELECT ` + aliasColumns + `
		FROM field_aliases
		WHERE alias_name = $1
		  AND (company_id = '' OR company_id = $2)
		  AND (region = '' OR region = $3)
		ORDER BY (company_id <> '') DESC, (region <> '') DESC, confidence DESC`

	rows, err := r.db.Query(ctx, query, aliasName, scope.CompanyID, scope.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get aliases by name: %w", err)
	}
	defer rows.Close()

	return collectAliases(rows)
}

func (r *aliasRepository) ListApproved(ctx context.Context, scope models.Scope) ([]*models.FieldAlias, error) {
	query := `
		SELECT ` + aliasColumns + `
		FROM field_aliases
		WHERE status = $1
		  AND (company_id = '' OR company_id = $2)
		  AND (region = '' OR region = $3)
		ORDER BY alias_name`

	rows, err := r.db.Query(ctx, query, models.AliasApproved, scope.CompanyID, scope.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved aliases: %w", err)
	}
	defer rows.Close()

	return collectAliases(rows)
}

func (r *aliasRepository) ListByStatus(ctx context.Context, status models.ValidationStatus) ([]*models.FieldAlias, error) {
	query := `
		SELECT ` + aliasColumns + `
		FROM field_aliases
		WHERE status = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases by status: %w", err)
	}
	defer rows.Close()

	return collectAliases(rows)
}

func (r *aliasRepository) ListAll(ctx context.Context) ([]*models.FieldAlias, error) {
	query := `
		SELECT ` + aliasColumns + `
		FROM field_aliases
		ORDER BY alias_name, company_id, region`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	return collectAliases(rows)
}

func (r *aliasRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ValidationStatus) error {
	query := `UPDATE field_aliases SET status = $2 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update alias status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alias %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *aliasRepository) RecordUsage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE field_aliases
		SET usage_count = usage_count + 1, last_used_at = now()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record alias usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alias %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *aliasRepository) RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	column := "failure_count"
	if success {
		column = "success_count"
	}

	query := fmt.Sprintf(`UPDATE field_aliases SET %s = %s + 1 WHERE id = $1`, column, column)

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to record alias outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alias %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func (r *aliasRepository) Stats(ctx context.Context, topN int) (*models.AliasStats, error) {
	stats := &models.AliasStats{}

	summary := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'approved'),
			count(*) FILTER (WHERE status = 'pending'),
			COALESCE(sum(usage_count), 0),
			COALESCE(sum(success_count), 0),
			COALESCE(sum(failure_count), 0)
		FROM field_aliases`

	var successes, failures int
	err := r.db.QueryRow(ctx, summary).Scan(
		&stats.TotalAliases, &stats.ApprovedAliases, &stats.PendingAliases,
		&stats.TotalUsage, &successes, &failures,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get alias stats: %w", err)
	}
	if successes+failures > 0 {
		stats.AccuracyRate = float64(successes) / float64(successes+failures)
	}

	if topN > 0 {
		query := `
			SELECT ` + aliasColumns + `
			FROM field_aliases
			WHERE usage_count > 0
			ORDER BY usage_count DESC
			LIMIT $1`

		rows, err := r.db.Query(ctx, query, topN)
		if err != nil {
			return nil, fmt.Errorf("failed to get top used aliases: %w", err)
		}
		defer rows.Close()

		stats.TopUsed, err = collectAliases(rows)
		if err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func collectAliases(rows pgx.Rows) ([]*models.FieldAlias, error) {
	aliases := make([]*models.FieldAlias, 0)
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aliases: %w", err)
	}
	return aliases, nil
}

func scanAlias(rows pgx.Rows) (*models.FieldAlias, error) {
	var a models.FieldAlias
	var regsJSON []byte

	err := rows.Scan(
		&a.ID, &a.StandardField, &a.AliasName, &a.Category, &a.Risk, &regsJSON,
		&a.Confidence, &a.CompanyID, &a.Region, &a.Status,
		&a.UsageCount, &a.SuccessCount, &a.FailureCount, &a.CreatedAt, &a.LastUsedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alias: %w", err)
	}

	if len(regsJSON) > 0 {
		if err := json.Unmarshal(regsJSON, &a.Regulations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal regulations: %w", err)
		}
	}

	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
