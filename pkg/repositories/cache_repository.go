package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/cache"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/database"
)

// postgresCache implements cache.Cache on the classification_cache table.
// Hit counters are updated in the same statement as the read so
// concurrent lookups never lose increments.
type postgresCache struct {
	db *database.DB
}

// NewPostgresCache creates the Postgres-backed classification cache.
func NewPostgresCache(db *database.DB) cache.Cache {
	return &postgresCache{db: db}
}

var _ cache.Cache = (*postgresCache)(nil)

func (c *postgresCache) Get(ctx context.Context, fingerprint string) (*cache.Entry, bool, error) {
	query := `
		UPDATE classification_cache
		SET hit_count = hit_count + 1, last_hit_at = now()
		WHERE fingerprint = $1
		RETURNING id, fingerprint, regulations, company_id, region, field_count, results, created_at, hit_count`

	var entry cache.Entry
	var regsJSON, resultsJSON []byte

	err := c.db.QueryRow(ctx, query, fingerprint).Scan(
		&entry.ID, &entry.Fingerprint, &regsJSON, &entry.Scope.CompanyID, &entry.Scope.Region,
		&entry.FieldCount, &resultsJSON, &entry.CreatedAt, &entry.HitCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := json.Unmarshal(regsJSON, &entry.Regulations); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached regulations: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &entry.Results); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached results: %w", err)
	}

	return &entry, true, nil
}

func (c *postgresCache) Put(ctx context.Context, entry *cache.Entry) (uuid.UUID, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	regsJSON, err := json.Marshal(entry.Regulations)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal regulations: %w", err)
	}
	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `
		INSERT INTO classification_cache (
			id, fingerprint, regulations, company_id, region, field_count, results, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (fingerprint)
		DO UPDATE SET
			regulations = EXCLUDED.regulations,
			field_count = EXCLUDED.field_count,
			results = EXCLUDED.results,
			created_at = EXCLUDED.created_at,
			hit_count = 0,
			last_hit_at = NULL
		RETURNING id`

	var id uuid.UUID
	err = c.db.QueryRow(ctx, query,
		entry.ID, entry.Fingerprint, regsJSON, entry.Scope.CompanyID, entry.Scope.Region,
		entry.FieldCount, resultsJSON, entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store cache entry: %w", err)
	}

	entry.ID = id
	return id, nil
}
