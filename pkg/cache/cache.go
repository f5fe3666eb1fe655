// Package cache defines the classification cache contract keyed by
// schema fingerprints, plus the no-op implementation used when caching
// is disabled.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// Entry is one cached classification result set.
type Entry struct {
	ID          uuid.UUID                     `json:"id"`
	Fingerprint string                        `json:"fingerprint"`
	Regulations []models.Regulation           `json:"regulations"`
	Scope       models.Scope                  `json:"scope"`
	FieldCount  int                           `json:"field_count"`
	Results     []*models.FieldClassification `json:"results"`
	CreatedAt   time.Time                     `json:"created_at"`
	HitCount    int                           `json:"hit_count"`
}

// Cache is the classification cache contract. Implementations must
// serialize writes while allowing concurrent reads.
type Cache interface {
	// Get returns the entry for a fingerprint, if present.
	Get(ctx context.Context, fingerprint string) (*Entry, bool, error)
	// Put stores validated results under a fingerprint, replacing any
	// previous entry, and returns the cache entry id.
	Put(ctx context.Context, entry *Entry) (uuid.UUID, error)
}

// Coverage reports which requested fields an entry covers. Cached
// entries are usable even when they cover less than the full request;
// the orchestrator decides how much coverage is enough.
func Coverage(entry *Entry, tables models.SchemaSet) (ratio float64, covered map[string]*models.FieldClassification) {
	covered = make(map[string]*models.FieldClassification)
	if entry == nil {
		return 0, covered
	}

	byKey := make(map[string]*models.FieldClassification, len(entry.Results))
	for _, r := range entry.Results {
		byKey[r.FieldKey()] = r
	}

	total := 0
	hits := 0
	for tableName, columns := range tables {
		for _, col := range columns {
			total++
			key := tableName + "." + col.ColumnName
			if r, ok := byKey[key]; ok {
				hits++
				covered[key] = r
			}
		}
	}

	if total == 0 {
		return 0, covered
	}
	return float64(hits) / float64(total), covered
}

// Noop is the cache used when caching is disabled by configuration:
// same contract, explicit intent, no storage.
type Noop struct{}

// NewNoop creates a disabled cache.
func NewNoop() *Noop {
	return &Noop{}
}

// Get implements Cache; it never finds anything.
func (n *Noop) Get(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	return nil, false, nil
}

// Put implements Cache; it accepts and discards the entry.
func (n *Noop) Put(ctx context.Context, entry *Entry) (uuid.UUID, error) {
	return uuid.Nil, nil
}

// Ensure Noop implements Cache at compile time.
var _ Cache = (*Noop)(nil)
