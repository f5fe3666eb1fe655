package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/database"
	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// LearningRepository stores write-once classification outcome records.
type LearningRepository interface {
	Create(ctx context.Context, record *models.LearningRecord) error
	ListByField(ctx context.Context, tableName, columnName string) ([]*models.LearningRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.LearningRecord, error)
}

type learningRepository struct {
	db *database.DB
}

// NewLearningRepository creates a new LearningRepository.
func NewLearningRepository(db *database.DB) LearningRepository {
	return &learningRepository{db: db}
}

var _ LearningRepository = (*learningRepository)(nil)

const learningColumns = `id, schema_name, table_name, column_name, detected_category,
		corrected_category, confidence, method, is_correct, company_id, region, created_at`

func (r *learningRepository) Create(ctx context.Context, record *models.LearningRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO learning_records (
			id, schema_name, table_name, column_name, detected_category,
			corrected_category, confidence, method, is_correct, company_id, region, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		record.ID, record.SchemaName, record.TableName, record.ColumnName,
		record.DetectedCategory, record.CorrectedCategory, record.Confidence,
		record.Method, record.IsCorrect, record.CompanyID, record.Region, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create learning record: %w", err)
	}

	return nil
}

func (r *learningRepository) ListByField(ctx context.Context, tableName, columnName string) ([]*models.LearningRecord, error) {
	query := `
		SELECT ` + learningColumns + `
		FROM learning_records
		WHERE table_name = $1 AND column_name = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, tableName, columnName)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning records: %w", err)
	}
	defer rows.Close()

	return collectLearningRecords(rows)
}

func (r *learningRepository) ListRecent(ctx context.Context, limit int) ([]*models.LearningRecord, error) {
	query := `
		SELECT ` + learningColumns + `
		FROM learning_records
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent learning records: %w", err)
	}
	defer rows.Close()

	return collectLearningRecords(rows)
}

func collectLearningRecords(rows pgx.Rows) ([]*models.LearningRecord, error) {
	records := make([]*models.LearningRecord, 0)
	for rows.Next() {
		var rec models.LearningRecord
		err := rows.Scan(
			&rec.ID, &rec.SchemaName, &rec.TableName, &rec.ColumnName,
			&rec.DetectedCategory, &rec.CorrectedCategory, &rec.Confidence,
			&rec.Method, &rec.IsCorrect, &rec.CompanyID, &rec.Region, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learning records: %w", err)
	}
	return records, nil
}
