package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trustline-data/trustline-engine/pkg/database"
	"github.com/trustline-data/trustline-engine/pkg/models"
)

// LineageRepository provides append-only access to transformation lineage.
type LineageRepository interface {
	Create(ctx context.Context, record *models.LineageRecord) error
	ListByAsset(ctx context.Context, asset string) ([]*models.LineageRecord, error)
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.LineageRecord, error)
}

type lineageRepository struct {
	db *database.DB
}

// NewLineageRepository creates a new LineageRepository.
func NewLineageRepository(db *database.DB) LineageRepository {
	return &lineageRepository{db: db}
}

var _ LineageRepository = (*lineageRepository)(nil)

func (r *lineageRepository) Create(ctx context.Context, record *models.LineageRecord) error {
	query := `
		INSERT INTO engine_lineage_records (
			plan_id, execution_id, asset, target_column, kind, summary, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.Pool.QueryRow(ctx, query,
		record.PlanID,
		record.ExecutionID,
		record.Asset,
		record.Column,
		record.Kind,
		record.Summary,
		time.Now(),
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lineage record: %w", err)
	}

	return nil
}

func (r *lineageRepository) ListByAsset(ctx context.Context, asset string) ([]*models.LineageRecord, error) {
	query := lineageSelectColumns + `
		FROM engine_lineage_records
		WHERE asset = $1
		ORDER BY created_at DESC`

	return r.list(ctx, query, asset)
}

func (r *lineageRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.LineageRecord, error) {
	query := lineageSelectColumns + `
		FROM engine_lineage_records
		WHERE plan_id = $1
		ORDER BY created_at`

	return r.list(ctx, query, planID)
}

func (r *lineageRepository) list(ctx context.Context, query string, arg any) ([]*models.LineageRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query lineage records: %w", err)
	}
	defer rows.Close()

	var records []*models.LineageRecord
	for rows.Next() {
		record, err := scanLineage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lineage records: %w", err)
	}

	return records, nil
}

const lineageSelectColumns = `
	SELECT id, plan_id, execution_id, asset, target_column, kind, summary, created_at`

func scanLineage(row pgx.Row) (*models.LineageRecord, error) {
	var l models.LineageRecord
	var summary *string

	err := row.Scan(
		&l.ID,
		&l.PlanID,
		&l.ExecutionID,
		&l.Asset,
		&l.Column,
		&l.Kind,
		&summary,
		&l.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan lineage record: %w", err)
	}

	if summary != nil {
		l.Summary = *summary
	}

	return &l, nil
}
