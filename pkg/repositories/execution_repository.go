package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/database"
	"github.com/trustline-data/trustline-engine/pkg/models"
)

// ExecutionRepository provides data access for execution logs. A log row is
// created when execution starts and finalized exactly once when it ends.
type ExecutionRepository interface {
	Create(ctx context.Context, log *models.ExecutionLog) error
	Finalize(ctx context.Context, log *models.ExecutionLog) error
	GetByID(ctx context.Context, executionID uuid.UUID) (*models.ExecutionLog, error)
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.ExecutionLog, error)
}

type executionRepository struct {
	db *database.DB
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(db *database.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

var _ ExecutionRepository = (*executionRepository)(nil)

func (r *executionRepository) Create(ctx context.Context, log *models.ExecutionLog) error {
	query := `
		INSERT INTO engine_plan_executions (
			plan_id, approval_id, snapshot_id, started_at, status,
			executed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.Pool.QueryRow(ctx, query,
		log.PlanID,
		log.ApprovalID,
		log.SnapshotID,
		log.StartedAt,
		log.Status,
		log.ExecutedBy,
		time.Now(),
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create execution log: %w", err)
	}

	return nil
}

func (r *executionRepository) Finalize(ctx context.Context, log *models.ExecutionLog) error {
	query := `
		UPDATE engine_plan_executions
		SET snapshot_id = $2, completed_at = $3, rows_affected = $4,
		    rows_succeeded = $5, rows_failed = $6, status = $7,
		    error_message = $8, rollback_attempted = $9,
		    rollback_succeeded = $10, lineage_recorded = $11
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query,
		log.ID,
		log.SnapshotID,
		log.CompletedAt,
		log.RowsAffected,
		log.RowsSucceeded,
		log.RowsFailed,
		log.Status,
		log.ErrorMessage,
		log.RollbackAttempted,
		log.RollbackSucceeded,
		log.LineageRecorded,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize execution log: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *executionRepository) GetByID(ctx context.Context, executionID uuid.UUID) (*models.ExecutionLog, error) {
	query := executionSelectColumns + ` FROM engine_plan_executions WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, executionID)
	log, err := scanExecution(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Execution not found
		}
		return nil, err
	}

	return log, nil
}

func (r *executionRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.ExecutionLog, error) {
	query := executionSelectColumns + `
		FROM engine_plan_executions
		WHERE plan_id = $1
		ORDER BY started_at`

	rows, err := r.db.Pool.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ExecutionLog
	for rows.Next() {
		log, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

const executionSelectColumns = `
	SELECT id, plan_id, approval_id, snapshot_id, started_at, completed_at,
	       rows_affected, rows_succeeded, rows_failed, status, error_message,
	       rollback_attempted, rollback_succeeded, executed_by,
	       lineage_recorded, created_at`

func scanExecution(row pgx.Row) (*models.ExecutionLog, error) {
	var l models.ExecutionLog

	err := row.Scan(
		&l.ID,
		&l.PlanID,
		&l.ApprovalID,
		&l.SnapshotID,
		&l.StartedAt,
		&l.CompletedAt,
		&l.RowsAffected,
		&l.RowsSucceeded,
		&l.RowsFailed,
		&l.Status,
		&l.ErrorMessage,
		&l.RollbackAttempted,
		&l.RollbackSucceeded,
		&l.ExecutedBy,
		&l.LineageRecorded,
		&l.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan execution log: %w", err)
	}

	return &l, nil
}
