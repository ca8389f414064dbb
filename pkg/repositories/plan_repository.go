package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/database"
	"github.com/trustline-data/trustline-engine/pkg/models"
)

// PlanFilter narrows List results.
type PlanFilter struct {
	Status      *models.PlanStatus
	TargetAsset *string
	Limit       int
	Offset      int
}

// PlanRepository provides data access for transformation plan summary rows.
// The summary row is the only mutable record in the ledger; every update goes
// through UpdateSummary's version check.
type PlanRepository interface {
	Create(ctx context.Context, plan *models.TransformationPlan) error
	GetByID(ctx context.Context, planID uuid.UUID) (*models.TransformationPlan, error)
	List(ctx context.Context, filter PlanFilter) ([]*models.TransformationPlan, error)
	CountByStatus(ctx context.Context) (map[models.PlanStatus]int, error)

	// UpdateSummary persists the plan's summary fields if and only if the
	// stored version still equals plan.Version. On success the plan's Version
	// and UpdatedAt are refreshed in place. A version mismatch returns
	// apperrors.ErrConflict.
	UpdateSummary(ctx context.Context, plan *models.TransformationPlan) error
}

type planRepository struct {
	db *database.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *database.DB) PlanRepository {
	return &planRepository{db: db}
}

var _ PlanRepository = (*planRepository)(nil)

func (r *planRepository) Create(ctx context.Context, plan *models.TransformationPlan) error {
	now := time.Now()

	specJSON, err := jsonbOrNull(plan.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal plan spec: %w", err)
	}

	query := `
		INSERT INTO engine_plans (
			source_type, source_id, target_asset, target_column, kind,
			description, spec, risk_level, iteration_count, max_iterations,
			accuracy_threshold, status, requested_by, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	err = r.db.Pool.QueryRow(ctx, query,
		plan.SourceType,
		plan.SourceID,
		plan.TargetAsset,
		plan.TargetColumn,
		plan.Kind,
		plan.Description,
		specJSON,
		plan.RiskLevel,
		plan.IterationCount,
		plan.MaxIterations,
		plan.AccuracyThreshold,
		plan.Status,
		plan.RequestedBy,
		plan.Version,
		now,
		now,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

func (r *planRepository) GetByID(ctx context.Context, planID uuid.UUID) (*models.TransformationPlan, error) {
	query := planSelectColumns + ` FROM engine_plans WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, planID)
	plan, err := scanPlan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Plan not found
		}
		return nil, err
	}

	return plan, nil
}

func (r *planRepository) List(ctx context.Context, filter PlanFilter) ([]*models.TransformationPlan, error) {
	query := planSelectColumns + ` FROM engine_plans WHERE 1=1`
	args := []any{}
	argN := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, *filter.Status)
		argN++
	}
	if filter.TargetAsset != nil {
		query += fmt.Sprintf(" AND target_asset = $%d", argN)
		args = append(args, *filter.TargetAsset)
		argN++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.TransformationPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

func (r *planRepository) CountByStatus(ctx context.Context) (map[models.PlanStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM engine_plans GROUP BY status`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count plans: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PlanStatus]int)
	for rows.Next() {
		var status models.PlanStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan plan count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan counts: %w", err)
	}

	return counts, nil
}

func (r *planRepository) UpdateSummary(ctx context.Context, plan *models.TransformationPlan) error {
	now := time.Now()

	specJSON, err := jsonbOrNull(plan.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal plan spec: %w", err)
	}

	affectedJSON, err := jsonbOrNull(plan.AffectedColumns)
	if err != nil {
		return fmt.Errorf("failed to marshal affected columns: %w", err)
	}

	query := `
		UPDATE engine_plans
		SET spec = $3, generated_code = $4, rollback_code = $5,
		    affected_columns = $6, estimated_row_count = $7, risk_level = $8,
		    iteration_count = $9, final_accuracy = $10, status = $11,
		    failure_reason = $12, version = version + 1, updated_at = $13
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`

	err = r.db.Pool.QueryRow(ctx, query,
		plan.ID,
		plan.Version,
		specJSON,
		plan.GeneratedCode,
		plan.RollbackCode,
		affectedJSON,
		plan.EstimatedRowCount,
		plan.RiskLevel,
		plan.IterationCount,
		plan.FinalAccuracy,
		plan.Status,
		plan.FailureReason,
		now,
	).Scan(&plan.Version, &plan.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return r.classifyUpdateMiss(ctx, plan.ID)
		}
		return fmt.Errorf("failed to update plan: %w", err)
	}

	return nil
}

// classifyUpdateMiss distinguishes a stale version from a missing row.
func (r *planRepository) classifyUpdateMiss(ctx context.Context, planID uuid.UUID) error {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM engine_plans WHERE id = $1)`, planID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check plan existence: %w", err)
	}
	if !exists {
		return apperrors.ErrNotFound
	}
	return apperrors.ErrConflict
}

// ============================================================================
// Helper Functions
// ============================================================================

const planSelectColumns = `
	SELECT id, source_type, source_id, target_asset, target_column, kind,
	       description, spec, generated_code, rollback_code, affected_columns,
	       estimated_row_count, risk_level, iteration_count, max_iterations,
	       final_accuracy, accuracy_threshold, status, failure_reason,
	       requested_by, version, created_at, updated_at`

func scanPlan(row pgx.Row) (*models.TransformationPlan, error) {
	var p models.TransformationPlan
	var spec, affectedColumns []byte

	err := row.Scan(
		&p.ID,
		&p.SourceType,
		&p.SourceID,
		&p.TargetAsset,
		&p.TargetColumn,
		&p.Kind,
		&p.Description,
		&spec,
		&p.GeneratedCode,
		&p.RollbackCode,
		&affectedColumns,
		&p.EstimatedRowCount,
		&p.RiskLevel,
		&p.IterationCount,
		&p.MaxIterations,
		&p.FinalAccuracy,
		&p.AccuracyThreshold,
		&p.Status,
		&p.FailureReason,
		&p.RequestedBy,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	if len(spec) > 0 && string(spec) != "null" {
		if err := json.Unmarshal(spec, &p.Spec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan spec: %w", err)
		}
	}
	if len(affectedColumns) > 0 && string(affectedColumns) != "null" {
		if err := json.Unmarshal(affectedColumns, &p.AffectedColumns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal affected columns: %w", err)
		}
	}

	return &p, nil
}

// jsonbOrNull marshals v for a JSONB column, storing NULL for nil values.
func jsonbOrNull(v any) (any, error) {
	switch val := v.(type) {
	case *models.TransformationSpec:
		if val == nil {
			return nil, nil
		}
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
