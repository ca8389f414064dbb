package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trustline-data/trustline-engine/pkg/database"
	"github.com/trustline-data/trustline-engine/pkg/models"
)

// IterationRepository provides append-only access to a plan's iteration
// history. Rows are never updated or deleted.
type IterationRepository interface {
	Create(ctx context.Context, iter *models.Iteration) error
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.Iteration, error)
	GetLatest(ctx context.Context, planID uuid.UUID) (*models.Iteration, error)
}

type iterationRepository struct {
	db *database.DB
}

// NewIterationRepository creates a new IterationRepository.
func NewIterationRepository(db *database.DB) IterationRepository {
	return &iterationRepository{db: db}
}

var _ IterationRepository = (*iterationRepository)(nil)

func (r *iterationRepository) Create(ctx context.Context, iter *models.Iteration) error {
	issuesJSON, err := jsonbOrNull(iter.IssuesFound)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}
	improvementsJSON, err := jsonbOrNull(iter.ImprovementsSuggested)
	if err != nil {
		return fmt.Errorf("failed to marshal improvements: %w", err)
	}
	beforeJSON, err := jsonbOrNull(iter.SampleBefore)
	if err != nil {
		return fmt.Errorf("failed to marshal sample before: %w", err)
	}
	afterJSON, err := jsonbOrNull(iter.SampleAfter)
	if err != nil {
		return fmt.Errorf("failed to marshal sample after: %w", err)
	}

	query := `
		INSERT INTO engine_plan_iterations (
			plan_id, iteration_number, code, started_at, completed_at,
			sample_size, success, accuracy, meets_threshold, error_message,
			evaluation_notes, issues_found, improvements_suggested,
			sample_before, sample_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`

	err = r.db.Pool.QueryRow(ctx, query,
		iter.PlanID,
		iter.IterationNumber,
		iter.Code,
		iter.StartedAt,
		iter.CompletedAt,
		iter.SampleSize,
		iter.Success,
		iter.Accuracy,
		iter.MeetsThreshold,
		iter.ErrorMessage,
		iter.EvaluationNotes,
		issuesJSON,
		improvementsJSON,
		beforeJSON,
		afterJSON,
		time.Now(),
	).Scan(&iter.ID, &iter.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create iteration: %w", err)
	}

	return nil
}

func (r *iterationRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.Iteration, error) {
	query := iterationSelectColumns + `
		FROM engine_plan_iterations
		WHERE plan_id = $1
		ORDER BY iteration_number`

	rows, err := r.db.Pool.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var iterations []*models.Iteration
	for rows.Next() {
		iter, err := scanIteration(rows)
		if err != nil {
			return nil, err
		}
		iterations = append(iterations, iter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating iterations: %w", err)
	}

	return iterations, nil
}

func (r *iterationRepository) GetLatest(ctx context.Context, planID uuid.UUID) (*models.Iteration, error) {
	query := iterationSelectColumns + `
		FROM engine_plan_iterations
		WHERE plan_id = $1
		ORDER BY iteration_number DESC
		LIMIT 1`

	row := r.db.Pool.QueryRow(ctx, query, planID)
	iter, err := scanIteration(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No iterations yet
		}
		return nil, err
	}

	return iter, nil
}

const iterationSelectColumns = `
	SELECT id, plan_id, iteration_number, code, started_at, completed_at,
	       sample_size, success, accuracy, meets_threshold, error_message,
	       evaluation_notes, issues_found, improvements_suggested,
	       sample_before, sample_after, created_at`

func scanIteration(row pgx.Row) (*models.Iteration, error) {
	var it models.Iteration
	var notes *string
	var issues, improvements, before, after []byte

	err := row.Scan(
		&it.ID,
		&it.PlanID,
		&it.IterationNumber,
		&it.Code,
		&it.StartedAt,
		&it.CompletedAt,
		&it.SampleSize,
		&it.Success,
		&it.Accuracy,
		&it.MeetsThreshold,
		&it.ErrorMessage,
		&notes,
		&issues,
		&improvements,
		&before,
		&after,
		&it.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan iteration: %w", err)
	}

	if notes != nil {
		it.EvaluationNotes = *notes
	}
	if len(issues) > 0 && string(issues) != "null" {
		if err := json.Unmarshal(issues, &it.IssuesFound); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
		}
	}
	if len(improvements) > 0 && string(improvements) != "null" {
		if err := json.Unmarshal(improvements, &it.ImprovementsSuggested); err != nil {
			return nil, fmt.Errorf("failed to unmarshal improvements: %w", err)
		}
	}
	if len(before) > 0 && string(before) != "null" {
		if err := json.Unmarshal(before, &it.SampleBefore); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample before: %w", err)
		}
	}
	if len(after) > 0 && string(after) != "null" {
		if err := json.Unmarshal(after, &it.SampleAfter); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sample after: %w", err)
		}
	}

	return &it, nil
}
