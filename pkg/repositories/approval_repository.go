package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/database"
	"github.com/trustline-data/trustline-engine/pkg/models"
)

const pgUniqueViolation = "23505"

// ApprovalRepository provides data access for approval requests. Approvals are
// append-only except for the single pending-to-decided (or pending-to-expired)
// status flip; a partial unique index keeps at most one pending approval per
// plan.
type ApprovalRepository interface {
	Create(ctx context.Context, approval *models.Approval) error
	GetByID(ctx context.Context, approvalID uuid.UUID) (*models.Approval, error)
	GetPendingByPlan(ctx context.Context, planID uuid.UUID) (*models.Approval, error)
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.Approval, error)

	// MarkDecided flips a pending approval to approved or rejected. Returns
	// apperrors.ErrAlreadyDecided when the approval is no longer pending.
	MarkDecided(ctx context.Context, approvalID uuid.UUID, status models.ApprovalStatus, reviewedBy string, comment *string, reviewedAt time.Time) error

	// MarkExpired flips a pending approval to expired. A no-op result means
	// someone decided or expired it first; that is not an error.
	MarkExpired(ctx context.Context, approvalID uuid.UUID) (bool, error)

	// ListExpiredPending returns pending approvals whose window passed before
	// the given time. Used by the expiry sweeper.
	ListExpiredPending(ctx context.Context, before time.Time) ([]*models.Approval, error)
}

type approvalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

var _ ApprovalRepository = (*approvalRepository)(nil)

func (r *approvalRepository) Create(ctx context.Context, approval *models.Approval) error {
	query := `
		INSERT INTO engine_plan_approvals (
			plan_id, status, reviewed_by, reviewed_at, comment,
			auto_approved, auto_approve_reason, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.Pool.QueryRow(ctx, query,
		approval.PlanID,
		approval.Status,
		approval.ReviewedBy,
		approval.ReviewedAt,
		approval.Comment,
		approval.AutoApproved,
		approval.AutoApproveReason,
		approval.ExpiresAt,
		time.Now(),
	).Scan(&approval.ID, &approval.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create approval: %w", err)
	}

	return nil
}

func (r *approvalRepository) GetByID(ctx context.Context, approvalID uuid.UUID) (*models.Approval, error) {
	query := approvalSelectColumns + ` FROM engine_plan_approvals WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, approvalID)
	approval, err := scanApproval(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // Approval not found
		}
		return nil, err
	}

	return approval, nil
}

func (r *approvalRepository) GetPendingByPlan(ctx context.Context, planID uuid.UUID) (*models.Approval, error) {
	query := approvalSelectColumns + `
		FROM engine_plan_approvals
		WHERE plan_id = $1 AND status = 'pending'`

	row := r.db.Pool.QueryRow(ctx, query, planID)
	approval, err := scanApproval(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // No pending approval
		}
		return nil, err
	}

	return approval, nil
}

func (r *approvalRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*models.Approval, error) {
	query := approvalSelectColumns + `
		FROM engine_plan_approvals
		WHERE plan_id = $1
		ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func (r *approvalRepository) MarkDecided(ctx context.Context, approvalID uuid.UUID, status models.ApprovalStatus, reviewedBy string, comment *string, reviewedAt time.Time) error {
	query := `
		UPDATE engine_plan_approvals
		SET status = $2, reviewed_by = $3, reviewed_at = $4, comment = $5
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Pool.Exec(ctx, query, approvalID, status, reviewedBy, reviewedAt, comment)
	if err != nil {
		return fmt.Errorf("failed to decide approval: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM engine_plan_approvals WHERE id = $1)`, approvalID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check approval existence: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrAlreadyDecided
	}

	return nil
}

func (r *approvalRepository) MarkExpired(ctx context.Context, approvalID uuid.UUID) (bool, error) {
	query := `
		UPDATE engine_plan_approvals
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Pool.Exec(ctx, query, approvalID)
	if err != nil {
		return false, fmt.Errorf("failed to expire approval: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *approvalRepository) ListExpiredPending(ctx context.Context, before time.Time) ([]*models.Approval, error) {
	query := approvalSelectColumns + `
		FROM engine_plan_approvals
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at`

	rows, err := r.db.Pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired approvals: %w", err)
	}

	return approvals, nil
}

const approvalSelectColumns = `
	SELECT id, plan_id, status, reviewed_by, reviewed_at, comment,
	       auto_approved, auto_approve_reason, expires_at, created_at`

func scanApproval(row pgx.Row) (*models.Approval, error) {
	var a models.Approval

	err := row.Scan(
		&a.ID,
		&a.PlanID,
		&a.Status,
		&a.ReviewedBy,
		&a.ReviewedAt,
		&a.Comment,
		&a.AutoApproved,
		&a.AutoApproveReason,
		&a.ExpiresAt,
		&a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval: %w", err)
	}

	return &a, nil
}
