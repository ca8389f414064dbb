package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/config"
	"github.com/trustline-data/trustline-engine/pkg/logging"
	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/notify"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
	"github.com/trustline-data/trustline-engine/pkg/retry"
	"github.com/trustline-data/trustline-engine/pkg/sandbox"
)

// ExecutionService applies an approved plan's code to the full dataset.
type ExecutionService interface {
	// Execute claims an approved plan, snapshots the target, runs the
	// generated code at full scope, and classifies the outcome. Failures
	// beyond the tolerance trigger rollback from the snapshot. A plan is
	// executed at most once; re-execution returns apperrors.ErrAlreadyExecuted.
	Execute(ctx context.Context, planID uuid.UUID, executedBy string) (*models.ExecutionLog, error)
}

type executionService struct {
	planRepo      repositories.PlanRepository
	approvalRepo  repositories.ApprovalRepository
	executionRepo repositories.ExecutionRepository
	lineageRepo   repositories.LineageRepository
	executor      sandbox.Executor
	notifier      notify.Notifier
	engineCfg     *config.EngineConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewExecutionService creates a new ExecutionService. A nil now falls back to
// time.Now.
func NewExecutionService(
	planRepo repositories.PlanRepository,
	approvalRepo repositories.ApprovalRepository,
	executionRepo repositories.ExecutionRepository,
	lineageRepo repositories.LineageRepository,
	executor sandbox.Executor,
	notifier notify.Notifier,
	engineCfg *config.EngineConfig,
	logger *zap.Logger,
	now func() time.Time,
) ExecutionService {
	if now == nil {
		now = time.Now
	}
	return &executionService{
		planRepo:      planRepo,
		approvalRepo:  approvalRepo,
		executionRepo: executionRepo,
		lineageRepo:   lineageRepo,
		executor:      executor,
		notifier:      notifier,
		engineCfg:     engineCfg,
		logger:        logger.Named("execution-service"),
		now:           now,
	}
}

var _ ExecutionService = (*executionService)(nil)

func (s *executionService) Execute(ctx context.Context, planID uuid.UUID, executedBy string) (*models.ExecutionLog, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.ErrNotFound
	}

	switch plan.Status {
	case models.PlanStatusApproved:
	case models.PlanStatusExecuting, models.PlanStatusCompleted:
		return nil, apperrors.ErrAlreadyExecuted
	case models.PlanStatusFailed:
		// A plan that failed during execution already has a log on record; a
		// plan that failed while iterating never ran at all.
		logs, lerr := s.executionRepo.ListByPlan(ctx, planID)
		if lerr != nil {
			return nil, lerr
		}
		if len(logs) > 0 {
			return nil, apperrors.ErrAlreadyExecuted
		}
		return nil, fmt.Errorf("%w: cannot execute plan in status %s", apperrors.ErrInvalidState, plan.Status)
	default:
		return nil, fmt.Errorf("%w: cannot execute plan in status %s", apperrors.ErrInvalidState, plan.Status)
	}

	if plan.GeneratedCode == nil || *plan.GeneratedCode == "" {
		return nil, fmt.Errorf("%w: plan has no generated code", apperrors.ErrInvalidState)
	}

	approval, err := s.latestApproved(ctx, planID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, fmt.Errorf("%w: plan has no approved approval on record", apperrors.ErrInvalidState)
	}

	// Claim the plan. The version bump makes a concurrent Execute lose with
	// a conflict instead of double-applying the code.
	plan.Status = models.PlanStatusExecuting
	if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
		return nil, err
	}

	startedAt := s.now()
	log := &models.ExecutionLog{
		PlanID:     plan.ID,
		ApprovalID: &approval.ID,
		StartedAt:  startedAt,
		Status:     models.ExecutionStatusFailed, // provisional until finalized
		ExecutedBy: executedBy,
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.executionRepo.Create(persistCtx, log); err != nil {
		return nil, fmt.Errorf("failed to open execution log: %w", err)
	}

	s.logger.Info("Executing plan",
		zap.String("plan_id", plan.ID.String()),
		zap.String("execution_id", log.ID.String()),
		zap.String("target_asset", plan.TargetAsset),
		zap.String("executed_by", executedBy))

	snapshotID, err := s.executor.Snapshot(ctx, plan.TargetAsset)
	if err != nil {
		cause := fmt.Errorf("failed to snapshot target: %w", err)
		if ferr := s.finalizeFailed(persistCtx, plan, log, cause); ferr != nil {
			return nil, ferr
		}
		return log, cause
	}
	if snapshotID != "" {
		log.SnapshotID = &snapshotID
	}

	result, runErr := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (*sandbox.RunResult, error) {
		return s.executor.Run(ctx, &sandbox.RunRequest{
			Code:        *plan.GeneratedCode,
			TargetAsset: plan.TargetAsset,
			Scope:       sandbox.FullScope(),
		})
	})
	if runErr != nil {
		return s.rollbackAndFail(persistCtx, plan, log, fmt.Errorf("full run failed: %w", runErr))
	}

	log.RowsAffected = result.RowsAffected
	log.RowsSucceeded = result.RowsSucceeded
	log.RowsFailed = result.RowsFailed

	if frac := log.FailureFraction(); frac > s.engineCfg.FailureTolerance {
		cause := fmt.Errorf("failure fraction %.4f exceeds tolerance %.4f (%d of %d rows failed)",
			frac, s.engineCfg.FailureTolerance, log.RowsFailed, log.RowsAffected)
		return s.rollbackAndFail(persistCtx, plan, log, cause)
	}

	// Within tolerance: completed. Partial outcomes keep their row counts on
	// the ledger so the residue is auditable.
	completedAt := s.now()
	log.CompletedAt = &completedAt
	if log.RowsFailed > 0 {
		log.Status = models.ExecutionStatusPartial
		msg := result.ErrorMessage
		if msg != "" {
			log.ErrorMessage = &msg
		}
	} else {
		log.Status = models.ExecutionStatusSuccess
	}

	if err := s.recordLineage(persistCtx, plan, log); err != nil {
		s.logger.Error("Failed to record lineage",
			zap.String("plan_id", plan.ID.String()),
			zap.Error(err))
	} else {
		log.LineageRecorded = true
	}

	if err := s.executionRepo.Finalize(persistCtx, log); err != nil {
		return nil, fmt.Errorf("failed to finalize execution log: %w", err)
	}

	plan.Status = models.PlanStatusCompleted
	if err := s.planRepo.UpdateSummary(persistCtx, plan); err != nil {
		return nil, fmt.Errorf("failed to complete plan: %w", err)
	}

	s.logger.Info("Execution completed",
		zap.String("plan_id", plan.ID.String()),
		zap.String("execution_id", log.ID.String()),
		zap.String("status", string(log.Status)),
		zap.Int64("rows_affected", log.RowsAffected),
		zap.Int64("rows_failed", log.RowsFailed))

	s.notify(persistCtx, notify.EventExecutionFinished, map[string]any{
		"plan_id":       plan.ID.String(),
		"execution_id":  log.ID.String(),
		"status":        string(log.Status),
		"rows_affected": log.RowsAffected,
		"rows_failed":   log.RowsFailed,
	})

	return log, nil
}

// latestApproved returns the most recent approved approval for the plan.
func (s *executionService) latestApproved(ctx context.Context, planID uuid.UUID) (*models.Approval, error) {
	approvals, err := s.approvalRepo.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	for i := len(approvals) - 1; i >= 0; i-- {
		if approvals[i].Status == models.ApprovalStatusApproved {
			return approvals[i], nil
		}
	}
	return nil, nil
}

// rollbackAndFail restores the snapshot, finalizes the log, and fails the plan.
func (s *executionService) rollbackAndFail(ctx context.Context, plan *models.TransformationPlan, log *models.ExecutionLog, cause error) (*models.ExecutionLog, error) {
	s.logger.Warn("Execution failed, attempting rollback",
		zap.String("plan_id", plan.ID.String()),
		zap.String("execution_id", log.ID.String()),
		zap.String("error", logging.SanitizeError(cause)))

	log.RollbackAttempted = true
	rollbackErr := s.rollback(ctx, plan, log)
	succeeded := rollbackErr == nil
	log.RollbackSucceeded = &succeeded

	if rollbackErr != nil {
		s.logger.Error("Rollback failed, manual intervention required",
			zap.String("plan_id", plan.ID.String()),
			zap.String("execution_id", log.ID.String()),
			zap.String("cause", logging.SanitizeError(cause)),
			zap.String("rollback_error", logging.SanitizeError(rollbackErr)))

		s.notify(ctx, notify.EventRollbackFailed, map[string]any{
			"plan_id":        plan.ID.String(),
			"execution_id":   log.ID.String(),
			"target_asset":   plan.TargetAsset,
			"cause":          cause.Error(),
			"rollback_error": rollbackErr.Error(),
		})

		if ferr := s.finalizeFailed(ctx, plan, log, cause); ferr != nil {
			return nil, ferr
		}
		return log, fmt.Errorf("%w: %v", apperrors.ErrRollbackFailed, rollbackErr)
	}

	if ferr := s.finalizeFailed(ctx, plan, log, cause); ferr != nil {
		return nil, ferr
	}
	return log, cause
}

// rollback restores the target from its snapshot, preferring the snapshot
// reference and falling back to the plan's rollback code.
func (s *executionService) rollback(ctx context.Context, plan *models.TransformationPlan, log *models.ExecutionLog) error {
	if plan.RollbackCode == nil || *plan.RollbackCode == "" {
		return fmt.Errorf("plan has no rollback code")
	}

	return retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		_, err := s.executor.Run(ctx, &sandbox.RunRequest{
			Code:        *plan.RollbackCode,
			TargetAsset: plan.TargetAsset,
			Scope:       sandbox.FullScope(),
		})
		return err
	})
}

// finalizeFailed closes the log as failed and fails the plan. The returned
// error reports only persistence problems; the cause stays with the caller.
func (s *executionService) finalizeFailed(ctx context.Context, plan *models.TransformationPlan, log *models.ExecutionLog, cause error) error {
	completedAt := s.now()
	msg := cause.Error()
	log.CompletedAt = &completedAt
	log.Status = models.ExecutionStatusFailed
	log.ErrorMessage = &msg

	if err := s.executionRepo.Finalize(ctx, log); err != nil {
		return fmt.Errorf("failed to finalize execution log: %w", err)
	}

	plan.Status = models.PlanStatusFailed
	plan.FailureReason = &msg
	if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
		return fmt.Errorf("failed to fail plan: %w", err)
	}

	s.notify(ctx, notify.EventExecutionFinished, map[string]any{
		"plan_id":      plan.ID.String(),
		"execution_id": log.ID.String(),
		"status":       string(models.ExecutionStatusFailed),
		"error":        msg,
	})

	return nil
}

// recordLineage writes the lineage record for a tolerated execution.
func (s *executionService) recordLineage(ctx context.Context, plan *models.TransformationPlan, log *models.ExecutionLog) error {
	summary := fmt.Sprintf("%s transformed %d rows", plan.Kind, log.RowsSucceeded)
	return s.lineageRepo.Create(ctx, &models.LineageRecord{
		PlanID:      plan.ID,
		ExecutionID: log.ID,
		Asset:       plan.TargetAsset,
		Column:      plan.TargetColumn,
		Kind:        plan.Kind,
		Summary:     summary,
	})
}

func (s *executionService) notify(ctx context.Context, event string, data map[string]any) {
	if err := s.notifier.Send(ctx, event, data); err != nil {
		s.logger.Warn("Notification delivery failed",
			zap.String("event", event),
			zap.Error(err))
	}
}
