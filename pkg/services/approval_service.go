package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/config"
	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/notify"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
)

// AutoApprovalPolicy decides whether a plan may skip human review. The reason
// is recorded on the approval when the answer is yes.
type AutoApprovalPolicy interface {
	ShouldAutoApprove(plan *models.TransformationPlan) (bool, string)
}

// thresholdPolicy auto-approves low-risk plans whose accuracy reached the
// threshold. Critical plans never qualify regardless of accuracy.
type thresholdPolicy struct{}

// NewThresholdAutoApprovalPolicy returns the default auto-approval policy.
func NewThresholdAutoApprovalPolicy() AutoApprovalPolicy {
	return &thresholdPolicy{}
}

var _ AutoApprovalPolicy = (*thresholdPolicy)(nil)

func (p *thresholdPolicy) ShouldAutoApprove(plan *models.TransformationPlan) (bool, string) {
	if plan.RiskLevel != models.RiskLow {
		return false, ""
	}
	if !plan.MeetsThreshold() {
		return false, ""
	}
	return true, fmt.Sprintf("low risk and accuracy %.4f meets threshold %.4f",
		*plan.FinalAccuracy, plan.AccuracyThreshold)
}

// ApprovalService manages the time-bounded approval workflow.
type ApprovalService interface {
	// RequestApproval opens a pending approval for a plan whose refinement
	// loop converged. Requesting again while one is pending returns the
	// existing approval. Plans whose prior approval expired may re-request.
	RequestApproval(ctx context.Context, planID uuid.UUID) (*models.Approval, error)

	// Decide applies a reviewer's verdict to a pending approval. Deciding an
	// already-decided approval returns apperrors.ErrAlreadyDecided; deciding
	// past the window returns apperrors.ErrApprovalExpired and flips the
	// approval to expired.
	Decide(ctx context.Context, approvalID uuid.UUID, decision models.ApprovalDecision, reviewedBy string, comment *string) (*models.Approval, error)

	// SweepExpired expires every pending approval whose window passed and
	// returns how many were flipped.
	SweepExpired(ctx context.Context) (int, error)

	// StartSweeper runs SweepExpired on the given interval until ctx is done.
	StartSweeper(ctx context.Context, interval time.Duration)
}

type approvalService struct {
	planRepo     repositories.PlanRepository
	approvalRepo repositories.ApprovalRepository
	policy       AutoApprovalPolicy
	notifier     notify.Notifier
	engineCfg    *config.EngineConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewApprovalService creates a new ApprovalService. A nil now falls back to
// time.Now.
func NewApprovalService(
	planRepo repositories.PlanRepository,
	approvalRepo repositories.ApprovalRepository,
	policy AutoApprovalPolicy,
	notifier notify.Notifier,
	engineCfg *config.EngineConfig,
	logger *zap.Logger,
	now func() time.Time,
) ApprovalService {
	if now == nil {
		now = time.Now
	}
	return &approvalService{
		planRepo:     planRepo,
		approvalRepo: approvalRepo,
		policy:       policy,
		notifier:     notifier,
		engineCfg:    engineCfg,
		logger:       logger.Named("approval-service"),
		now:          now,
	}
}

var _ ApprovalService = (*approvalService)(nil)

func (s *approvalService) RequestApproval(ctx context.Context, planID uuid.UUID) (*models.Approval, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.ErrNotFound
	}

	// Idempotent re-request: hand back the live pending approval if one exists.
	if existing, err := s.approvalRepo.GetPendingByPlan(ctx, planID); err != nil {
		return nil, err
	} else if existing != nil {
		if existing.ExpiredAt(s.now()) {
			if err := s.expireApproval(ctx, existing, plan); err != nil {
				return nil, err
			}
			// Fall through to open a fresh request below.
			plan, err = s.planRepo.GetByID(ctx, planID)
			if err != nil {
				return nil, err
			}
		} else {
			return existing, nil
		}
	}

	switch plan.Status {
	case models.PlanStatusIterating, models.PlanStatusExpired:
	default:
		return nil, fmt.Errorf("%w: cannot request approval for plan in status %s", apperrors.ErrInvalidState, plan.Status)
	}

	// Below-threshold plans may still be submitted once their budget is spent,
	// but only at low/medium risk and never via auto-approval: a human judges
	// the best-effort code.
	if !plan.MeetsThreshold() {
		if plan.HasBudget() || !bestEffortEligible(plan.RiskLevel) {
			return nil, fmt.Errorf("%w: plan accuracy has not reached its threshold", apperrors.ErrInvalidState)
		}
	}

	now := s.now()
	approval := &models.Approval{
		PlanID:    plan.ID,
		Status:    models.ApprovalStatusPending,
		ExpiresAt: now.Add(s.engineCfg.ApprovalWindow),
	}

	autoApprove, reason := s.policy.ShouldAutoApprove(plan)
	if autoApprove {
		reviewer := "auto-approval"
		approval.Status = models.ApprovalStatusApproved
		approval.ReviewedBy = &reviewer
		approval.ReviewedAt = &now
		approval.AutoApproved = true
		approval.AutoApproveReason = &reason
	}

	if err := s.approvalRepo.Create(ctx, approval); err != nil {
		return nil, err
	}

	if autoApprove {
		plan.Status = models.PlanStatusApproved
	} else {
		plan.Status = models.PlanStatusPendingApproval
	}
	if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
		return nil, err
	}

	if autoApprove {
		s.logger.Info("Auto-approved plan",
			zap.String("plan_id", plan.ID.String()),
			zap.String("reason", reason))
		s.notify(ctx, notify.EventApprovalDecided, map[string]any{
			"plan_id":     plan.ID.String(),
			"approval_id": approval.ID.String(),
			"decision":    "approve",
			"reviewer":    "auto-approval",
			"reason":      reason,
		})
	} else {
		s.logger.Info("Requested approval",
			zap.String("plan_id", plan.ID.String()),
			zap.String("approval_id", approval.ID.String()),
			zap.Time("expires_at", approval.ExpiresAt))
		s.notify(ctx, notify.EventApprovalRequested, map[string]any{
			"plan_id":      plan.ID.String(),
			"approval_id":  approval.ID.String(),
			"target_asset": plan.TargetAsset,
			"risk_level":   string(plan.RiskLevel),
			"expires_at":   approval.ExpiresAt.Format(time.RFC3339),
		})
	}

	return approval, nil
}

func (s *approvalService) Decide(ctx context.Context, approvalID uuid.UUID, decision models.ApprovalDecision, reviewedBy string, comment *string) (*models.Approval, error) {
	if decision != models.DecisionApprove && decision != models.DecisionReject {
		return nil, fmt.Errorf("unknown decision %q", decision)
	}
	if reviewedBy == "" {
		return nil, fmt.Errorf("reviewed_by is required")
	}
	if decision == models.DecisionReject && (comment == nil || *comment == "") {
		return nil, fmt.Errorf("a rejection requires a reason")
	}

	approval, err := s.approvalRepo.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval == nil {
		return nil, apperrors.ErrNotFound
	}
	if approval.Decided() {
		return nil, apperrors.ErrAlreadyDecided
	}

	plan, err := s.planRepo.GetByID(ctx, approval.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.ErrNotFound
	}

	// Lazy expiry: a decision arriving past the window expires the approval
	// even if the sweeper has not seen it yet.
	now := s.now()
	if approval.ExpiredAt(now) {
		if err := s.expireApproval(ctx, approval, plan); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrApprovalExpired
	}

	status := models.ApprovalStatusApproved
	planStatus := models.PlanStatusApproved
	if decision == models.DecisionReject {
		status = models.ApprovalStatusRejected
		planStatus = models.PlanStatusRejected
	}

	if err := s.approvalRepo.MarkDecided(ctx, approvalID, status, reviewedBy, comment, now); err != nil {
		return nil, err
	}

	plan.Status = planStatus
	if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
		return nil, err
	}

	approval.Status = status
	approval.ReviewedBy = &reviewedBy
	approval.ReviewedAt = &now
	approval.Comment = comment

	s.logger.Info("Approval decided",
		zap.String("plan_id", plan.ID.String()),
		zap.String("approval_id", approvalID.String()),
		zap.String("decision", string(decision)),
		zap.String("reviewed_by", reviewedBy))

	s.notify(ctx, notify.EventApprovalDecided, map[string]any{
		"plan_id":     plan.ID.String(),
		"approval_id": approvalID.String(),
		"decision":    string(decision),
		"reviewer":    reviewedBy,
	})

	return approval, nil
}

func (s *approvalService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.approvalRepo.ListExpiredPending(ctx, s.now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, approval := range expired {
		plan, err := s.planRepo.GetByID(ctx, approval.PlanID)
		if err != nil {
			s.logger.Error("Failed to load plan for expired approval",
				zap.String("approval_id", approval.ID.String()),
				zap.Error(err))
			continue
		}
		if plan == nil {
			continue
		}
		if err := s.expireApproval(ctx, approval, plan); err != nil {
			s.logger.Error("Failed to expire approval",
				zap.String("approval_id", approval.ID.String()),
				zap.Error(err))
			continue
		}
		count++
	}

	return count, nil
}

func (s *approvalService) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := s.SweepExpired(ctx)
				if err != nil {
					s.logger.Error("Expiry sweep failed", zap.Error(err))
					continue
				}
				if count > 0 {
					s.logger.Info("Expired stale approvals", zap.Int("count", count))
				}
			}
		}
	}()
}

// expireApproval flips a pending approval and its plan to expired.
func (s *approvalService) expireApproval(ctx context.Context, approval *models.Approval, plan *models.TransformationPlan) error {
	flipped, err := s.approvalRepo.MarkExpired(ctx, approval.ID)
	if err != nil {
		return err
	}
	if !flipped {
		// Lost the race to a concurrent decision or sweep.
		return nil
	}

	if plan.Status == models.PlanStatusPendingApproval {
		plan.Status = models.PlanStatusExpired
		if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
			return err
		}
	}

	s.logger.Info("Approval expired",
		zap.String("plan_id", plan.ID.String()),
		zap.String("approval_id", approval.ID.String()))

	s.notify(ctx, notify.EventApprovalExpired, map[string]any{
		"plan_id":     plan.ID.String(),
		"approval_id": approval.ID.String(),
	})

	return nil
}

// notify delivers best effort; failures are logged, never propagated.
func (s *approvalService) notify(ctx context.Context, event string, data map[string]any) {
	if err := s.notifier.Send(context.WithoutCancel(ctx), event, data); err != nil {
		s.logger.Warn("Notification delivery failed",
			zap.String("event", event),
			zap.Error(err))
	}
}
