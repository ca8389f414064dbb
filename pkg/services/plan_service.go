package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/config"
	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
)

// CreatePlanRequest carries everything needed to open a new plan.
type CreatePlanRequest struct {
	SourceType   string
	SourceID     string
	TargetAsset  string
	TargetColumn *string
	Kind         models.TransformationKind
	Description  string
	Spec         *models.TransformationSpec
	RiskLevel    models.RiskLevel
	RequestedBy  string

	// Zero values fall back to the engine defaults.
	MaxIterations     int
	AccuracyThreshold float64
}

// PlanDetail is a plan with its full append-only history attached.
type PlanDetail struct {
	Plan       *models.TransformationPlan `json:"plan"`
	Iterations []*models.Iteration        `json:"iterations"`
	Approvals  []*models.Approval         `json:"approvals"`
	Executions []*models.ExecutionLog     `json:"executions"`
	Lineage    []*models.LineageRecord    `json:"lineage"`
}

// PlanList is a page of plans plus per-status totals.
type PlanList struct {
	Plans  []*models.TransformationPlan  `json:"plans"`
	Counts map[models.PlanStatus]int     `json:"counts"`
}

// PlanService manages plan creation, inspection, and cancellation.
type PlanService interface {
	CreatePlan(ctx context.Context, req *CreatePlanRequest) (*models.TransformationPlan, error)
	GetPlan(ctx context.Context, planID uuid.UUID) (*PlanDetail, error)
	ListPlans(ctx context.Context, filter repositories.PlanFilter) (*PlanList, error)

	// CancelPlan moves a plan to cancelled from any non-terminal state.
	CancelPlan(ctx context.Context, planID uuid.UUID, reason string) (*models.TransformationPlan, error)
}

type planService struct {
	planRepo      repositories.PlanRepository
	iterationRepo repositories.IterationRepository
	approvalRepo  repositories.ApprovalRepository
	executionRepo repositories.ExecutionRepository
	lineageRepo   repositories.LineageRepository
	engineCfg     *config.EngineConfig
	logger        *zap.Logger
}

// NewPlanService creates a new PlanService.
func NewPlanService(
	planRepo repositories.PlanRepository,
	iterationRepo repositories.IterationRepository,
	approvalRepo repositories.ApprovalRepository,
	executionRepo repositories.ExecutionRepository,
	lineageRepo repositories.LineageRepository,
	engineCfg *config.EngineConfig,
	logger *zap.Logger,
) PlanService {
	return &planService{
		planRepo:      planRepo,
		iterationRepo: iterationRepo,
		approvalRepo:  approvalRepo,
		executionRepo: executionRepo,
		lineageRepo:   lineageRepo,
		engineCfg:     engineCfg,
		logger:        logger.Named("plan-service"),
	}
}

var _ PlanService = (*planService)(nil)

func (s *planService) CreatePlan(ctx context.Context, req *CreatePlanRequest) (*models.TransformationPlan, error) {
	if req.TargetAsset == "" {
		return nil, fmt.Errorf("target asset is required")
	}
	if req.Description == "" {
		return nil, fmt.Errorf("description is required")
	}
	if req.RequestedBy == "" {
		return nil, fmt.Errorf("requested_by is required")
	}
	if !models.ValidKind(req.Kind) {
		return nil, fmt.Errorf("unknown transformation kind %q", req.Kind)
	}
	if !models.ValidRiskLevel(req.RiskLevel) {
		return nil, fmt.Errorf("unknown risk level %q", req.RiskLevel)
	}
	if req.Spec != nil {
		if req.Spec.Kind != req.Kind {
			return nil, fmt.Errorf("spec kind %q does not match plan kind %q", req.Spec.Kind, req.Kind)
		}
		if err := req.Spec.Validate(); err != nil {
			return nil, err
		}
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = s.engineCfg.MaxIterations
	}
	threshold := req.AccuracyThreshold
	if threshold <= 0 {
		threshold = s.engineCfg.AccuracyThreshold
	}
	if threshold > 1 {
		return nil, fmt.Errorf("accuracy threshold must be in (0, 1], got %v", threshold)
	}

	plan := &models.TransformationPlan{
		SourceType:        req.SourceType,
		SourceID:          req.SourceID,
		TargetAsset:       req.TargetAsset,
		TargetColumn:      req.TargetColumn,
		Kind:              req.Kind,
		Description:       req.Description,
		Spec:              req.Spec,
		RiskLevel:         req.RiskLevel,
		MaxIterations:     maxIterations,
		AccuracyThreshold: threshold,
		Status:            models.PlanStatusDraft,
		RequestedBy:       req.RequestedBy,
	}

	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("Created transformation plan",
		zap.String("plan_id", plan.ID.String()),
		zap.String("kind", string(plan.Kind)),
		zap.String("target_asset", plan.TargetAsset),
		zap.String("risk_level", string(plan.RiskLevel)))

	return plan, nil
}

func (s *planService) GetPlan(ctx context.Context, planID uuid.UUID) (*PlanDetail, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.ErrNotFound
	}

	iterations, err := s.iterationRepo.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	approvals, err := s.approvalRepo.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	executions, err := s.executionRepo.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	lineage, err := s.lineageRepo.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	return &PlanDetail{
		Plan:       plan,
		Iterations: iterations,
		Approvals:  approvals,
		Executions: executions,
		Lineage:    lineage,
	}, nil
}

func (s *planService) ListPlans(ctx context.Context, filter repositories.PlanFilter) (*PlanList, error) {
	plans, err := s.planRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	counts, err := s.planRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &PlanList{Plans: plans, Counts: counts}, nil
}

func (s *planService) CancelPlan(ctx context.Context, planID uuid.UUID, reason string) (*models.TransformationPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.ErrNotFound
	}

	if !plan.Status.CanTransition(models.PlanStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel plan in status %s", apperrors.ErrInvalidState, plan.Status)
	}

	plan.Status = models.PlanStatusCancelled
	if reason != "" {
		plan.FailureReason = &reason
	}

	if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("Cancelled transformation plan",
		zap.String("plan_id", plan.ID.String()),
		zap.String("reason", reason))

	return plan, nil
}
