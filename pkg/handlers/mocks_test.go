package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
	"github.com/trustline-data/trustline-engine/pkg/services"
)

// mockPlanService lets each test pin the behavior it needs.
type mockPlanService struct {
	createFunc func(ctx context.Context, req *services.CreatePlanRequest) (*models.TransformationPlan, error)
	getFunc    func(ctx context.Context, planID uuid.UUID) (*services.PlanDetail, error)
	listFunc   func(ctx context.Context, filter repositories.PlanFilter) (*services.PlanList, error)
	cancelFunc func(ctx context.Context, planID uuid.UUID, reason string) (*models.TransformationPlan, error)
}

var _ services.PlanService = (*mockPlanService)(nil)

func (m *mockPlanService) CreatePlan(ctx context.Context, req *services.CreatePlanRequest) (*models.TransformationPlan, error) {
	return m.createFunc(ctx, req)
}

func (m *mockPlanService) GetPlan(ctx context.Context, planID uuid.UUID) (*services.PlanDetail, error) {
	return m.getFunc(ctx, planID)
}

func (m *mockPlanService) ListPlans(ctx context.Context, filter repositories.PlanFilter) (*services.PlanList, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockPlanService) CancelPlan(ctx context.Context, planID uuid.UUID, reason string) (*models.TransformationPlan, error) {
	return m.cancelFunc(ctx, planID, reason)
}

type mockIterationService struct {
	runFunc func(ctx context.Context, planID uuid.UUID) (*models.Iteration, error)
}

var _ services.IterationService = (*mockIterationService)(nil)

func (m *mockIterationService) RunIteration(ctx context.Context, planID uuid.UUID) (*models.Iteration, error) {
	return m.runFunc(ctx, planID)
}

type mockApprovalService struct {
	requestFunc func(ctx context.Context, planID uuid.UUID) (*models.Approval, error)
	decideFunc  func(ctx context.Context, approvalID uuid.UUID, decision models.ApprovalDecision, reviewedBy string, comment *string) (*models.Approval, error)
}

var _ services.ApprovalService = (*mockApprovalService)(nil)

func (m *mockApprovalService) RequestApproval(ctx context.Context, planID uuid.UUID) (*models.Approval, error) {
	return m.requestFunc(ctx, planID)
}

func (m *mockApprovalService) Decide(ctx context.Context, approvalID uuid.UUID, decision models.ApprovalDecision, reviewedBy string, comment *string) (*models.Approval, error) {
	return m.decideFunc(ctx, approvalID, decision, reviewedBy, comment)
}

func (m *mockApprovalService) SweepExpired(context.Context) (int, error) { return 0, nil }

func (m *mockApprovalService) StartSweeper(context.Context, time.Duration) {}

type mockExecutionService struct {
	executeFunc func(ctx context.Context, planID uuid.UUID, executedBy string) (*models.ExecutionLog, error)
}

var _ services.ExecutionService = (*mockExecutionService)(nil)

func (m *mockExecutionService) Execute(ctx context.Context, planID uuid.UUID, executedBy string) (*models.ExecutionLog, error) {
	return m.executeFunc(ctx, planID, executedBy)
}
