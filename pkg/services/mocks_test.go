package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
)

// mockPlanRepo is an in-memory PlanRepository with real version semantics so
// claim conflicts behave like the database would.
type mockPlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*models.TransformationPlan

	updateErr error
}

func newMockPlanRepo() *mockPlanRepo {
	return &mockPlanRepo{plans: make(map[uuid.UUID]*models.TransformationPlan)}
}

func (m *mockPlanRepo) Create(_ context.Context, plan *models.TransformationPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan.ID = uuid.New()
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = plan.CreatedAt
	clone := *plan
	m.plans[plan.ID] = &clone
	return nil
}

func (m *mockPlanRepo) GetByID(_ context.Context, planID uuid.UUID) (*models.TransformationPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.plans[planID]
	if !ok {
		return nil, nil
	}
	clone := *stored
	return &clone, nil
}

func (m *mockPlanRepo) List(_ context.Context, filter repositories.PlanFilter) ([]*models.TransformationPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var plans []*models.TransformationPlan
	for _, p := range m.plans {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.TargetAsset != nil && p.TargetAsset != *filter.TargetAsset {
			continue
		}
		clone := *p
		plans = append(plans, &clone)
	}
	return plans, nil
}

func (m *mockPlanRepo) CountByStatus(_ context.Context) (map[models.PlanStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.PlanStatus]int)
	for _, p := range m.plans {
		counts[p.Status]++
	}
	return counts, nil
}

func (m *mockPlanRepo) UpdateSummary(_ context.Context, plan *models.TransformationPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.plans[plan.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Version != plan.Version {
		return apperrors.ErrConflict
	}
	plan.Version++
	plan.UpdatedAt = time.Now()
	clone := *plan
	m.plans[plan.ID] = &clone
	return nil
}

var _ repositories.PlanRepository = (*mockPlanRepo)(nil)

// mockIterationRepo appends iterations in memory.
type mockIterationRepo struct {
	mu         sync.Mutex
	iterations map[uuid.UUID][]*models.Iteration
	createErr  error
}

func newMockIterationRepo() *mockIterationRepo {
	return &mockIterationRepo{iterations: make(map[uuid.UUID][]*models.Iteration)}
}

func (m *mockIterationRepo) Create(_ context.Context, iter *models.Iteration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	iter.ID = uuid.New()
	iter.CreatedAt = time.Now()
	clone := *iter
	m.iterations[iter.PlanID] = append(m.iterations[iter.PlanID], &clone)
	return nil
}

func (m *mockIterationRepo) ListByPlan(_ context.Context, planID uuid.UUID) ([]*models.Iteration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Iteration(nil), m.iterations[planID]...), nil
}

func (m *mockIterationRepo) GetLatest(_ context.Context, planID uuid.UUID) (*models.Iteration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.iterations[planID]
	if len(list) == 0 {
		return nil, nil
	}
	clone := *list[len(list)-1]
	return &clone, nil
}

var _ repositories.IterationRepository = (*mockIterationRepo)(nil)

// mockApprovalRepo enforces the one-pending-per-plan rule in memory.
type mockApprovalRepo struct {
	mu        sync.Mutex
	approvals map[uuid.UUID]*models.Approval
	order     []uuid.UUID
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{approvals: make(map[uuid.UUID]*models.Approval)}
}

func (m *mockApprovalRepo) Create(_ context.Context, approval *models.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if approval.Status == models.ApprovalStatusPending {
		for _, a := range m.approvals {
			if a.PlanID == approval.PlanID && a.Status == models.ApprovalStatusPending {
				return apperrors.ErrConflict
			}
		}
	}
	approval.ID = uuid.New()
	approval.CreatedAt = time.Now()
	clone := *approval
	m.approvals[approval.ID] = &clone
	m.order = append(m.order, approval.ID)
	return nil
}

func (m *mockApprovalRepo) GetByID(_ context.Context, approvalID uuid.UUID) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.approvals[approvalID]
	if !ok {
		return nil, nil
	}
	clone := *stored
	return &clone, nil
}

func (m *mockApprovalRepo) GetPendingByPlan(_ context.Context, planID uuid.UUID) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.approvals {
		if a.PlanID == planID && a.Status == models.ApprovalStatusPending {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *mockApprovalRepo) ListByPlan(_ context.Context, planID uuid.UUID) ([]*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Approval
	for _, id := range m.order {
		if a := m.approvals[id]; a.PlanID == planID {
			clone := *a
			list = append(list, &clone)
		}
	}
	return list, nil
}

func (m *mockApprovalRepo) MarkDecided(_ context.Context, approvalID uuid.UUID, status models.ApprovalStatus, reviewedBy string, comment *string, reviewedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.approvals[approvalID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != models.ApprovalStatusPending {
		return apperrors.ErrAlreadyDecided
	}
	stored.Status = status
	stored.ReviewedBy = &reviewedBy
	stored.ReviewedAt = &reviewedAt
	stored.Comment = comment
	return nil
}

func (m *mockApprovalRepo) MarkExpired(_ context.Context, approvalID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.approvals[approvalID]
	if !ok || stored.Status != models.ApprovalStatusPending {
		return false, nil
	}
	stored.Status = models.ApprovalStatusExpired
	return true, nil
}

func (m *mockApprovalRepo) ListExpiredPending(_ context.Context, before time.Time) ([]*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.Approval
	for _, id := range m.order {
		a := m.approvals[id]
		if a.Status == models.ApprovalStatusPending && a.ExpiresAt.Before(before) {
			clone := *a
			list = append(list, &clone)
		}
	}
	return list, nil
}

var _ repositories.ApprovalRepository = (*mockApprovalRepo)(nil)

// mockExecutionRepo stores execution logs in memory.
type mockExecutionRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*models.ExecutionLog
}

func newMockExecutionRepo() *mockExecutionRepo {
	return &mockExecutionRepo{logs: make(map[uuid.UUID]*models.ExecutionLog)}
}

func (m *mockExecutionRepo) Create(_ context.Context, log *models.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	clone := *log
	m.logs[log.ID] = &clone
	return nil
}

func (m *mockExecutionRepo) Finalize(_ context.Context, log *models.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[log.ID]; !ok {
		return apperrors.ErrNotFound
	}
	clone := *log
	m.logs[log.ID] = &clone
	return nil
}

func (m *mockExecutionRepo) GetByID(_ context.Context, executionID uuid.UUID) (*models.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.logs[executionID]
	if !ok {
		return nil, nil
	}
	clone := *stored
	return &clone, nil
}

func (m *mockExecutionRepo) ListByPlan(_ context.Context, planID uuid.UUID) ([]*models.ExecutionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.ExecutionLog
	for _, l := range m.logs {
		if l.PlanID == planID {
			clone := *l
			list = append(list, &clone)
		}
	}
	return list, nil
}

var _ repositories.ExecutionRepository = (*mockExecutionRepo)(nil)

// mockLineageRepo records lineage writes.
type mockLineageRepo struct {
	mu        sync.Mutex
	records   []*models.LineageRecord
	createErr error
}

func newMockLineageRepo() *mockLineageRepo {
	return &mockLineageRepo{}
}

func (m *mockLineageRepo) Create(_ context.Context, record *models.LineageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = uuid.New()
	record.CreatedAt = time.Now()
	clone := *record
	m.records = append(m.records, &clone)
	return nil
}

func (m *mockLineageRepo) ListByAsset(_ context.Context, asset string) ([]*models.LineageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.LineageRecord
	for _, r := range m.records {
		if r.Asset == asset {
			clone := *r
			list = append(list, &clone)
		}
	}
	return list, nil
}

func (m *mockLineageRepo) ListByPlan(_ context.Context, planID uuid.UUID) ([]*models.LineageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.LineageRecord
	for _, r := range m.records {
		if r.PlanID == planID {
			clone := *r
			list = append(list, &clone)
		}
	}
	return list, nil
}

var _ repositories.LineageRepository = (*mockLineageRepo)(nil)
