package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanStatusIsTerminal(t *testing.T) {
	terminal := []PlanStatus{PlanStatusCompleted, PlanStatusRejected, PlanStatusCancelled, PlanStatusFailed}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "status %s should be terminal", s)
	}

	live := []PlanStatus{
		PlanStatusDraft, PlanStatusIterating, PlanStatusPendingApproval,
		PlanStatusApproved, PlanStatusExpired, PlanStatusExecuting,
	}
	for _, s := range live {
		assert.False(t, s.IsTerminal(), "status %s should not be terminal", s)
	}
}

func TestPlanStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to PlanStatus
		want     bool
	}{
		{PlanStatusDraft, PlanStatusIterating, true},
		{PlanStatusDraft, PlanStatusApproved, false},
		{PlanStatusIterating, PlanStatusIterating, true},
		{PlanStatusIterating, PlanStatusPendingApproval, true},
		{PlanStatusIterating, PlanStatusFailed, true},
		{PlanStatusIterating, PlanStatusExecuting, false},
		{PlanStatusPendingApproval, PlanStatusApproved, true},
		{PlanStatusPendingApproval, PlanStatusRejected, true},
		{PlanStatusPendingApproval, PlanStatusExpired, true},
		{PlanStatusExpired, PlanStatusPendingApproval, true},
		{PlanStatusExpired, PlanStatusApproved, false},
		{PlanStatusApproved, PlanStatusExecuting, true},
		{PlanStatusExecuting, PlanStatusCompleted, true},
		{PlanStatusExecuting, PlanStatusFailed, true},
		{PlanStatusExecuting, PlanStatusApproved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPlanStatusCancellation(t *testing.T) {
	// Any live state can be cancelled.
	for _, s := range []PlanStatus{
		PlanStatusDraft, PlanStatusIterating, PlanStatusPendingApproval,
		PlanStatusApproved, PlanStatusExpired, PlanStatusExecuting,
	} {
		assert.True(t, s.CanTransition(PlanStatusCancelled), "%s should allow cancellation", s)
	}

	// Terminal states cannot be cancelled, and terminal states admit nothing.
	for _, s := range []PlanStatus{PlanStatusCompleted, PlanStatusRejected, PlanStatusCancelled, PlanStatusFailed} {
		assert.False(t, s.CanTransition(PlanStatusCancelled), "%s should refuse cancellation", s)
		assert.False(t, s.CanTransition(PlanStatusIterating), "%s should refuse all transitions", s)
	}
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindFormatStandardization))
	assert.True(t, ValidKind(KindCustom))
	assert.False(t, ValidKind(TransformationKind("alchemy")))
	assert.False(t, ValidKind(TransformationKind("")))
}

func TestValidRiskLevel(t *testing.T) {
	assert.True(t, ValidRiskLevel(RiskLow))
	assert.True(t, ValidRiskLevel(RiskCritical))
	assert.False(t, ValidRiskLevel(RiskLevel("extreme")))
}

func TestPlanHasBudget(t *testing.T) {
	plan := &TransformationPlan{MaxIterations: 3}

	plan.IterationCount = 0
	assert.True(t, plan.HasBudget())
	plan.IterationCount = 2
	assert.True(t, plan.HasBudget())
	plan.IterationCount = 3
	assert.False(t, plan.HasBudget())
}

func TestPlanMeetsThreshold(t *testing.T) {
	plan := &TransformationPlan{AccuracyThreshold: 0.95}
	assert.False(t, plan.MeetsThreshold(), "no accuracy recorded yet")

	accuracy := 0.94
	plan.FinalAccuracy = &accuracy
	assert.False(t, plan.MeetsThreshold())

	accuracy = 0.95
	assert.True(t, plan.MeetsThreshold(), "threshold is inclusive")

	accuracy = 1.0
	assert.True(t, plan.MeetsThreshold())
}

func TestApprovalExpiredAt(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	approval := &Approval{Status: ApprovalStatusPending, ExpiresAt: deadline}

	assert.False(t, approval.ExpiredAt(deadline.Add(-time.Minute)))
	assert.False(t, approval.ExpiredAt(deadline), "window is inclusive of the deadline instant")
	assert.True(t, approval.ExpiredAt(deadline.Add(time.Second)))

	// A decided approval keeps its outcome regardless of the clock.
	approval.Status = ApprovalStatusApproved
	assert.False(t, approval.ExpiredAt(deadline.Add(time.Hour)))
	assert.True(t, approval.Decided())
}

func TestExecutionLogFailureFraction(t *testing.T) {
	log := &ExecutionLog{}
	assert.Equal(t, 0.0, log.FailureFraction(), "zero affected rows cannot fail")

	log.RowsAffected = 10000
	log.RowsFailed = 50
	assert.InDelta(t, 0.005, log.FailureFraction(), 1e-9)

	log.RowsFailed = 10000
	assert.Equal(t, 1.0, log.FailureFraction())
}
