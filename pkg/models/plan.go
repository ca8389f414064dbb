package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle state of a transformation plan.
type PlanStatus string

const (
	PlanStatusDraft           PlanStatus = "draft"
	PlanStatusIterating       PlanStatus = "iterating"
	PlanStatusPendingApproval PlanStatus = "pending_approval"
	PlanStatusApproved        PlanStatus = "approved"
	PlanStatusRejected        PlanStatus = "rejected"
	PlanStatusExpired         PlanStatus = "expired"
	PlanStatusExecuting       PlanStatus = "executing"
	PlanStatusCompleted       PlanStatus = "completed"
	PlanStatusFailed          PlanStatus = "failed"
	PlanStatusCancelled       PlanStatus = "cancelled"
)

// TransformationKind classifies what a plan's generated code is supposed to do.
type TransformationKind string

const (
	KindFormatStandardization TransformationKind = "format_standardization"
	KindNullRemediation       TransformationKind = "null_remediation"
	KindReferentialFix        TransformationKind = "referential_fix"
	KindDeduplication         TransformationKind = "deduplication"
	KindOutlierCorrection     TransformationKind = "outlier_correction"
	KindClassification        TransformationKind = "classification"
	KindCustom                TransformationKind = "custom"
)

// RiskLevel is a coarse classification of blast radius and reversibility.
// It gates auto-approval eligibility and the best-effort submission path.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TransformationPlan is the aggregate root for one proposed data-quality fix.
// Iterations, approvals, and execution logs hang off it as append-only history;
// only the summary fields here are ever mutated in place, guarded by Version.
type TransformationPlan struct {
	ID           uuid.UUID          `json:"id"`
	SourceType   string             `json:"source_type"` // what requested the fix, e.g. "issue"
	SourceID     string             `json:"source_id"`
	TargetAsset  string             `json:"target_asset"`
	TargetColumn *string            `json:"target_column,omitempty"`
	Kind         TransformationKind `json:"kind"`
	Description  string             `json:"description"`
	Spec         *TransformationSpec `json:"spec,omitempty"`

	GeneratedCode     *string  `json:"generated_code,omitempty"`
	RollbackCode      *string  `json:"rollback_code,omitempty"`
	AffectedColumns   []string `json:"affected_columns,omitempty"`
	EstimatedRowCount *int64   `json:"estimated_row_count,omitempty"`

	RiskLevel         RiskLevel `json:"risk_level"`
	IterationCount    int       `json:"iteration_count"`
	MaxIterations     int       `json:"max_iterations"`
	FinalAccuracy     *float64  `json:"final_accuracy,omitempty"`
	AccuracyThreshold float64   `json:"accuracy_threshold"`

	Status        PlanStatus `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RequestedBy   string     `json:"requested_by"`

	// Version implements optimistic concurrency on the summary fields.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// terminal plan states admit no further transitions.
var terminalStatuses = map[PlanStatus]bool{
	PlanStatusCompleted: true,
	PlanStatusRejected:  true,
	PlanStatusCancelled: true,
	PlanStatusFailed:    true,
}

// validTransitions encodes the plan state machine.
var validTransitions = map[PlanStatus][]PlanStatus{
	PlanStatusDraft:           {PlanStatusIterating},
	PlanStatusIterating:       {PlanStatusIterating, PlanStatusPendingApproval, PlanStatusFailed},
	PlanStatusPendingApproval: {PlanStatusApproved, PlanStatusRejected, PlanStatusExpired},
	PlanStatusExpired:         {PlanStatusPendingApproval}, // only via a fresh approval request
	PlanStatusApproved:        {PlanStatusExecuting},
	PlanStatusExecuting:       {PlanStatusCompleted, PlanStatusFailed},
}

// IsTerminal reports whether no further transitions are permitted from s.
func (s PlanStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// CanTransition reports whether the plan state machine permits moving from s to next.
// Cancellation is reachable from any non-terminal state.
func (s PlanStatus) CanTransition(next PlanStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == PlanStatusCancelled {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidKind reports whether k is a known transformation kind.
func ValidKind(k TransformationKind) bool {
	switch k {
	case KindFormatStandardization, KindNullRemediation, KindReferentialFix,
		KindDeduplication, KindOutlierCorrection, KindClassification, KindCustom:
		return true
	}
	return false
}

// ValidRiskLevel reports whether r is a known risk level.
func ValidRiskLevel(r RiskLevel) bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// HasBudget reports whether the plan may run another iteration.
func (p *TransformationPlan) HasBudget() bool {
	return p.IterationCount < p.MaxIterations
}

// MeetsThreshold reports whether the plan's final accuracy reached its threshold.
func (p *TransformationPlan) MeetsThreshold() bool {
	return p.FinalAccuracy != nil && *p.FinalAccuracy >= p.AccuracyThreshold
}
