package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus classifies the outcome of a full-dataset execution.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusPartial ExecutionStatus = "partial"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ExecutionLog records one apply-to-production attempt. Like iterations,
// execution logs are append-only; a plan gets at most one unless re-triggered
// as a new plan.
type ExecutionLog struct {
	ID         uuid.UUID  `json:"id"`
	PlanID     uuid.UUID  `json:"plan_id"`
	ApprovalID *uuid.UUID `json:"approval_id,omitempty"`

	// SnapshotID references a rollback checkpoint taken before mutation.
	SnapshotID *string `json:"snapshot_id,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RowsAffected  int64 `json:"rows_affected"`
	RowsSucceeded int64 `json:"rows_succeeded"`
	RowsFailed    int64 `json:"rows_failed"`

	Status       ExecutionStatus `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`

	RollbackAttempted bool  `json:"rollback_attempted"`
	RollbackSucceeded *bool `json:"rollback_succeeded,omitempty"`

	ExecutedBy      string    `json:"executed_by"`
	LineageRecorded bool      `json:"lineage_recorded"`
	CreatedAt       time.Time `json:"created_at"`
}

// FailureFraction returns the fraction of affected rows that failed.
func (l *ExecutionLog) FailureFraction() float64 {
	if l.RowsAffected == 0 {
		return 0
	}
	return float64(l.RowsFailed) / float64(l.RowsAffected)
}
