package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// ApprovalDecision is a reviewer's verdict on a pending approval.
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
)

// Approval is a request to authorize execution of a plan's generated code.
// Approvals are append-only history on a plan; at most one may be pending at
// a time (enforced by a partial unique index). A pending approval that passes
// ExpiresAt without a decision becomes expired and blocks execution until a
// fresh approval is requested.
type Approval struct {
	ID     uuid.UUID      `json:"id"`
	PlanID uuid.UUID      `json:"plan_id"`
	Status ApprovalStatus `json:"status"`

	ReviewedBy *string    `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Comment    *string    `json:"comment,omitempty"`

	AutoApproved      bool    `json:"auto_approved"`
	AutoApproveReason *string `json:"auto_approve_reason,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Decided reports whether the approval has reached a terminal state.
func (a *Approval) Decided() bool {
	return a.Status != ApprovalStatusPending
}

// ExpiredAt reports whether the approval's window has passed at the given time.
// Only meaningful for pending approvals; decided ones keep their outcome.
func (a *Approval) ExpiredAt(now time.Time) bool {
	return a.Status == ApprovalStatusPending && now.After(a.ExpiresAt)
}
