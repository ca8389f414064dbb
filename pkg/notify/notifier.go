// Package notify delivers plan lifecycle notifications to reviewers.
package notify

import "context"

// Events the engine emits. Each maps to a message template.
const (
	EventApprovalRequested = "approval_requested"
	EventApprovalDecided   = "approval_decided"
	EventApprovalExpired   = "approval_expired"
	EventExecutionFinished = "execution_finished"
	EventRollbackFailed    = "rollback_failed"
)

// Notifier delivers a rendered notification for an event. Delivery is best
// effort: callers log failures but never fail the triggering operation.
type Notifier interface {
	Send(ctx context.Context, event string, data map[string]any) error
}
