package apperrors

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrConflict                 = errors.New("conflict")
	ErrInvalidState             = errors.New("invalid plan state for operation")
	ErrIterationBudgetExhausted = errors.New("iteration budget exhausted")
	ErrAlreadyDecided           = errors.New("approval already decided")
	ErrApprovalExpired          = errors.New("approval expired")
	ErrAlreadyExecuted          = errors.New("plan already executed")
	ErrRollbackFailed           = errors.New("rollback failed, manual intervention required")
)
