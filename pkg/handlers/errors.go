package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/logging"
)

// writeServiceError maps service-layer errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var status int
	var code string

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrAlreadyDecided):
		status, code = http.StatusConflict, "already_decided"
	case errors.Is(err, apperrors.ErrAlreadyExecuted):
		status, code = http.StatusConflict, "already_executed"
	case errors.Is(err, apperrors.ErrApprovalExpired):
		status, code = http.StatusGone, "approval_expired"
	case errors.Is(err, apperrors.ErrInvalidState):
		status, code = http.StatusUnprocessableEntity, "invalid_state"
	case errors.Is(err, apperrors.ErrIterationBudgetExhausted):
		status, code = http.StatusUnprocessableEntity, "iteration_budget_exhausted"
	case errors.Is(err, apperrors.ErrRollbackFailed):
		status, code = http.StatusInternalServerError, "rollback_failed"
	default:
		logger.Error("Unhandled service error", zap.String("error", logging.SanitizeError(err)))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "An internal error occurred"); werr != nil {
			logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	if werr := ErrorResponse(w, status, code, err.Error()); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
