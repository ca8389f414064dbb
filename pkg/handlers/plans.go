package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
	"github.com/trustline-data/trustline-engine/pkg/services"
)

// PlanHandler exposes the transformation plan lifecycle over HTTP.
type PlanHandler struct {
	planService      services.PlanService
	iterationService services.IterationService
	approvalService  services.ApprovalService
	executionService services.ExecutionService
	logger           *zap.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(
	planService services.PlanService,
	iterationService services.IterationService,
	approvalService services.ApprovalService,
	executionService services.ExecutionService,
	logger *zap.Logger,
) *PlanHandler {
	return &PlanHandler{
		planService:      planService,
		iterationService: iterationService,
		approvalService:  approvalService,
		executionService: executionService,
		logger:           logger,
	}
}

// RegisterRoutes registers the plan lifecycle routes on the given mux.
func (h *PlanHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/plans", h.CreatePlan)
	mux.HandleFunc("GET /api/plans", h.ListPlans)
	mux.HandleFunc("GET /api/plans/{plid}", h.GetPlan)
	mux.HandleFunc("POST /api/plans/{plid}/iterations", h.RunIteration)
	mux.HandleFunc("POST /api/plans/{plid}/approvals", h.RequestApproval)
	mux.HandleFunc("POST /api/approvals/{apid}/decision", h.DecideApproval)
	mux.HandleFunc("POST /api/plans/{plid}/execute", h.ExecutePlan)
	mux.HandleFunc("POST /api/plans/{plid}/cancel", h.CancelPlan)
}

type createPlanRequest struct {
	SourceType        string                     `json:"source_type"`
	SourceID          string                     `json:"source_id"`
	TargetAsset       string                     `json:"target_asset"`
	TargetColumn      *string                    `json:"target_column,omitempty"`
	Kind              models.TransformationKind  `json:"kind"`
	Description       string                     `json:"description"`
	Spec              *models.TransformationSpec `json:"spec,omitempty"`
	RiskLevel         models.RiskLevel           `json:"risk_level"`
	RequestedBy       string                     `json:"requested_by"`
	MaxIterations     int                        `json:"max_iterations,omitempty"`
	AccuracyThreshold float64                    `json:"accuracy_threshold,omitempty"`
}

// CreatePlan handles POST /api/plans.
func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid JSON in request body")
		return
	}

	plan, err := h.planService.CreatePlan(r.Context(), &services.CreatePlanRequest{
		SourceType:        req.SourceType,
		SourceID:          req.SourceID,
		TargetAsset:       req.TargetAsset,
		TargetColumn:      req.TargetColumn,
		Kind:              req.Kind,
		Description:       req.Description,
		Spec:              req.Spec,
		RiskLevel:         req.RiskLevel,
		RequestedBy:       req.RequestedBy,
		MaxIterations:     req.MaxIterations,
		AccuracyThreshold: req.AccuracyThreshold,
	})
	if err != nil {
		h.badRequest(w, "invalid_plan", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusCreated, plan); err != nil {
		h.logger.Error("Failed to encode plan response", zap.Error(err))
	}
}

// ListPlans handles GET /api/plans with optional status, target_asset, limit,
// and offset query parameters.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	filter := repositories.PlanFilter{}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.PlanStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("target_asset"); raw != "" {
		filter.TargetAsset = &raw
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.badRequest(w, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			h.badRequest(w, "invalid_offset", "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	list, err := h.planService.ListPlans(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, list); err != nil {
		h.logger.Error("Failed to encode plan list", zap.Error(err))
	}
}

// GetPlan handles GET /api/plans/{plid}, returning the plan with its full
// iteration, approval, execution, and lineage history.
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	detail, err := h.planService.GetPlan(r.Context(), planID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, detail); err != nil {
		h.logger.Error("Failed to encode plan detail", zap.Error(err))
	}
}

// RunIteration handles POST /api/plans/{plid}/iterations.
func (h *PlanHandler) RunIteration(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	iteration, err := h.iterationService.RunIteration(r.Context(), planID)
	if err != nil && iteration == nil {
		writeServiceError(w, err, h.logger)
		return
	}

	// A failed iteration is still a recorded iteration; the row tells the
	// caller what went wrong.
	if err := WriteJSON(w, http.StatusCreated, iteration); err != nil {
		h.logger.Error("Failed to encode iteration response", zap.Error(err))
	}
}

// RequestApproval handles POST /api/plans/{plid}/approvals.
func (h *PlanHandler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	approval, err := h.approvalService.RequestApproval(r.Context(), planID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, approval); err != nil {
		h.logger.Error("Failed to encode approval response", zap.Error(err))
	}
}

type decisionRequest struct {
	Decision   models.ApprovalDecision `json:"decision"`
	ReviewedBy string                  `json:"reviewed_by"`
	Comment    *string                 `json:"comment,omitempty"`
}

// DecideApproval handles POST /api/approvals/{apid}/decision.
func (h *PlanHandler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	approvalID, ok := ParseApprovalID(w, r, h.logger)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid JSON in request body")
		return
	}
	if req.Decision != models.DecisionApprove && req.Decision != models.DecisionReject {
		h.badRequest(w, "invalid_decision", "decision must be approve or reject")
		return
	}
	if req.ReviewedBy == "" {
		h.badRequest(w, "missing_reviewer", "reviewed_by is required")
		return
	}

	approval, err := h.approvalService.Decide(r.Context(), approvalID, req.Decision, req.ReviewedBy, req.Comment)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, approval); err != nil {
		h.logger.Error("Failed to encode decision response", zap.Error(err))
	}
}

type executeRequest struct {
	ExecutedBy string `json:"executed_by"`
}

// ExecutePlan handles POST /api/plans/{plid}/execute.
func (h *PlanHandler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid JSON in request body")
		return
	}
	if req.ExecutedBy == "" {
		h.badRequest(w, "missing_executor", "executed_by is required")
		return
	}

	log, err := h.executionService.Execute(r.Context(), planID, req.ExecutedBy)
	if err != nil && log == nil {
		writeServiceError(w, err, h.logger)
		return
	}

	// Executions that failed and rolled back still return the ledger row;
	// the status and error fields carry the outcome.
	if err := WriteJSON(w, http.StatusCreated, log); err != nil {
		h.logger.Error("Failed to encode execution response", zap.Error(err))
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelPlan handles POST /api/plans/{plid}/cancel.
func (h *PlanHandler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, "invalid_request", "Invalid JSON in request body")
			return
		}
	}

	plan, err := h.planService.CancelPlan(r.Context(), planID, req.Reason)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, plan); err != nil {
		h.logger.Error("Failed to encode cancel response", zap.Error(err))
	}
}

func (h *PlanHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
