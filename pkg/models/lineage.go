package models

import (
	"time"

	"github.com/google/uuid"
)

// LineageRecord links a transformed asset back to the plan and execution that
// produced it. Written only after a clean (or tolerated-partial) execution.
type LineageRecord struct {
	ID          uuid.UUID `json:"id"`
	PlanID      uuid.UUID `json:"plan_id"`
	ExecutionID uuid.UUID `json:"execution_id"`

	Asset   string  `json:"asset"`
	Column  *string `json:"column,omitempty"`
	Kind    TransformationKind `json:"kind"`
	Summary string  `json:"summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
