package models

import (
	"time"

	"github.com/google/uuid"
)

// Iteration is one generate-and-sample-test cycle within a plan's refinement
// loop. Rows are immutable once written; the ledger only ever appends them,
// ordered by IterationNumber (1-based).
type Iteration struct {
	ID              uuid.UUID `json:"id"`
	PlanID          uuid.UUID `json:"plan_id"`
	IterationNumber int       `json:"iteration_number"`

	Code        string     `json:"code"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SampleSize  int        `json:"sample_size"`

	Success        bool     `json:"success"`
	Accuracy       *float64 `json:"accuracy,omitempty"`
	MeetsThreshold bool     `json:"meets_threshold"`
	ErrorMessage   *string  `json:"error_message,omitempty"`

	EvaluationNotes       string   `json:"evaluation_notes,omitempty"`
	IssuesFound           []string `json:"issues_found,omitempty"`
	ImprovementsSuggested []string `json:"improvements_suggested,omitempty"`

	// Before/after sample snapshots kept for human review of the candidate code.
	SampleBefore []map[string]any `json:"sample_before,omitempty"`
	SampleAfter  []map[string]any `json:"sample_after,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
