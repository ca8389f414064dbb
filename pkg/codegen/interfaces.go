// Package codegen provides LLM-backed transformation code generation.
package codegen

import (
	"context"

	"github.com/trustline-data/trustline-engine/pkg/models"
)

// GenerationRequest carries everything the generator needs to produce (or
// refine) candidate transformation code for a plan.
type GenerationRequest struct {
	Kind         models.TransformationKind
	TargetAsset  string
	TargetColumn *string
	Description  string
	Parameters   map[string]any

	// Feedback from the prior iteration lets the generator refine its output.
	IterationNumber   int
	PriorIssues       []string
	PriorImprovements []string
	PriorCode         string
}

// GenerationResult is the generator's candidate code plus its inverse.
type GenerationResult struct {
	Code         string
	RollbackCode string
	Model        string
}

// Generator produces candidate transformation code. Implementations must
// honor context cancellation and bound their own request timeouts.
type Generator interface {
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)
}
