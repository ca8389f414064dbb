package services

import (
	"context"

	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/sandbox"
)

// Evaluation is the outcome of scoring one sample run.
type Evaluation struct {
	Accuracy     float64
	Notes        string
	Issues       []string
	Improvements []string
}

// AccuracyScorer judges how well a sample run satisfied a plan's intent.
// Implementations may be as simple as row arithmetic or as involved as a
// second model call; the refinement loop only consumes the Evaluation.
type AccuracyScorer interface {
	Score(ctx context.Context, plan *models.TransformationPlan, result *sandbox.RunResult) (*Evaluation, error)
}

// rowCountScorer scores a run by the fraction of touched rows that succeeded.
type rowCountScorer struct{}

// NewRowCountScorer returns the default scorer.
func NewRowCountScorer() AccuracyScorer {
	return &rowCountScorer{}
}

var _ AccuracyScorer = (*rowCountScorer)(nil)

func (s *rowCountScorer) Score(_ context.Context, _ *models.TransformationPlan, result *sandbox.RunResult) (*Evaluation, error) {
	eval := &Evaluation{}

	if result.RowsAffected == 0 {
		eval.Notes = "transformation touched no rows"
		eval.Issues = append(eval.Issues, "code affected zero rows; the predicate may be too narrow")
		eval.Improvements = append(eval.Improvements, "widen the row selection to cover the affected values")
		return eval, nil
	}

	eval.Accuracy = float64(result.RowsSucceeded) / float64(result.RowsAffected)
	if result.RowsFailed > 0 {
		eval.Issues = append(eval.Issues, result.ErrorMessage)
		eval.Improvements = append(eval.Improvements, "guard the transformation against the failing value shapes")
	}
	return eval, nil
}
