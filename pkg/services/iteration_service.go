package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/codegen"
	"github.com/trustline-data/trustline-engine/pkg/config"
	"github.com/trustline-data/trustline-engine/pkg/logging"
	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/repositories"
	"github.com/trustline-data/trustline-engine/pkg/retry"
	"github.com/trustline-data/trustline-engine/pkg/sandbox"
)

// IterationService runs one generate-test-evaluate cycle of a plan's
// refinement loop.
type IterationService interface {
	// RunIteration claims the plan, generates (or refines) candidate code,
	// executes it against a sample, scores the result, and appends the
	// iteration to the plan's ledger. Concurrent runs against the same plan
	// lose the claim and get apperrors.ErrConflict.
	RunIteration(ctx context.Context, planID uuid.UUID) (*models.Iteration, error)
}

type iterationService struct {
	planRepo      repositories.PlanRepository
	iterationRepo repositories.IterationRepository
	generator     codegen.Generator
	executor      sandbox.Executor
	scorer        AccuracyScorer
	engineCfg     *config.EngineConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewIterationService creates a new IterationService. A nil now falls back to
// time.Now.
func NewIterationService(
	planRepo repositories.PlanRepository,
	iterationRepo repositories.IterationRepository,
	generator codegen.Generator,
	executor sandbox.Executor,
	scorer AccuracyScorer,
	engineCfg *config.EngineConfig,
	logger *zap.Logger,
	now func() time.Time,
) IterationService {
	if now == nil {
		now = time.Now
	}
	return &iterationService{
		planRepo:      planRepo,
		iterationRepo: iterationRepo,
		generator:     generator,
		executor:      executor,
		scorer:        scorer,
		engineCfg:     engineCfg,
		logger:        logger.Named("iteration-service"),
		now:           now,
	}
}

var _ IterationService = (*iterationService)(nil)

func (s *iterationService) RunIteration(ctx context.Context, planID uuid.UUID) (*models.Iteration, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, apperrors.ErrNotFound
	}

	switch plan.Status {
	case models.PlanStatusDraft, models.PlanStatusIterating:
	default:
		return nil, fmt.Errorf("%w: cannot iterate plan in status %s", apperrors.ErrInvalidState, plan.Status)
	}

	// A converged plan is done refining; another run could only spend budget
	// and replace working code with a worse attempt.
	if plan.MeetsThreshold() {
		return nil, fmt.Errorf("%w: plan already meets its accuracy threshold", apperrors.ErrInvalidState)
	}

	if !plan.HasBudget() {
		return nil, apperrors.ErrIterationBudgetExhausted
	}

	// Claim the plan. Bumping the version here makes a concurrent caller's
	// claim fail with a conflict instead of double-running the iteration.
	plan.Status = models.PlanStatusIterating
	if err := s.planRepo.UpdateSummary(ctx, plan); err != nil {
		return nil, err
	}

	iterationNumber := plan.IterationCount + 1
	startedAt := s.now()

	s.logger.Info("Running plan iteration",
		zap.String("plan_id", plan.ID.String()),
		zap.Int("iteration", iterationNumber),
		zap.Int("max_iterations", plan.MaxIterations))

	genResult, genErr := s.generate(ctx, plan, iterationNumber)
	if genErr != nil {
		return s.recordFailure(ctx, plan, iterationNumber, startedAt, "", fmt.Errorf("code generation failed: %w", genErr))
	}

	if err := sandbox.ScreenCode(genResult.Code); err != nil {
		return s.recordFailure(ctx, plan, iterationNumber, startedAt, genResult.Code, err)
	}

	runResult, runErr := s.runSample(ctx, plan, genResult.Code)
	if runErr != nil {
		return s.recordFailure(ctx, plan, iterationNumber, startedAt, genResult.Code, fmt.Errorf("sample run failed: %w", runErr))
	}

	eval, err := s.scorer.Score(ctx, plan, runResult)
	if err != nil {
		return s.recordFailure(ctx, plan, iterationNumber, startedAt, genResult.Code, fmt.Errorf("evaluation failed: %w", err))
	}

	completedAt := s.now()
	meets := eval.Accuracy >= plan.AccuracyThreshold

	iteration := &models.Iteration{
		PlanID:                plan.ID,
		IterationNumber:       iterationNumber,
		Code:                  genResult.Code,
		StartedAt:             startedAt,
		CompletedAt:           &completedAt,
		SampleSize:            s.engineCfg.SampleRowLimit,
		Success:               true,
		Accuracy:              &eval.Accuracy,
		MeetsThreshold:        meets,
		EvaluationNotes:       eval.Notes,
		IssuesFound:           eval.Issues,
		ImprovementsSuggested: eval.Improvements,
		SampleBefore:          runResult.SampleBefore,
		SampleAfter:           runResult.SampleAfter,
	}

	// The ledger write survives caller cancellation; a run that happened must
	// be recorded.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.iterationRepo.Create(persistCtx, iteration); err != nil {
		return nil, fmt.Errorf("failed to record iteration: %w", err)
	}

	plan.IterationCount = iterationNumber
	plan.GeneratedCode = &genResult.Code
	plan.RollbackCode = &genResult.RollbackCode
	plan.FinalAccuracy = &eval.Accuracy
	plan.EstimatedRowCount = &runResult.RowsAffected

	// An exhausted budget below threshold fails high/critical plans outright.
	// Low/medium plans keep their best code and may still be submitted for
	// human judgment.
	if !meets && !plan.HasBudget() && !bestEffortEligible(plan.RiskLevel) {
		reason := fmt.Sprintf("accuracy %.4f below threshold %.4f after %d iterations",
			eval.Accuracy, plan.AccuracyThreshold, plan.IterationCount)
		plan.Status = models.PlanStatusFailed
		plan.FailureReason = &reason
	}

	if err := s.planRepo.UpdateSummary(persistCtx, plan); err != nil {
		return nil, fmt.Errorf("failed to update plan after iteration: %w", err)
	}

	s.logger.Info("Iteration completed",
		zap.String("plan_id", plan.ID.String()),
		zap.Int("iteration", iterationNumber),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Bool("meets_threshold", meets))

	return iteration, nil
}

// bestEffortEligible reports whether a plan that exhausts its budget below
// threshold may still be submitted for human approval.
func bestEffortEligible(risk models.RiskLevel) bool {
	return risk == models.RiskLow || risk == models.RiskMedium
}

// hasGeneratedCode reports whether any iteration left working candidate code
// on the plan summary.
func hasGeneratedCode(plan *models.TransformationPlan) bool {
	return plan.GeneratedCode != nil && *plan.GeneratedCode != ""
}

// generate calls the code generator with feedback from the latest iteration.
func (s *iterationService) generate(ctx context.Context, plan *models.TransformationPlan, iterationNumber int) (*codegen.GenerationResult, error) {
	req := &codegen.GenerationRequest{
		Kind:            plan.Kind,
		TargetAsset:     plan.TargetAsset,
		TargetColumn:    plan.TargetColumn,
		Description:     plan.Description,
		IterationNumber: iterationNumber,
	}
	if plan.Spec != nil {
		req.Parameters = plan.Spec.Parameters()
	}

	if iterationNumber > 1 {
		latest, err := s.iterationRepo.GetLatest(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			req.PriorCode = latest.Code
			req.PriorIssues = latest.IssuesFound
			req.PriorImprovements = latest.ImprovementsSuggested
		}
	}

	return retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (*codegen.GenerationResult, error) {
		return s.generator.Generate(ctx, req)
	})
}

// runSample executes candidate code against a bounded sample.
func (s *iterationService) runSample(ctx context.Context, plan *models.TransformationPlan, code string) (*sandbox.RunResult, error) {
	req := &sandbox.RunRequest{
		Code:        code,
		TargetAsset: plan.TargetAsset,
		Scope:       sandbox.SampleScope(s.engineCfg.SampleRowLimit),
	}

	return retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (*sandbox.RunResult, error) {
		return s.executor.Run(ctx, req)
	})
}

// recordFailure appends a failed iteration and charges it against the budget.
func (s *iterationService) recordFailure(ctx context.Context, plan *models.TransformationPlan, iterationNumber int, startedAt time.Time, code string, cause error) (*models.Iteration, error) {
	s.logger.Warn("Iteration failed",
		zap.String("plan_id", plan.ID.String()),
		zap.Int("iteration", iterationNumber),
		zap.String("error", logging.SanitizeError(cause)))

	completedAt := s.now()
	msg := cause.Error()

	iteration := &models.Iteration{
		PlanID:          plan.ID,
		IterationNumber: iterationNumber,
		Code:            code,
		StartedAt:       startedAt,
		CompletedAt:     &completedAt,
		SampleSize:      s.engineCfg.SampleRowLimit,
		Success:         false,
		ErrorMessage:    &msg,
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.iterationRepo.Create(persistCtx, iteration); err != nil {
		return nil, fmt.Errorf("failed to record failed iteration: %w", err)
	}

	// Exhausting the budget on an error still leaves low/medium plans with an
	// earlier working attempt submittable for human judgment.
	plan.IterationCount = iterationNumber
	if !plan.HasBudget() && !(bestEffortEligible(plan.RiskLevel) && hasGeneratedCode(plan)) {
		reason := fmt.Sprintf("iteration %d failed and budget is exhausted: %s", iterationNumber, msg)
		plan.Status = models.PlanStatusFailed
		plan.FailureReason = &reason
	}

	if err := s.planRepo.UpdateSummary(persistCtx, plan); err != nil {
		return nil, fmt.Errorf("failed to update plan after failed iteration: %w", err)
	}

	return iteration, cause
}
