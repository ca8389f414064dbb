package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline-data/trustline-engine/pkg/apperrors"
	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/testhelpers"
)

func newTestPlan() *models.TransformationPlan {
	col := "phone"
	return &models.TransformationPlan{
		SourceType:  "issue",
		SourceID:    "issue-42",
		TargetAsset: "public.customers",
		TargetColumn: &col,
		Kind:        models.KindFormatStandardization,
		Description: "Normalize phone numbers to E.164",
		Spec: &models.TransformationSpec{
			Kind: models.KindFormatStandardization,
			Format: &models.FormatSpec{
				TargetFormat: "E.164",
			},
		},
		RiskLevel:         models.RiskLow,
		MaxIterations:     5,
		AccuracyThreshold: 0.95,
		Status:            models.PlanStatusDraft,
		RequestedBy:       "data-steward",
	}
}

func TestPlanRepository_CreateAndGet(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewPlanRepository(engineDB.DB)
	ctx := context.Background()

	plan := newTestPlan()
	require.NoError(t, repo.Create(ctx, plan))
	require.NotEqual(t, uuid.Nil, plan.ID)

	got, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, models.PlanStatusDraft, got.Status)
	assert.Equal(t, models.KindFormatStandardization, got.Kind)
	assert.Equal(t, 0, got.Version)
	require.NotNil(t, got.Spec)
	require.NotNil(t, got.Spec.Format)
	assert.Equal(t, "E.164", got.Spec.Format.TargetFormat)
}

func TestPlanRepository_GetByID_NotFound(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewPlanRepository(engineDB.DB)

	got, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPlanRepository_UpdateSummary_BumpsVersion(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewPlanRepository(engineDB.DB)
	ctx := context.Background()

	plan := newTestPlan()
	require.NoError(t, repo.Create(ctx, plan))

	plan.Status = models.PlanStatusIterating
	plan.IterationCount = 1
	code := "UPDATE public.customers SET phone = normalize(phone)"
	plan.GeneratedCode = &code

	require.NoError(t, repo.UpdateSummary(ctx, plan))
	assert.Equal(t, 1, plan.Version)

	got, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusIterating, got.Status)
	assert.Equal(t, 1, got.IterationCount)
	require.NotNil(t, got.GeneratedCode)
	assert.Equal(t, code, *got.GeneratedCode)
}

func TestPlanRepository_UpdateSummary_StaleVersionConflicts(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewPlanRepository(engineDB.DB)
	ctx := context.Background()

	plan := newTestPlan()
	require.NoError(t, repo.Create(ctx, plan))

	// First writer wins.
	first := *plan
	first.Status = models.PlanStatusIterating
	require.NoError(t, repo.UpdateSummary(ctx, &first))

	// Second writer holds the stale version.
	stale := *plan
	stale.Status = models.PlanStatusCancelled
	err := repo.UpdateSummary(ctx, &stale)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusIterating, got.Status)
}

func TestPlanRepository_UpdateSummary_MissingPlan(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	repo := NewPlanRepository(engineDB.DB)

	plan := newTestPlan()
	plan.ID = uuid.New()
	err := repo.UpdateSummary(context.Background(), plan)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPlanRepository_ListAndCount(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewPlanRepository(engineDB.DB)
	ctx := context.Background()

	first := newTestPlan()
	require.NoError(t, repo.Create(ctx, first))

	second := newTestPlan()
	second.TargetAsset = "public.orders"
	second.Status = models.PlanStatusIterating
	require.NoError(t, repo.Create(ctx, second))

	all, err := repo.List(ctx, PlanFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	iterating := models.PlanStatusIterating
	filtered, err := repo.List(ctx, PlanFilter{Status: &iterating})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)

	asset := "public.orders"
	byAsset, err := repo.List(ctx, PlanFilter{TargetAsset: &asset})
	require.NoError(t, err)
	require.Len(t, byAsset, 1)
	assert.Equal(t, second.ID, byAsset[0].ID)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.PlanStatusDraft])
	assert.Equal(t, 1, counts[models.PlanStatusIterating])
}
