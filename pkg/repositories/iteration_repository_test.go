package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustline-data/trustline-engine/pkg/models"
	"github.com/trustline-data/trustline-engine/pkg/testhelpers"
)

func TestIterationRepository_AppendAndList(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewIterationRepository(engineDB.DB)
	ctx := context.Background()

	plan := createPlanForApprovals(t, engineDB)

	accuracy := 0.8
	first := &models.Iteration{
		PlanID:          plan.ID,
		IterationNumber: 1,
		Code:            "UPDATE t SET x = 1",
		StartedAt:       time.Now(),
		SampleSize:      100,
		Success:         true,
		Accuracy:        &accuracy,
		IssuesFound:     []string{"misses null rows"},
		SampleBefore:    []map[string]any{{"x": nil}},
		SampleAfter:     []map[string]any{{"x": float64(1)}},
	}
	require.NoError(t, repo.Create(ctx, first))
	require.NotEqual(t, uuid.Nil, first.ID)

	better := 0.97
	second := &models.Iteration{
		PlanID:          plan.ID,
		IterationNumber: 2,
		Code:            "UPDATE t SET x = COALESCE(x, 1)",
		StartedAt:       time.Now(),
		SampleSize:      100,
		Success:         true,
		Accuracy:        &better,
		MeetsThreshold:  true,
	}
	require.NoError(t, repo.Create(ctx, second))

	history, err := repo.ListByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].IterationNumber)
	assert.Equal(t, 2, history[1].IterationNumber)
	assert.Equal(t, []string{"misses null rows"}, history[0].IssuesFound)
	require.Len(t, history[0].SampleAfter, 1)

	latest, err := repo.GetLatest(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.IterationNumber)
	assert.True(t, latest.MeetsThreshold)
}

func TestIterationRepository_DuplicateNumberRejected(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewIterationRepository(engineDB.DB)
	ctx := context.Background()

	plan := createPlanForApprovals(t, engineDB)

	iter := &models.Iteration{PlanID: plan.ID, IterationNumber: 1, Code: "a", StartedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, iter))

	dup := &models.Iteration{PlanID: plan.ID, IterationNumber: 1, Code: "b", StartedAt: time.Now()}
	require.Error(t, repo.Create(ctx, dup))
}

func TestIterationRepository_GetLatest_Empty(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	repo := NewIterationRepository(engineDB.DB)

	plan := createPlanForApprovals(t, engineDB)

	latest, err := repo.GetLatest(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestExecutionRepository_CreateFinalizeAndLineage(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.TruncateAll(t)
	execRepo := NewExecutionRepository(engineDB.DB)
	lineageRepo := NewLineageRepository(engineDB.DB)
	ctx := context.Background()

	plan := createPlanForApprovals(t, engineDB)

	log := &models.ExecutionLog{
		PlanID:     plan.ID,
		StartedAt:  time.Now(),
		Status:     models.ExecutionStatusFailed, // provisional until finalized
		ExecutedBy: "engine",
	}
	require.NoError(t, execRepo.Create(ctx, log))

	snapshot := "snap-7"
	completed := time.Now()
	log.SnapshotID = &snapshot
	log.CompletedAt = &completed
	log.RowsAffected = 1000
	log.RowsSucceeded = 1000
	log.Status = models.ExecutionStatusSuccess
	log.LineageRecorded = true
	require.NoError(t, execRepo.Finalize(ctx, log))

	got, err := execRepo.GetByID(ctx, log.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
	assert.Equal(t, int64(1000), got.RowsSucceeded)
	assert.True(t, got.LineageRecorded)

	record := &models.LineageRecord{
		PlanID:      plan.ID,
		ExecutionID: log.ID,
		Asset:       plan.TargetAsset,
		Column:      plan.TargetColumn,
		Kind:        plan.Kind,
		Summary:     "normalized 1000 phone numbers",
	}
	require.NoError(t, lineageRepo.Create(ctx, record))

	byAsset, err := lineageRepo.ListByAsset(ctx, plan.TargetAsset)
	require.NoError(t, err)
	require.Len(t, byAsset, 1)
	assert.Equal(t, log.ID, byAsset[0].ExecutionID)

	byPlan, err := lineageRepo.ListByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, byPlan, 1)
	assert.Equal(t, "normalized 1000 phone numbers", byPlan[0].Summary)
}
