package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgepoint-claims/claimflow/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testClaim() model.ClaimContext {
	return model.ClaimContext{
		ClaimRef:    "CLM-2024-001",
		Description: "Water damage to kitchen ceiling from burst supply line",
		LossCause:   "water",
		Photos: []model.PhotoRef{
			{ID: "p1", Label: "kitchen ceiling"},
		},
	}
}

func TestSQLite_CreateRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.Equal(t, "CLM-2024-001", run.ClaimRef)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, "CLM-2024-001", fetched.ClaimRef)
	assert.Equal(t, "water", fetched.Context.LossCause)
	require.Len(t, fetched.Context.Photos, 1)
	assert.Equal(t, "p1", fetched.Context.Photos[0].ID)
}

func TestSQLite_GetRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)

	err = st.UpdateRunStatus(ctx, run.ID, model.RunStatusClassifying)
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusClassifying, fetched.Status)
}

func TestSQLite_UpdateRunStatus_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "missing", model.RunStatusParsing)
	assert.Error(t, err)
}

func TestSQLite_UpdateRunContext_PersistsStageOutput(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)

	clm := run.Context
	clm.PhotoFindings = []model.DamageFinding{
		{Area: "Kitchen ceiling", Scope: model.ScopeInterior, Damage: "water staining", Severity: model.SeverityModerate, RecommendedAction: model.ActionReplace, Confidence: 0.9},
	}
	stages := []model.StageResult{
		{Name: model.StageExtractFindings, Status: model.StageStatusComplete, Duration: 1200, TokenUsage: model.TokenUsage{InputTokens: 500, OutputTokens: 200}},
	}

	err = st.UpdateRunContext(ctx, run.ID, model.StageExtractFindings, clm, stages)
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageExtractFindings, fetched.Stage)
	require.Len(t, fetched.Context.PhotoFindings, 1)
	assert.Equal(t, "Kitchen ceiling", fetched.Context.PhotoFindings[0].Area)
	require.Len(t, fetched.Stages, 1)
	assert.Equal(t, model.StageStatusComplete, fetched.Stages[0].Status)
	assert.Equal(t, 500, fetched.Stages[0].TokenUsage.InputTokens)
}

func TestSQLite_UpdateRunResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)

	result := &model.EstimateResult{
		Estimate: []model.EstimateScopeGroup{
			{Scope: model.ScopeInterior, LineItems: []model.EstimateLineItem{
				{Description: "Replace drywall ceiling", Unit: "SF", Qty: 120, QtyBasis: model.QtyBasisMeasured},
			}},
		},
		MissingInfoToFinalize: []string{"ceiling height"},
		QuestionsForUser:      []string{},
	}
	err = st.UpdateRunResult(ctx, run.ID, result)
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, fetched.Status)
	require.NotNil(t, fetched.Result)
	assert.Equal(t, 1, fetched.Result.LineItemCount())
	assert.Equal(t, []string{"ceiling height"}, fetched.Result.MissingInfoToFinalize)
}

func TestSQLite_MarkRunFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)

	err = st.MarkRunFailed(ctx, run.ID, "generation output failed schema validation")
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, fetched.Status)
	assert.Equal(t, "generation output failed schema validation", fetched.Error)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)
	c2 := testClaim()
	c2.ClaimRef = "CLM-2024-002"
	_, err = st.CreateRun(ctx, c2)
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_ListRuns_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)
	err = st.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete)
	require.NoError(t, err)

	_, err = st.CreateRun(ctx, testClaim())
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLite_ListRuns_FilterByClaimRef(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx, testClaim())
	require.NoError(t, err)
	c2 := testClaim()
	c2.ClaimRef = "CLM-2024-002"
	_, err = st.CreateRun(ctx, c2)
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{ClaimRef: "CLM-2024-002", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "CLM-2024-002", runs[0].ClaimRef)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
