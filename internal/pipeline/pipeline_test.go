package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ridgepoint-claims/claimflow/internal/catalog"
	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/resilience"
)

func testConfig() *config.Config {
	return &config.Config{
		Anthropic: testAICfg,
		Pipeline:  testPipeCfg,
	}
}

func newTestPipeline(t *testing.T, st *mockStore, extractor *mockExtractor, aiClient *mockAnthropicClient) *Pipeline {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return New(testConfig(), st, extractor, aiClient, cat)
}

// permissiveStore wires the store mock to accept all persistence calls.
func permissiveStore(st *mockStore) {
	st.On("UpdateRunStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateRunContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateRunResult", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("MarkRunFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

const classificationJSON = `{"confidence":{"interior":0.9,"roof":0.1,"siding":0.0,"gutters":0.0,"structural":0.0,"exterior":0.0},"missing_info":[]}`

const interiorEstimateJSON = `{"estimate":[{"scope":"interior","line_items":[
	{"line_code":"DRY-220","description":"Replace ceiling drywall","unit":"SF","qty":180,"qty_basis":"allowance","assumptions":"room size estimated from photos"}
]}],"missing_info_to_finalize":[],"questions_for_user":[]}`

const interiorFindingsJSON = `[{"area":"Kitchen ceiling","scope":"interior","damage":"water staining","severity":"moderate","recommended_action":"replace","confidence":0.9}]`

func TestPipelineRun_FullHappyPath(t *testing.T) {
	ctx := context.Background()

	claim := model.ClaimContext{
		ClaimRef:    "CLM-2024-001",
		Description: "Water damage to kitchen ceiling",
		LossCause:   "water",
		Photos:      []model.PhotoRef{{ID: "p1", Label: "kitchen ceiling"}},
	}

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, claim).
		Return(&model.PipelineRun{ID: "run-1", ClaimRef: claim.ClaimRef, Status: model.RunStatusQueued, Context: claim}, nil)
	permissiveStore(st)

	extractor := &mockExtractor{}
	extractor.On("ExtractText", mock.Anything, mock.Anything).Return("measurement text 180 sf kitchen", nil)

	aiClient := &mockAnthropicClient{}
	// Stage 1: measurement parse.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"source":"other","sections":{"interior":{"total_floor_sf":180,"rooms":[]}},"notes":""}`, 500, 200), nil).Once()
	// Stage 2: findings.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorFindingsJSON, 400, 150), nil).Once()
	// Stage 3: classification.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(classificationJSON, 300, 100), nil).Once()
	// Stage 4: estimate.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorEstimateJSON, 1500, 600), nil).Once()

	p := newTestPipeline(t, st, extractor, aiClient)
	run, err := p.Run(ctx, RunInput{Claim: claim, MeasurementPDF: []byte("pdf"), MeasurementPDFName: "measure.pdf"})

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 1, run.Result.LineItemCount())
	require.Len(t, run.Stages, 4)
	for _, s := range run.Stages {
		assert.Equal(t, model.StageStatusComplete, s.Status)
	}
	assert.NotNil(t, run.Context.MeasurementReport)
	assert.Len(t, run.Context.PhotoFindings, 1)
	assert.Equal(t, []model.Scope{model.ScopeInterior}, run.Context.ScopeClassification.PrimaryScopes)

	st.AssertCalled(t, "UpdateRunResult", mock.Anything, "run-1", mock.Anything)
	aiClient.AssertExpectations(t)
}

func TestPipelineRun_SkipsParseWithoutDocument(t *testing.T) {
	ctx := context.Background()

	claim := model.ClaimContext{
		Description: "Water damage to kitchen ceiling",
		Photos:      []model.PhotoRef{{ID: "p1"}},
	}

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, claim).
		Return(&model.PipelineRun{ID: "run-2", Status: model.RunStatusQueued, Context: claim}, nil)
	permissiveStore(st)

	extractor := &mockExtractor{}

	aiClient := &mockAnthropicClient{}
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorFindingsJSON, 400, 150), nil).Once()
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(classificationJSON, 300, 100), nil).Once()
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorEstimateJSON, 1500, 600), nil).Once()

	p := newTestPipeline(t, st, extractor, aiClient)
	run, err := p.Run(ctx, RunInput{Claim: claim})

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.Len(t, run.Stages, 4)
	assert.Equal(t, model.StageStatusSkipped, run.Stages[0].Status)
	assert.Nil(t, run.Context.MeasurementReport)
	extractor.AssertNotCalled(t, "ExtractText", mock.Anything, mock.Anything)
}

func TestPipelineRun_StageFailure_MarksRunFailed(t *testing.T) {
	ctx := context.Background()

	claim := model.ClaimContext{
		Description: "Wind damage",
		Photos:      []model.PhotoRef{{ID: "p1"}},
	}

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, claim).
		Return(&model.PipelineRun{ID: "run-3", Status: model.RunStatusQueued, Context: claim}, nil)
	permissiveStore(st)

	aiClient := &mockAnthropicClient{}
	// Findings stage returns prose: malformed, not retriable.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("I see some damage in the photos", 400, 50), nil).Once()

	p := newTestPipeline(t, st, &mockExtractor{}, aiClient)
	run, err := p.Run(ctx, RunInput{Claim: claim})

	require.Error(t, err)
	assert.True(t, IsMalformedOutput(err))
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	st.AssertCalled(t, "MarkRunFailed", mock.Anything, "run-3", mock.Anything)
	aiClient.AssertExpectations(t)
}

func TestPipelineRun_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()

	claim := model.ClaimContext{
		Description: "Water damage",
		Photos:      []model.PhotoRef{{ID: "p1"}},
	}

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, claim).
		Return(&model.PipelineRun{ID: "run-4", Status: model.RunStatusQueued, Context: claim}, nil)
	permissiveStore(st)

	aiClient := &mockAnthropicClient{}
	// Findings: overloaded once, then succeeds.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, resilience.NewTransientError(assert.AnError, 529)).Once()
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorFindingsJSON, 400, 150), nil).Once()
	// Classification and estimate.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(classificationJSON, 300, 100), nil).Once()
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorEstimateJSON, 1500, 600), nil).Once()

	cfg := testConfig()
	cfg.Pipeline.MaxRetries = 2
	cat, err := catalog.Default()
	require.NoError(t, err)
	p := New(cfg, st, &mockExtractor{}, aiClient, cat)

	run, runErr := p.Run(ctx, RunInput{Claim: claim})

	require.NoError(t, runErr)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	aiClient.AssertExpectations(t)
}

func TestPipelineRun_Resume_SkipsCompletedStages(t *testing.T) {
	ctx := context.Background()

	clm := model.ClaimContext{
		Description: "Water damage to kitchen ceiling",
		Photos:      []model.PhotoRef{{ID: "p1"}},
		PhotoFindings: []model.DamageFinding{
			{Area: "Kitchen ceiling", Scope: model.ScopeInterior, Damage: "water staining", Severity: model.SeverityModerate, RecommendedAction: model.ActionReplace, Confidence: 0.9},
		},
		ScopeClassification: &model.ScopeClassification{
			Confidence: map[model.Scope]float64{
				model.ScopeInterior: 0.9, model.ScopeRoof: 0, model.ScopeSiding: 0,
				model.ScopeGutters: 0, model.ScopeStructural: 0, model.ScopeExterior: 0,
			},
			PrimaryScopes: []model.Scope{model.ScopeInterior},
			MissingInfo:   []string{},
		},
	}

	// Persisted run failed during estimate generation; stages 1-3 are done.
	persisted := &model.PipelineRun{
		ID:      "run-5",
		Status:  model.RunStatusFailed,
		Stage:   model.StageClassifyScope,
		Context: clm,
		Error:   "upstream overloaded",
		Stages: []model.StageResult{
			{Name: model.StageParseMeasurement, Status: model.StageStatusSkipped},
			{Name: model.StageExtractFindings, Status: model.StageStatusComplete},
			{Name: model.StageClassifyScope, Status: model.StageStatusComplete},
			{Name: model.StageGenerateEstimate, Status: model.StageStatusFailed, Error: "upstream overloaded"},
		},
	}

	st := &mockStore{}
	st.On("GetRun", mock.Anything, "run-5").Return(persisted, nil)
	permissiveStore(st)

	aiClient := &mockAnthropicClient{}
	// Only the estimate stage should run.
	aiClient.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(interiorEstimateJSON, 1500, 600), nil).Once()

	p := newTestPipeline(t, st, &mockExtractor{}, aiClient)
	run, err := p.Run(ctx, RunInput{ResumeRunID: "run-5"})

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Empty(t, run.Error)
	aiClient.AssertExpectations(t)
	aiClient.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestPipelineRun_Resume_CompleteRunRejected(t *testing.T) {
	ctx := context.Background()

	st := &mockStore{}
	st.On("GetRun", mock.Anything, "run-6").
		Return(&model.PipelineRun{ID: "run-6", Status: model.RunStatusComplete}, nil)

	p := newTestPipeline(t, st, &mockExtractor{}, &mockAnthropicClient{})
	_, err := p.Run(ctx, RunInput{ResumeRunID: "run-6"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already complete")
}
