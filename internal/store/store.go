package store

import (
	"context"

	"github.com/ridgepoint-claims/claimflow/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	ClaimRef string          `json:"claim_ref,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for estimate pipeline runs. The
// claim context is written back after every completed stage so an
// interrupted run can resume from its last durable state.
type Store interface {
	CreateRun(ctx context.Context, clm model.ClaimContext) (*model.PipelineRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunContext(ctx context.Context, runID string, stage string, clm model.ClaimContext, stages []model.StageResult) error
	UpdateRunResult(ctx context.Context, runID string, result *model.EstimateResult) error
	MarkRunFailed(ctx context.Context, runID string, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	Migrate(ctx context.Context) error
	Close() error
}
