package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/catalog"
	"github.com/ridgepoint-claims/claimflow/internal/config"
	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/ocr"
	"github.com/ridgepoint-claims/claimflow/internal/resilience"
	"github.com/ridgepoint-claims/claimflow/internal/store"
	"github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

// Pipeline orchestrates the four estimate generation stages. Stages are
// stateless functions; the pipeline owns run persistence, retries and
// resume. The claim context is written back after every completed stage.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	ocr     ocr.Extractor
	ai      anthropic.Client
	catalog *catalog.Catalog
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, extractor ocr.Extractor, aiClient anthropic.Client, cat *catalog.Catalog) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		ocr:     extractor,
		ai:      aiClient,
		catalog: cat,
	}
}

// RunInput describes one pipeline invocation. Set ResumeRunID to continue a
// previously persisted run from its last completed stage; otherwise a new
// run is created from Claim.
type RunInput struct {
	Claim              model.ClaimContext
	MeasurementPDF     []byte
	MeasurementPDFName string
	ResumeRunID        string
}

// Run executes the estimate pipeline for a single claim. The returned run
// reflects the final persisted state; on stage failure it carries the
// failed status and the error is also returned.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*model.PipelineRun, error) {
	run, err := p.loadOrCreateRun(ctx, in)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("claim_ref", run.ClaimRef))
	log.Info("pipeline: starting estimate run", zap.Bool("resume", in.ResumeRunID != ""))

	clm := run.Context
	completed := completedStages(run.Stages)

	setStatus := func(status model.RunStatus) {
		run.Status = status
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	fail := func(stage string, stageErr error) (*model.PipelineRun, error) {
		run.Status = model.RunStatusFailed
		run.Error = stageErr.Error()
		if markErr := p.store.MarkRunFailed(ctx, run.ID, stageErr.Error()); markErr != nil {
			log.Warn("pipeline: failed to mark run failed", zap.Error(markErr))
		}
		return run, eris.Wrapf(stageErr, "pipeline: stage %s", stage)
	}

	// trackStage runs one stage with transient-error retries, records its
	// outcome on the run and persists the updated claim context.
	trackStage := func(name string, fn func(ctx context.Context) (model.TokenUsage, error)) error {
		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.MaxAttempts = p.cfg.Pipeline.MaxRetries + 1
		retryCfg.OnRetry = func(attempt int, retryErr error) {
			log.Warn("pipeline: retrying stage after transient error",
				zap.String("stage", name),
				zap.Int("attempt", attempt),
				zap.Error(retryErr),
			)
		}

		start := time.Now()
		usage, stageErr := resilience.DoVal(ctx, retryCfg, fn)
		duration := time.Since(start).Milliseconds()

		sr := model.StageResult{
			Name:       name,
			Duration:   duration,
			TokenUsage: usage,
			Status:     model.StageStatusComplete,
		}
		if stageErr != nil {
			sr.Status = model.StageStatusFailed
			sr.Error = stageErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(stageErr),
			)
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Int("tokens", usage.Total()),
			)
		}
		run.Stages = append(run.Stages, sr)
		run.Stage = name
		run.Context = clm

		if ctxErr := p.store.UpdateRunContext(ctx, run.ID, name, clm, run.Stages); ctxErr != nil {
			log.Warn("pipeline: failed to persist stage context", zap.Error(ctxErr))
		}
		return stageErr
	}

	skipStage := func(name string) {
		run.Stages = append(run.Stages, model.StageResult{Name: name, Status: model.StageStatusSkipped})
		log.Info("pipeline: stage skipped", zap.String("stage", name))
	}

	// Stage 1: measurement parse. Skipped when no document was supplied or
	// a resumed run already carries a parsed report.
	switch {
	case completed[model.StageParseMeasurement] && clm.MeasurementReport != nil:
		skipStage(model.StageParseMeasurement)
	case len(in.MeasurementPDF) == 0:
		skipStage(model.StageParseMeasurement)
	default:
		setStatus(model.RunStatusParsing)
		err := trackStage(model.StageParseMeasurement, func(ctx context.Context) (model.TokenUsage, error) {
			report, usage, stageErr := ParseMeasurement(ctx, in.MeasurementPDF, in.MeasurementPDFName, p.ocr, p.ai, p.cfg.Anthropic)
			if stageErr != nil {
				return deref(usage), stageErr
			}
			clm.MeasurementReport = report
			return deref(usage), nil
		})
		if err != nil {
			return fail(model.StageParseMeasurement, err)
		}
	}

	// Stage 2: photo finding extraction.
	if completed[model.StageExtractFindings] && clm.PhotoFindings != nil {
		skipStage(model.StageExtractFindings)
	} else {
		setStatus(model.RunStatusExtracting)
		err := trackStage(model.StageExtractFindings, func(ctx context.Context) (model.TokenUsage, error) {
			findings, usage, stageErr := ExtractFindings(ctx, clm, p.ai, p.cfg.Anthropic, p.cfg.Pipeline)
			if stageErr != nil {
				return deref(usage), stageErr
			}
			clm.PhotoFindings = findings
			return deref(usage), nil
		})
		if err != nil {
			return fail(model.StageExtractFindings, err)
		}
	}

	// Stage 3: scope classification.
	if completed[model.StageClassifyScope] && clm.ScopeClassification != nil {
		skipStage(model.StageClassifyScope)
	} else {
		setStatus(model.RunStatusClassifying)
		err := trackStage(model.StageClassifyScope, func(ctx context.Context) (model.TokenUsage, error) {
			cls, usage, stageErr := ClassifyScope(ctx, clm, p.ai, p.cfg.Anthropic, p.cfg.Pipeline)
			if stageErr != nil {
				return deref(usage), stageErr
			}
			clm.ScopeClassification = cls
			return deref(usage), nil
		})
		if err != nil {
			return fail(model.StageClassifyScope, err)
		}
	}

	// Stage 4: estimate generation.
	setStatus(model.RunStatusEstimating)
	var result *model.EstimateResult
	err = trackStage(model.StageGenerateEstimate, func(ctx context.Context) (model.TokenUsage, error) {
		est, usage, stageErr := GenerateEstimate(ctx, clm, p.catalog, p.ai, p.cfg.Anthropic)
		if stageErr != nil {
			return deref(usage), stageErr
		}
		result = est
		return deref(usage), nil
	})
	if err != nil {
		return fail(model.StageGenerateEstimate, err)
	}

	run.Result = result
	run.Status = model.RunStatusComplete
	if resErr := p.store.UpdateRunResult(ctx, run.ID, result); resErr != nil {
		return nil, eris.Wrap(resErr, "pipeline: persist result")
	}

	log.Info("pipeline: run complete",
		zap.Int("scope_groups", len(result.Estimate)),
		zap.Int("line_items", result.LineItemCount()),
		zap.Int("total_tokens", totalTokens(run.Stages)),
	)
	return run, nil
}

func (p *Pipeline) loadOrCreateRun(ctx context.Context, in RunInput) (*model.PipelineRun, error) {
	if in.ResumeRunID != "" {
		run, err := p.store.GetRun(ctx, in.ResumeRunID)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load run %s", in.ResumeRunID)
		}
		if run.Status == model.RunStatusComplete {
			return nil, eris.Errorf("pipeline: run %s is already complete", in.ResumeRunID)
		}
		// A resumed run replays from persisted state; drop the terminal
		// failure marker so the remaining stages can execute.
		run.Error = ""
		return run, nil
	}
	run, err := p.store.CreateRun(ctx, in.Claim)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// completedStages indexes previously persisted stage results by name.
func completedStages(stages []model.StageResult) map[string]bool {
	done := make(map[string]bool, len(stages))
	for _, s := range stages {
		if s.Status == model.StageStatusComplete || s.Status == model.StageStatusSkipped {
			done[s.Name] = true
		}
	}
	return done
}

func totalTokens(stages []model.StageResult) int {
	n := 0
	for _, s := range stages {
		n += s.TokenUsage.Total()
	}
	return n
}

func deref(u *model.TokenUsage) model.TokenUsage {
	if u == nil {
		return model.TokenUsage{}
	}
	return *u
}
