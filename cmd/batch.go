package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/pipeline"
)

var (
	batchFile  string
	batchLimit int
)

// batchClaim pairs a claim context with an optional measurement document.
type batchClaim struct {
	Claim          model.ClaimContext `json:"claim"`
	MeasurementPDF string             `json:"measurement_pdf,omitempty"` // file path
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the estimate pipeline for a batch of claims",
	Long:  "Reads a JSON array of claims and processes them concurrently. Individual claim failures are logged and counted; they do not abort the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		claims, err := loadBatchFile(batchFile)
		if err != nil {
			return err
		}

		return processBatch(ctx, claims, batchLimit, cfg.Batch.MaxConcurrentClaims, func(ctx context.Context, in pipeline.RunInput) (*model.PipelineRun, error) {
			return env.Pipeline.Run(ctx, in)
		})
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to JSON array of claims (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of claims to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

func loadBatchFile(path string) ([]batchClaim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch file %s", path)
	}
	var claims []batchClaim
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, eris.Wrapf(err, "parse batch file %s", path)
	}
	return claims, nil
}

// runFunc is the callback signature for executing one claim's pipeline run.
type runFunc func(ctx context.Context, in pipeline.RunInput) (*model.PipelineRun, error)

// processBatch applies limit, then runs claims concurrently with the given
// run function. Returns an error only when every claim failed.
func processBatch(ctx context.Context, claims []batchClaim, limit, concurrency int, run runFunc) error {
	if len(claims) == 0 {
		zap.L().Info("no claims in batch")
		return nil
	}

	if limit > 0 && len(claims) > limit {
		claims = claims[:limit]
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	zap.L().Info("processing batch",
		zap.Int("claims", len(claims)),
		zap.Int("concurrency", concurrency),
	)

	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, bc := range claims {
		g.Go(func() error {
			in := pipeline.RunInput{Claim: bc.Claim}
			if bc.MeasurementPDF != "" {
				pdf, err := os.ReadFile(bc.MeasurementPDF)
				if err != nil {
					failed.Add(1)
					zap.L().Error("batch claim skipped, measurement unreadable",
						zap.String("claim_ref", bc.Claim.ClaimRef),
						zap.Error(err),
					)
					return nil
				}
				in.MeasurementPDF = pdf
				in.MeasurementPDFName = bc.MeasurementPDF
			}

			result, err := run(gctx, in)
			if err != nil {
				failed.Add(1)
				zap.L().Error("batch claim failed",
					zap.String("claim_ref", bc.Claim.ClaimRef),
					zap.Error(err),
				)
				return nil
			}

			succeeded.Add(1)
			zap.L().Info("batch claim complete",
				zap.String("claim_ref", bc.Claim.ClaimRef),
				zap.String("run_id", result.ID),
				zap.Int("line_items", result.Result.LineItemCount()),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if succeeded.Load() == 0 && failed.Load() > 0 {
		return eris.Errorf("all %d claims in batch failed", failed.Load())
	}
	return nil
}
