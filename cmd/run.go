package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/model"
	"github.com/ridgepoint-claims/claimflow/internal/pipeline"
)

var (
	runClaimFile       string
	runMeasurementFile string
	runResumeID        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the estimate pipeline for a single claim",
	Long:  "Reads a claim context JSON file, runs all four stages, and prints the completed run as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		in := pipeline.RunInput{ResumeRunID: runResumeID}

		if runResumeID == "" {
			if runClaimFile == "" {
				return eris.New("either --claim or --resume is required")
			}
			clm, err := loadClaimFile(runClaimFile)
			if err != nil {
				return err
			}
			in.Claim = clm
		}

		if runMeasurementFile != "" {
			pdf, err := os.ReadFile(runMeasurementFile)
			if err != nil {
				return eris.Wrap(err, "read measurement document")
			}
			in.MeasurementPDF = pdf
			in.MeasurementPDFName = runMeasurementFile
		}

		run, err := env.Pipeline.Run(ctx, in)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("estimate complete",
			zap.String("run_id", run.ID),
			zap.String("claim_ref", run.ClaimRef),
			zap.Int("scope_groups", len(run.Result.Estimate)),
			zap.Int("line_items", run.Result.LineItemCount()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func loadClaimFile(path string) (model.ClaimContext, error) {
	var clm model.ClaimContext
	data, err := os.ReadFile(path)
	if err != nil {
		return clm, eris.Wrapf(err, "read claim file %s", path)
	}
	if err := json.Unmarshal(data, &clm); err != nil {
		return clm, eris.Wrapf(err, "parse claim file %s", path)
	}
	return clm, nil
}

func init() {
	runCmd.Flags().StringVar(&runClaimFile, "claim", "", "path to claim context JSON file")
	runCmd.Flags().StringVar(&runMeasurementFile, "measurement", "", "path to measurement report PDF")
	runCmd.Flags().StringVar(&runResumeID, "resume", "", "resume a previously persisted run by ID")
	rootCmd.AddCommand(runCmd)
}
