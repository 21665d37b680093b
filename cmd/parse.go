package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/ocr"
	"github.com/ridgepoint-claims/claimflow/internal/pipeline"
	anthropicpkg "github.com/ridgepoint-claims/claimflow/pkg/anthropic"
)

var parseCmd = &cobra.Command{
	Use:   "parse <measurement.pdf>",
	Short: "Parse a measurement report PDF in isolation",
	Long:  "Runs only the measurement parse stage and prints the normalized report as JSON. Useful for vetting vendor documents before a full run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(); err != nil {
			return err
		}

		pdf, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read measurement document")
		}

		extractor, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}
		aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key,
			anthropicpkg.WithRateLimit(cfg.Anthropic.RequestsPerSec, cfg.Anthropic.Burst),
		)

		report, usage, err := pipeline.ParseMeasurement(ctx, pdf, args[0], extractor, aiClient, cfg.Anthropic)
		if err != nil {
			return eris.Wrap(err, "parse measurement")
		}

		zap.L().Info("measurement parsed",
			zap.String("source", string(report.Source)),
			zap.Int("tokens", usage.Total()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
