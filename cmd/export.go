package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgepoint-claims/claimflow/internal/export"
	"github.com/ridgepoint-claims/claimflow/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <run-id> [out.xlsx]",
	Short: "Export a completed run's estimate to XLSX",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load run")
		}
		if run.Status != model.RunStatusComplete {
			return eris.Errorf("run %s is %s, only complete runs can be exported", run.ID, run.Status)
		}

		out := exportOut
		if len(args) > 1 {
			out = args[1]
		}
		if out == "" {
			out = "estimate-" + truncateID(run.ID) + ".xlsx"
		}

		if err := export.WriteEstimate(run, out); err != nil {
			return err
		}

		zap.L().Info("estimate exported",
			zap.String("run_id", run.ID),
			zap.String("path", out),
			zap.Int("line_items", run.Result.LineItemCount()),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default estimate-<run-id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
