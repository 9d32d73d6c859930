package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quality-engine/internal/eval"
	"github.com/sells-group/quality-engine/internal/model"
)

var scoreMetricsPath string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a metrics bundle once and print the scorecard",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(scoreMetricsPath)
		if err != nil {
			return eris.Wrapf(err, "read metrics file %s", scoreMetricsPath)
		}

		var bundle model.MetricsBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return eris.Wrapf(err, "parse metrics file %s", scoreMetricsPath)
		}

		result := eval.New(cfg.Evaluation.Thresholds).Evaluate(bundle)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreMetricsPath, "metrics", "", "path to a metrics bundle JSON file (required)")
	_ = scoreCmd.MarkFlagRequired("metrics")
	rootCmd.AddCommand(scoreCmd)
}
