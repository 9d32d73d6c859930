package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/runner"
	"github.com/sells-group/quality-engine/pkg/agents"
)

var (
	runProjectID      string
	runIterationsPath string
	runMaxIterations  int
	runEventID        string
	runTags           []string
	runRemote         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a bounded evaluation loop for a project",
	Long:  "Evaluates the project's extraction metrics round by round until the quality bar passes or the iteration cap is reached. Metrics come from a JSON file of per-round bundles, or from the extraction-agent service with --remote.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := runner.RunOptions{
			EventID: runEventID,
			Tags:    runTags,
		}

		var outcome *runner.RunOutcome
		if runRemote {
			maxIterations := runMaxIterations
			if maxIterations <= 0 {
				maxIterations = cfg.Evaluation.MaxIterations
			}
			provider := agents.Provider(initAgents(), runProjectID)
			outcome, err = env.controller.Run(ctx, runProjectID, provider, maxIterations, opts)
		} else {
			if runIterationsPath == "" {
				return eris.New("--iterations is required unless --remote is set")
			}
			data, readErr := os.ReadFile(runIterationsPath)
			if readErr != nil {
				return eris.Wrapf(readErr, "read iterations file %s", runIterationsPath)
			}
			var bundles []model.MetricsBundle
			if err := json.Unmarshal(data, &bundles); err != nil {
				return eris.Wrapf(err, "parse iterations file %s", runIterationsPath)
			}
			outcome, err = env.controller.RunIterations(ctx, runProjectID, bundles, runMaxIterations, opts)
		}
		if err != nil {
			return eris.Wrap(err, "evaluation run")
		}

		zap.L().Info("evaluation run complete",
			zap.String("project_id", outcome.ProjectID),
			zap.String("execution_id", outcome.ExecutionID),
			zap.Bool("passed", outcome.Passed),
			zap.Int("iterations_used", outcome.IterationsUsed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func init() {
	runCmd.Flags().StringVar(&runProjectID, "project", "", "project id (required)")
	runCmd.Flags().StringVar(&runIterationsPath, "iterations", "", "path to a JSON array of per-round metric bundles")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "iteration cap (default: number of bundles, or evaluation.max_iterations with --remote)")
	runCmd.Flags().StringVar(&runEventID, "event", "", "event id to stamp on the execution record")
	runCmd.Flags().StringSliceVar(&runTags, "tag", nil, "tags to stamp on the execution record")
	runCmd.Flags().BoolVar(&runRemote, "remote", false, "fetch metrics from the extraction-agent service instead of a file")
	_ = runCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(runCmd)
}
