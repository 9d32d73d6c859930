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

	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/runner"
)

var (
	batchManifestPath string
	batchLimit        int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run evaluation loops for many projects from a manifest",
	Long:  "Reads a JSON manifest of projects with their per-round metric bundles and runs each project's evaluation loop concurrently. Individual failures are recorded and do not abort the batch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := loadBatchManifest(batchManifestPath)
		if err != nil {
			return err
		}

		return processBatch(ctx, items, batchLimit, cfg.Batch.MaxConcurrentProjects, func(ctx context.Context, item batchItem) (*runner.RunOutcome, error) {
			return env.controller.RunIterations(ctx, item.ProjectID, item.Metrics, item.MaxIterations, runner.RunOptions{
				EventID: item.EventID,
				Tags:    item.Tags,
			})
		})
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifestPath, "manifest", "", "path to the batch manifest JSON file (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of manifest entries to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}

// batchItem is one manifest entry: a project plus the metric bundles for its
// evaluation rounds.
type batchItem struct {
	ProjectID     string                `json:"project_id"`
	EventID       string                `json:"event_id,omitempty"`
	MaxIterations int                   `json:"max_iterations,omitempty"`
	Tags          []string              `json:"tags,omitempty"`
	Metrics       []model.MetricsBundle `json:"metrics"`
}

func loadBatchManifest(path string) ([]batchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch manifest %s", path)
	}
	var items []batchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrapf(err, "parse batch manifest %s", path)
	}
	for i, item := range items {
		if item.ProjectID == "" {
			return nil, eris.Errorf("batch manifest entry %d: project_id is required", i)
		}
	}
	return items, nil
}

// runFunc is the callback signature for running one project's evaluation loop.
type runFunc func(ctx context.Context, item batchItem) (*runner.RunOutcome, error)

// processBatch applies limit, then runs manifest entries concurrently with
// the given run function. Individual failures never abort the batch.
func processBatch(ctx context.Context, items []batchItem, limit, concurrency int, run runFunc) error {
	if len(items) == 0 {
		zap.L().Info("batch manifest is empty")
		return nil
	}

	// Apply limit
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("projects", len(items)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var passed, rejected, errored atomic.Int64

	for _, item := range items {
		g.Go(func() error {
			log := zap.L().With(zap.String("project_id", item.ProjectID))

			outcome, err := run(gctx, item)
			if err != nil {
				errored.Add(1)
				log.Error("evaluation run failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			if outcome.Passed {
				passed.Add(1)
			} else {
				rejected.Add(1)
			}
			log.Info("evaluation run complete",
				zap.String("execution_id", outcome.ExecutionID),
				zap.Bool("passed", outcome.Passed),
				zap.Int("iterations_used", outcome.IterationsUsed),
				zap.Float64("final_score", outcome.Scorecard.OverallScore),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("passed", passed.Load()),
		zap.Int64("rejected", rejected.Load()),
		zap.Int64("errored", errored.Load()),
	)
	return nil
}
