package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect evaluation run history",
	Long:  "Commands for listing, viewing, summarizing, and cancelling evaluation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		project, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ExecutionFilter{
			Status:    model.ExecutionStatus(status),
			ProjectID: project,
			Limit:     limit,
		}

		recs, err := env.store.ListExecutions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatExecutionsList(os.Stdout, recs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.store.GetExecution(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.ExecutionFilter{}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}
		filter.Limit = 10000 // high limit for stats

		recs, err := env.store.ListExecutions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeExecutionStats(recs)
		formatExecutionStats(os.Stdout, stats)
		return nil
	},
}

// -- runs cancel --

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Cancel an in-flight run",
	Long:  "Marks the execution cancelled. A loop in progress observes the change before its next round; terminal runs cannot be cancelled.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.store.GetExecution(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs cancel")
		}
		if err := rec.Cancel(); err != nil {
			return eris.Wrap(err, "runs cancel")
		}
		if err := env.store.UpdateExecution(ctx, rec); err != nil {
			return eris.Wrap(err, "runs cancel: persist")
		}

		fmt.Printf("Execution %s cancelled.\n", rec.ID)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by execution status (pending, running, evaluating, iterating, completed, failed, cancelled)")
	runsListCmd.Flags().String("project", "", "filter by project id")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsCancelCmd)
	rootCmd.AddCommand(runsCmd)
}

// executionStats holds aggregate statistics computed from a set of runs.
type executionStats struct {
	Total      int
	Passed     int
	FailedBar  int
	Errored    int
	Cancelled  int
	InFlight   int
	AvgIters   float64
	AvgDurSecs float64
}

// computeExecutionStats computes aggregate statistics from a list of runs.
func computeExecutionStats(recs []model.ExecutionRecord) executionStats {
	var s executionStats
	s.Total = len(recs)

	var totalIters, iterCount int
	var totalDur float64
	var durCount int

	for _, r := range recs {
		switch r.Status {
		case model.ExecutionStatusCompleted:
			s.Passed++
		case model.ExecutionStatusFailed:
			if r.FinalDecision == "failed_quality_threshold" {
				s.FailedBar++
			} else {
				s.Errored++
			}
		case model.ExecutionStatusCancelled:
			s.Cancelled++
		default:
			s.InFlight++
		}

		if len(r.Iterations) > 0 {
			totalIters += len(r.Iterations)
			iterCount++
		}
		if r.DurationSeconds > 0 {
			totalDur += r.DurationSeconds
			durCount++
		}
	}

	if iterCount > 0 {
		s.AvgIters = float64(totalIters) / float64(iterCount)
	}
	if durCount > 0 {
		s.AvgDurSecs = totalDur / float64(durCount)
	}
	return s
}

// formatExecutionsList writes a tabular list of runs to w.
func formatExecutionsList(out io.Writer, recs []model.ExecutionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tITER\tSCORE\tDECISION\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t----\t-----\t--------\t-------")

	for _, r := range recs {
		score := ""
		if r.FinalScore != nil {
			score = fmt.Sprintf("%.2f", *r.FinalScore)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			truncateID(r.ProjectID),
			r.Status,
			r.CurrentIteration,
			r.MaxIterations,
			score,
			r.FinalDecision,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatExecutionStats writes aggregate stats to w.
func formatExecutionStats(out io.Writer, s executionStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Passed:\t%d\n", s.Passed)
	_, _ = fmt.Fprintf(w, "Failed quality bar:\t%d\n", s.FailedBar)
	_, _ = fmt.Fprintf(w, "Errored:\t%d\n", s.Errored)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.Cancelled)
	_, _ = fmt.Fprintf(w, "In flight:\t%d\n", s.InFlight)
	if s.AvgIters > 0 {
		_, _ = fmt.Fprintf(w, "Avg iterations:\t%.1f\n", s.AvgIters)
	}
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
