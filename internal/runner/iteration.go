package runner

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quality-engine/internal/eval"
	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/store"
)

// MetricsProvider supplies one round's raw metrics. Round 0 is the initial
// extraction; later rounds are re-extractions informed by the previous
// round's suggestions, passed as priorSuggestions (nil on round 0). The call
// may block and may fail; any timeout is the caller's responsibility via ctx.
type MetricsProvider func(ctx context.Context, iteration int, priorSuggestions []string) (model.MetricsBundle, error)

// RunOptions carries optional metadata stamped onto the execution record.
type RunOptions struct {
	EventID       string
	Configuration string
	Tags          []string
}

// RunOutcome summarizes one completed (or aborted) evaluation run.
type RunOutcome struct {
	ProjectID      string                `json:"project_id"`
	ExecutionID    string                `json:"execution_id"`
	Passed         bool                  `json:"passed"`
	IterationsUsed int                   `json:"iterations_used"`
	Status         model.ExecutionStatus `json:"status"`
	Scorecard      model.ScoreBreakdown  `json:"scorecard"`
	Suggestions    []string              `json:"suggestions"`
}

// Controller drives the bounded extract-evaluate-retry loop for one project
// at a time and appends every round to a persisted execution record.
type Controller struct {
	executor   *ProjectExecutor
	executions store.ExecutionStore
	projects   store.ProjectStore
	locks      *ProjectLocks
	thresholds eval.Thresholds
}

// NewController creates a Controller. All runs issued through one Controller
// share its per-project locks.
func NewController(executor *ProjectExecutor, executions store.ExecutionStore, projects store.ProjectStore, thresholds eval.Thresholds) *Controller {
	return &Controller{
		executor:   executor,
		executions: executions,
		projects:   projects,
		locks:      NewProjectLocks(),
		thresholds: thresholds,
	}
}

// RunIterations runs the loop over a caller-supplied list of metric bundles:
// round i evaluates bundles[i], capped at the last element when maxIterations
// exceeds the list. An empty list is a fatal configuration error raised
// before any round executes. maxIterations <= 0 defaults to len(bundles).
func (c *Controller) RunIterations(ctx context.Context, projectID string, bundles []model.MetricsBundle, maxIterations int, opts RunOptions) (*RunOutcome, error) {
	if len(bundles) == 0 {
		return nil, eris.New("runner: no iteration metrics supplied")
	}
	if maxIterations <= 0 {
		maxIterations = len(bundles)
	}

	provider := func(_ context.Context, i int, _ []string) (model.MetricsBundle, error) {
		if i >= len(bundles) {
			i = len(bundles) - 1
		}
		return bundles[i], nil
	}
	return c.Run(ctx, projectID, provider, maxIterations, opts)
}

// Run executes up to maxIterations evaluation rounds for the project,
// stopping at the first passing round. Each round obtains fresh metrics from
// the provider, evaluates them, updates the project status, and appends a
// snapshot to the execution record. The record is persisted after every
// transition and finalized exactly once.
func (c *Controller) Run(ctx context.Context, projectID string, provider MetricsProvider, maxIterations int, opts RunOptions) (*RunOutcome, error) {
	if provider == nil {
		return nil, eris.New("runner: nil metrics provider")
	}
	if maxIterations <= 0 {
		return nil, eris.Errorf("runner: max iterations must be positive, got %d", maxIterations)
	}

	release := c.locks.Lock(projectID)
	defer release()

	project, err := c.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "runner: load project %s", projectID)
	}

	// Store writes run on a detached context: a caller cancel is observed
	// between rounds, never by aborting a persist in flight, and the record
	// always reaches a durable terminal state.
	persistCtx := context.WithoutCancel(ctx)

	rec := model.NewExecutionRecord(projectID, opts.EventID, c.thresholds.MinOverall, maxIterations)
	rec.Configuration = opts.Configuration
	rec.Tags = opts.Tags
	if err := c.executions.CreateExecution(persistCtx, rec); err != nil {
		return nil, eris.Wrap(err, "runner: create execution record")
	}

	if err := c.step(persistCtx, rec, rec.MarkStarted); err != nil {
		return nil, err
	}

	zap.L().Info("runner: evaluation run started",
		zap.String("project_id", projectID),
		zap.String("execution_id", rec.ID),
		zap.Int("max_iterations", maxIterations),
	)

	outcome := &RunOutcome{ProjectID: projectID, ExecutionID: rec.ID}

	for i := 0; i < maxIterations; i++ {
		if stop, err := c.checkCancelled(ctx, rec); stop || err != nil {
			if err != nil {
				return nil, err
			}
			outcome.Status = model.ExecutionStatusCancelled
			outcome.IterationsUsed = len(rec.Iterations)
			return outcome, nil
		}

		if err := c.step(persistCtx, rec, rec.MarkEvaluating); err != nil {
			return nil, err
		}

		bundle, err := provider(ctx, i, outcome.Suggestions)
		if err != nil {
			c.fail(persistCtx, rec, err)
			return nil, eris.Wrapf(err, "runner: metrics provider failed at iteration %d", i)
		}
		annotateArtifacts(rec, bundle)

		round, execErr := c.executor.EvaluateOnce(persistCtx, project, bundle, i, maxIterations)
		outcome.Scorecard = round.Result.Scorecard
		outcome.Suggestions = round.Result.Suggestions
		outcome.Passed = round.Result.Passed
		outcome.IterationsUsed = i + 1

		if execErr != nil {
			// The evaluation result is complete; only the durable commit
			// failed. Surface the error but hand the caller the outcome.
			c.fail(persistCtx, rec, execErr)
			outcome.Status = rec.Status
			return outcome, execErr
		}

		snap := model.IterationSnapshot{
			Iteration:   i + 1,
			Scorecard:   round.Result.Scorecard,
			Passed:      round.Result.Passed,
			Suggestions: round.Result.Suggestions,
		}
		if err := c.step(persistCtx, rec, func() error { return rec.AddIterationResult(snap) }); err != nil {
			return nil, err
		}

		if round.Result.Passed || i+1 == maxIterations {
			final := round.Result
			if err := c.step(persistCtx, rec, func() error {
				return rec.MarkCompleted(final.Scorecard.OverallScore, final.Scorecard, final.Passed)
			}); err != nil {
				return nil, err
			}
			outcome.Status = rec.Status

			zap.L().Info("runner: evaluation run finished",
				zap.String("project_id", projectID),
				zap.String("execution_id", rec.ID),
				zap.Bool("passed", final.Passed),
				zap.Int("iterations_used", outcome.IterationsUsed),
				zap.Float64("final_score", final.Scorecard.OverallScore),
			)
			return outcome, nil
		}

		if err := c.step(persistCtx, rec, func() error { return rec.MarkIterating(i + 1) }); err != nil {
			return nil, err
		}
	}

	// Unreachable: the final round always completes the record.
	return nil, eris.Errorf("runner: loop exited without finalizing execution %s", rec.ID)
}

// step applies one record transition and persists it.
func (c *Controller) step(ctx context.Context, rec *model.ExecutionRecord, transition func() error) error {
	if err := transition(); err != nil {
		return err
	}
	if err := c.executions.UpdateExecution(ctx, rec); err != nil {
		return eris.Wrapf(err, "runner: persist execution %s", rec.ID)
	}
	return nil
}

// checkCancelled observes cooperative cancellation before a round starts:
// either the context was cancelled or an administrative writer moved the
// persisted record to cancelled. Never aborts a round in progress.
func (c *Controller) checkCancelled(ctx context.Context, rec *model.ExecutionRecord) (bool, error) {
	if ctx.Err() != nil {
		if err := rec.Cancel(); err != nil {
			return true, err
		}
		// ctx is already dead here; the terminal write goes out detached so
		// the durable record lands in cancelled rather than sticking at the
		// last round's status.
		if err := c.executions.UpdateExecution(context.WithoutCancel(ctx), rec); err != nil {
			zap.L().Warn("runner: persist cancellation failed",
				zap.String("execution_id", rec.ID),
				zap.Error(err),
			)
		}
		return true, nil
	}

	stored, err := c.executions.GetExecution(ctx, rec.ID)
	if err != nil {
		return false, eris.Wrapf(err, "runner: reload execution %s", rec.ID)
	}
	if stored.Status == model.ExecutionStatusCancelled {
		*rec = *stored
		return true, nil
	}
	return false, nil
}

// fail finalizes the record after an infrastructure error. Best-effort: a
// record already cancelled by an administrative writer stays cancelled.
func (c *Controller) fail(ctx context.Context, rec *model.ExecutionRecord, cause error) {
	if err := rec.Fail(cause.Error()); err != nil {
		zap.L().Warn("runner: cannot mark execution failed",
			zap.String("execution_id", rec.ID),
			zap.Error(err),
		)
		return
	}
	if err := c.executions.UpdateExecution(context.WithoutCancel(ctx), rec); err != nil && !errors.Is(err, store.ErrVersionConflict) {
		zap.L().Warn("runner: persist failure state failed",
			zap.String("execution_id", rec.ID),
			zap.Error(err),
		)
	}
}

// annotateArtifacts fills the record's artifact columns from the bundle's
// expert review identity, when present.
func annotateArtifacts(rec *model.ExecutionRecord, bundle model.MetricsBundle) {
	rec.TotalArtifacts = 1
	if bundle.ExpertReview == nil {
		return
	}
	if rec.ArtifactDetails == nil {
		rec.ArtifactDetails = make(map[string]any)
	}
	if bundle.ExpertReview.ArtifactTitle != "" {
		rec.ArtifactDetails["title"] = bundle.ExpertReview.ArtifactTitle
	}
	if bundle.ExpertReview.ArtifactType != "" {
		rec.ArtifactDetails["type"] = bundle.ExpertReview.ArtifactType
	}
	if bundle.ExpertReview.Reviewer != "" {
		rec.ArtifactDetails["reviewer"] = bundle.ExpertReview.Reviewer
	}
}
