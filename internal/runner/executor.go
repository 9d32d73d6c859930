// Package runner drives bounded evaluate-iterate runs for projects and
// records them as durable execution records.
package runner

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quality-engine/internal/eval"
	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/store"
)

// RoundResult is the outcome of one evaluation round for a project.
type RoundResult struct {
	Iteration     int                 `json:"iteration"` // 0-based round index
	Result        eval.Result         `json:"result"`
	ProjectStatus model.ProjectStatus `json:"project_status"`
}

// ProjectExecutor runs single evaluation rounds and keeps the
// externally-owned project's status in sync with the outcome.
type ProjectExecutor struct {
	evaluator *eval.Evaluator
	projects  store.ProjectStore
}

// NewProjectExecutor creates a ProjectExecutor.
func NewProjectExecutor(evaluator *eval.Evaluator, projects store.ProjectStore) *ProjectExecutor {
	return &ProjectExecutor{evaluator: evaluator, projects: projects}
}

// EvaluateOnce evaluates one metrics bundle for the project and persists the
// resulting project status: ready_for_compilation on pass, iterating while
// rounds remain, failed on the final miss.
//
// Evaluation itself never fails; a persistence failure is returned together
// with the fully computed RoundResult so the caller can retry the durable
// commit without re-evaluating.
func (x *ProjectExecutor) EvaluateOnce(ctx context.Context, project *model.Project, m model.MetricsBundle, iterationIndex, maxIterations int) (RoundResult, error) {
	result := x.evaluator.Evaluate(m)

	status := model.ProjectStatusIterating
	switch {
	case result.Passed:
		status = model.ProjectStatusReady
	case iterationIndex+1 >= maxIterations:
		status = model.ProjectStatusFailed
	}

	round := RoundResult{
		Iteration:     iterationIndex,
		Result:        result,
		ProjectStatus: status,
	}

	project.Status = status
	if err := x.projects.UpdateProject(ctx, project); err != nil {
		return round, eris.Wrapf(err, "runner: persist project %s status %s", project.ID, status)
	}

	zap.L().Debug("runner: round evaluated",
		zap.String("project_id", project.ID),
		zap.Int("iteration", iterationIndex),
		zap.Float64("overall_score", result.Scorecard.OverallScore),
		zap.Bool("passed", result.Passed),
		zap.String("project_status", string(status)),
	)

	return round, nil
}
