package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ExecutionStatus represents the lifecycle state of one evaluation run.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusRunning    ExecutionStatus = "running"
	ExecutionStatusEvaluating ExecutionStatus = "evaluating"
	ExecutionStatusIterating  ExecutionStatus = "iterating"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// Valid reports whether s is a defined execution status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusEvaluating,
		ExecutionStatusIterating, ExecutionStatusCompleted, ExecutionStatusFailed,
		ExecutionStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s accepts no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// IterationSnapshot captures the outcome of one evaluation round.
type IterationSnapshot struct {
	Iteration   int            `json:"iteration"` // 1-based
	Scorecard   ScoreBreakdown `json:"scorecard"`
	Passed      bool           `json:"passed"`
	Suggestions []string       `json:"suggestions,omitempty"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// ExecutionRecord is the durable audit trail of one bounded evaluate-iterate
// run. It is created once per run and mutated exclusively through the
// transition methods below; callers persist it after every mutation.
type ExecutionRecord struct {
	ID               string              `json:"id"`
	ProjectID        string              `json:"project_id"`
	EventID          string              `json:"event_id,omitempty"`
	Status           ExecutionStatus     `json:"status"`
	Configuration    string              `json:"configuration,omitempty"`
	QualityThreshold float64             `json:"quality_threshold"`
	MaxIterations    int                 `json:"max_iterations"`
	CurrentIteration int                 `json:"current_iteration"`
	CreatedAt        time.Time           `json:"created_at"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	DurationSeconds  float64             `json:"duration_seconds"`
	FinalScore       *float64            `json:"final_score,omitempty"`
	FinalDecision    string              `json:"final_decision,omitempty"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	TotalArtifacts   int                 `json:"total_artifacts"`
	ArtifactsPassed  int                 `json:"artifacts_passed"`
	ArtifactsFailed  int                 `json:"artifacts_failed"`
	Iterations       []IterationSnapshot `json:"iterations_data"`
	FinalScorecard   *ScoreBreakdown     `json:"final_scorecard,omitempty"`
	ArtifactDetails  map[string]any      `json:"artifact_details,omitempty"`
	Tags             []string            `json:"tags,omitempty"`
	Version          int                 `json:"version"` // optimistic concurrency check
}

// NewExecutionRecord creates a pending record for one evaluation run.
func NewExecutionRecord(projectID, eventID string, threshold float64, maxIterations int) *ExecutionRecord {
	return &ExecutionRecord{
		ID:               uuid.New().String(),
		ProjectID:        projectID,
		EventID:          eventID,
		Status:           ExecutionStatusPending,
		QualityThreshold: threshold,
		MaxIterations:    maxIterations,
		CreatedAt:        time.Now().UTC(),
	}
}

// transition moves the record to `to` if the current status is one of `from`.
// Terminal states never transition; violating either rule is a programming
// error surfaced as a non-nil error.
func (r *ExecutionRecord) transition(to ExecutionStatus, from ...ExecutionStatus) error {
	if r.Status.Terminal() {
		return eris.Errorf("execution %s: invalid transition %s -> %s: record is terminal", r.ID, r.Status, to)
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			return nil
		}
	}
	return eris.Errorf("execution %s: invalid transition %s -> %s", r.ID, r.Status, to)
}

// MarkStarted moves pending -> running and stamps StartedAt.
func (r *ExecutionRecord) MarkStarted() error {
	if err := r.transition(ExecutionStatusRunning, ExecutionStatusPending); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.StartedAt = &now
	return nil
}

// MarkEvaluating moves running -> evaluating, or iterating -> evaluating when
// the loop comes back for the next round.
func (r *ExecutionRecord) MarkEvaluating() error {
	return r.transition(ExecutionStatusEvaluating, ExecutionStatusRunning, ExecutionStatusIterating)
}

// MarkIterating moves evaluating -> iterating and records the iteration the
// run is advancing to.
func (r *ExecutionRecord) MarkIterating(n int) error {
	if n < 0 || n > r.MaxIterations {
		return eris.Errorf("execution %s: iteration %d out of range [0,%d]", r.ID, n, r.MaxIterations)
	}
	if err := r.transition(ExecutionStatusIterating, ExecutionStatusEvaluating); err != nil {
		return err
	}
	r.CurrentIteration = n
	return nil
}

// AddIterationResult appends one round's snapshot. Valid while evaluating or
// iterating; the status itself does not change. CurrentIteration tracks the
// snapshot count so len(Iterations) == CurrentIteration holds at every step.
func (r *ExecutionRecord) AddIterationResult(snap IterationSnapshot) error {
	if r.Status != ExecutionStatusEvaluating && r.Status != ExecutionStatusIterating {
		return eris.Errorf("execution %s: cannot record iteration result in status %s", r.ID, r.Status)
	}
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}
	r.Iterations = append(r.Iterations, snap)
	if snap.Iteration > r.CurrentIteration {
		r.CurrentIteration = snap.Iteration
	}
	return nil
}

// MarkCompleted finalizes the run: completed when the quality bar was met,
// failed otherwise. Sets CompletedAt, DurationSeconds, the final score and
// scorecard, and the artifact counters.
func (r *ExecutionRecord) MarkCompleted(finalScore float64, scorecard ScoreBreakdown, passed bool) error {
	to := ExecutionStatusCompleted
	decision := "passed"
	if !passed {
		to = ExecutionStatusFailed
		decision = "failed_quality_threshold"
	}
	if err := r.transition(to,
		ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusEvaluating, ExecutionStatusIterating); err != nil {
		return err
	}
	r.finalize()
	r.FinalScore = &finalScore
	r.FinalScorecard = &scorecard
	r.FinalDecision = decision
	if r.TotalArtifacts == 0 {
		r.TotalArtifacts = 1
	}
	if passed {
		r.ArtifactsPassed = r.TotalArtifacts
	} else {
		r.ArtifactsFailed = r.TotalArtifacts
	}
	return nil
}

// Fail finalizes the run after an infrastructure error (metrics provider or
// persistence failure), as opposed to failing the quality bar.
func (r *ExecutionRecord) Fail(errMsg string) error {
	if err := r.transition(ExecutionStatusFailed,
		ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusEvaluating, ExecutionStatusIterating); err != nil {
		return err
	}
	r.finalize()
	r.FinalDecision = "error"
	r.ErrorMessage = errMsg
	return nil
}

// Cancel moves any non-terminal state to cancelled. Cancellation is always
// externally triggered (administrative API or operator); the iteration loop
// only ever observes it.
func (r *ExecutionRecord) Cancel() error {
	if err := r.transition(ExecutionStatusCancelled,
		ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusEvaluating, ExecutionStatusIterating); err != nil {
		return err
	}
	r.finalize()
	r.FinalDecision = "cancelled"
	return nil
}

func (r *ExecutionRecord) finalize() {
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.DurationSeconds = now.Sub(r.CreatedAt).Seconds()
}
