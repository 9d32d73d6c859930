package eval

import "github.com/sells-group/quality-engine/internal/model"

// Result is the combined output of one evaluation: the scorecard, the
// pass/fail decision (taken verbatim from the scorecard), and the ordered
// improvement suggestions.
type Result struct {
	Scorecard   model.ScoreBreakdown `json:"scorecard"`
	Passed      bool                 `json:"passed"`
	Suggestions []string             `json:"suggestions"`
}

// Evaluator composes the Scorer and SuggestionEngine into one call.
type Evaluator struct {
	scorer      *Scorer
	suggestions *SuggestionEngine
}

// New creates an Evaluator with the given thresholds.
func New(t Thresholds) *Evaluator {
	return &Evaluator{
		scorer:      NewScorer(t),
		suggestions: NewSuggestionEngine(t),
	}
}

// Evaluate scores one metrics bundle and derives its suggestions. Pure and
// idempotent: identical inputs always produce identical results.
func (e *Evaluator) Evaluate(m model.MetricsBundle) Result {
	scorecard := e.scorer.Compute(m)
	return Result{
		Scorecard:   scorecard,
		Passed:      scorecard.Passed,
		Suggestions: e.suggestions.Suggest(m),
	}
}
