package eval

import (
	"fmt"
	"strings"

	"github.com/sells-group/quality-engine/internal/model"
)

const (
	groundingSuggestion = "Tighten grounding: verify every extracted claim against the source document and cite its passage."
	iterationSuggestion = "Apply an improvement iteration before compiling: the expert review flagged this artifact for rework."
)

// SuggestionEngine derives ordered, de-duplicated improvement suggestions
// from one round's raw metrics. Deterministic for identical inputs.
type SuggestionEngine struct {
	thresholds Thresholds
}

// NewSuggestionEngine creates a SuggestionEngine with the given triggers.
func NewSuggestionEngine(t Thresholds) *SuggestionEngine {
	return &SuggestionEngine{thresholds: t}
}

// Suggest applies the suggestion rules in fixed order. Each distinct text is
// emitted at most once, first occurrence winning.
func (e *SuggestionEngine) Suggest(m model.MetricsBundle) []string {
	out := newOrderedSet()

	if len(m.Structure.MissingFields) > 0 {
		out.add("Populate missing fields: " + strings.Join(m.Structure.MissingFields, ", "))
	}
	if len(m.Structure.IncompleteFields) > 0 {
		out.add("Complete partial fields: " + strings.Join(m.Structure.IncompleteFields, ", "))
	}
	if m.Extraction.KeyPointsCount < e.thresholds.MinKeyPoints {
		out.add(fmt.Sprintf("Add more key points (have %d, need %d+).",
			m.Extraction.KeyPointsCount, e.thresholds.MinKeyPoints))
	}
	if m.Extraction.SummaryWordCount < e.thresholds.MinSummaryWords {
		out.add(fmt.Sprintf("Expand summary to at least %d words (current %d).",
			e.thresholds.MinSummaryWords, m.Extraction.SummaryWordCount))
	}
	if m.Fidelity.EffectiveScore() < 4 {
		out.add(groundingSuggestion)
	}
	if m.ExpertReview != nil {
		for _, ds := range m.ExpertReview.DimensionScores {
			if ds.Score < 4.0 {
				out.add(fmt.Sprintf("Improve %s: %s", ds.Dimension.Display(), ds.Rationale))
			}
		}
		if m.ExpertReview.RequiresIteration {
			out.add(iterationSuggestion)
		}
	}

	return out.items
}

// orderedSet is an insertion-ordered string set.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
