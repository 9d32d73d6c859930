package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_CombinesScorecardAndSuggestions(t *testing.T) {
	e := New(DefaultThresholds())

	m := referenceBundle()
	m.Structure.MissingFields = []string{"title"}

	res := e.Evaluate(m)

	assert.Equal(t, res.Scorecard.Passed, res.Passed, "decision is the scorecard's verbatim")
	assert.Equal(t, 4.19, res.Scorecard.OverallScore)
	assert.Contains(t, res.Suggestions, "Populate missing fields: title")
}

func TestEvaluate_PassingRoundStillCarriesSuggestions(t *testing.T) {
	e := New(DefaultThresholds())

	// Passes every gate but the fidelity heuristic still suggests grounding
	// work below 4.0. Suggestions are advisory, not part of the decision.
	m := referenceBundle()
	m.Fidelity.Score = fptr(3.5)

	res := e.Evaluate(m)

	assert.True(t, res.Passed)
	assert.Contains(t, res.Suggestions, groundingSuggestion)
}

func TestEvaluate_Idempotent(t *testing.T) {
	e := New(DefaultThresholds())
	m := referenceBundle()

	first := e.Evaluate(m)
	second := e.Evaluate(m)
	assert.Equal(t, first, second)
}
