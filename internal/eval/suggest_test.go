package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/quality-engine/internal/model"
)

func TestSuggest_OrderedSuggestions(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	m := model.MetricsBundle{
		Structure: model.StructureMetrics{
			MissingFields: []string{"title", "authors"},
		},
		Extraction: model.ExtractionMetrics{
			KeyPointsCount:   1,
			SummaryWordCount: 50,
		},
		Fidelity: model.FidelityMetrics{Score: fptr(4.5)},
	}

	got := e.Suggest(m)

	assert.Equal(t, []string{
		"Populate missing fields: title, authors",
		"Add more key points (have 1, need 3+).",
		"Expand summary to at least 100 words (current 50).",
	}, got)
}

func TestSuggest_CleanBundleYieldsNothing(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	m := model.MetricsBundle{
		Extraction: model.ExtractionMetrics{
			KeyPointsCount:   5,
			SummaryWordCount: 250,
		},
		Fidelity: model.FidelityMetrics{Score: fptr(4.5)},
	}

	assert.Empty(t, e.Suggest(m))
}

func TestSuggest_IncompleteFields(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	m := model.MetricsBundle{
		Structure: model.StructureMetrics{
			MissingFields:    []string{"title"},
			IncompleteFields: []string{"summary", "references"},
		},
		Extraction: model.ExtractionMetrics{
			KeyPointsCount:   5,
			SummaryWordCount: 250,
		},
		Fidelity: model.FidelityMetrics{Score: fptr(4.5)},
	}

	assert.Equal(t, []string{
		"Populate missing fields: title",
		"Complete partial fields: summary, references",
	}, e.Suggest(m))
}

func TestSuggest_LowFidelityTriggersGrounding(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	m := model.MetricsBundle{
		Extraction: model.ExtractionMetrics{KeyPointsCount: 5, SummaryWordCount: 250},
		Fidelity:   model.FidelityMetrics{Score: fptr(3.9)},
	}

	got := e.Suggest(m)
	assert.Equal(t, []string{groundingSuggestion}, got)
}

func TestSuggest_DefaultFidelityTriggersGrounding(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	// No fidelity agent ran: effective score is the 3.0 default, below 4.
	m := model.MetricsBundle{
		Extraction: model.ExtractionMetrics{KeyPointsCount: 5, SummaryWordCount: 250},
	}

	assert.Contains(t, e.Suggest(m), groundingSuggestion)
}

func TestSuggest_ExpertDimensionsAndIterationFlag(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	m := model.MetricsBundle{
		Extraction: model.ExtractionMetrics{KeyPointsCount: 5, SummaryWordCount: 250},
		Fidelity:   model.FidelityMetrics{Score: fptr(4.5)},
		ExpertReview: &model.ExpertReview{
			DimensionScores: []model.DimensionScore{
				{Dimension: model.DimensionFactualAccuracy, Score: 4.5},
				{Dimension: model.DimensionSignalToNoiseRatio, Score: 3.0, Rationale: "too much boilerplate"},
				{Dimension: model.DimensionReusabilityForAI, Score: 3.5, Rationale: "sections lack headers"},
			},
			RequiresIteration: true,
		},
	}

	assert.Equal(t, []string{
		"Improve signal to noise ratio: too much boilerplate",
		"Improve reusability for ai: sections lack headers",
		iterationSuggestion,
	}, e.Suggest(m))
}

func TestSuggest_Deduplicates(t *testing.T) {
	e := NewSuggestionEngine(DefaultThresholds())

	// Low fidelity metric and a low faithfulness dimension sharing the same
	// rationale text must not duplicate identical suggestion strings.
	m := model.MetricsBundle{
		Extraction: model.ExtractionMetrics{KeyPointsCount: 5, SummaryWordCount: 250},
		Fidelity:   model.FidelityMetrics{Score: fptr(2.0)},
		ExpertReview: &model.ExpertReview{
			DimensionScores: []model.DimensionScore{
				{Dimension: model.DimensionFaithfulness, Score: 2.0, Rationale: "claims not in source"},
				{Dimension: model.DimensionFaithfulness, Score: 2.0, Rationale: "claims not in source"},
			},
		},
	}

	got := e.Suggest(m)
	assert.Equal(t, []string{
		groundingSuggestion,
		"Improve faithfulness to source: claims not in source",
	}, got)
}

func TestSuggest_CustomTriggers(t *testing.T) {
	thresholds := DefaultThresholds()
	thresholds.MinKeyPoints = 10
	thresholds.MinSummaryWords = 500
	e := NewSuggestionEngine(thresholds)

	m := model.MetricsBundle{
		Extraction: model.ExtractionMetrics{KeyPointsCount: 5, SummaryWordCount: 250},
		Fidelity:   model.FidelityMetrics{Score: fptr(4.5)},
	}

	assert.Equal(t, []string{
		"Add more key points (have 5, need 10+).",
		"Expand summary to at least 500 words (current 250).",
	}, e.Suggest(m))
}
