package eval

import (
	"math"

	"github.com/sells-group/quality-engine/internal/model"
)

// Extraction score adjustments around the 3.0 baseline.
const (
	extractionBaseline   = 3.0
	goodSummaryBonus     = 0.5
	keyPointRangeBonus   = 0.25
	keyPointBonusMin     = 3
	keyPointBonusMax     = 12
	shortSummaryWords    = 50
	longSummaryWords     = 800
	summaryLengthPenalty = 0.5
)

// Scorer converts raw metric bundles into normalized 1-5 scorecards.
// Compute is pure and deterministic; a Scorer is safe for concurrent use.
type Scorer struct {
	thresholds Thresholds
}

// NewScorer creates a Scorer with the given quality gates.
func NewScorer(t Thresholds) *Scorer {
	return &Scorer{thresholds: t}
}

// Compute scores one metrics bundle. It never fails: missing or malformed
// metric fields fall back to their documented defaults so heterogeneous
// upstream producers are scored best-effort.
func (s *Scorer) Compute(m model.MetricsBundle) model.ScoreBreakdown {
	sc := model.ScoreBreakdown{
		StructureScore:  clampScore(m.Structure.CompletenessScore / 100 * 5),
		ExtractionScore: s.extractionScore(m.Extraction),
		CoverageScore:   coverageScore(m.Extraction.FieldCoveragePercent),
		// Fidelity is deliberately not clamped: the pass gate already
		// rejects low values and clamping would mask a misbehaving
		// upstream producer.
		FidelityScore: m.Fidelity.EffectiveScore(),
	}

	components := []float64{sc.StructureScore, sc.ExtractionScore, sc.FidelityScore, sc.CoverageScore}
	if m.ExpertReview != nil {
		expert := m.ExpertReview.Overall()
		sc.ExpertScore = &expert
		components = append(components, expert)
	}

	var sum float64
	for _, c := range components {
		sum += c
	}
	sc.OverallScore = round2(sum / float64(len(components)))

	sc.Passed = sc.OverallScore >= s.thresholds.MinOverall &&
		sc.FidelityScore >= s.thresholds.MinFidelity &&
		sc.StructureScore >= s.thresholds.MinStructure

	return sc
}

// extractionScore starts at the 3.0 baseline and adjusts for summary quality,
// key-point count, and summary length.
func (s *Scorer) extractionScore(m model.ExtractionMetrics) float64 {
	score := extractionBaseline

	if m.Quality() == model.SummaryQualityGood {
		score += goodSummaryBonus
	}
	if m.KeyPointsCount >= keyPointBonusMin && m.KeyPointsCount <= keyPointBonusMax {
		score += keyPointRangeBonus
	}
	if m.SummaryWordCount < shortSummaryWords {
		score -= summaryLengthPenalty
	}
	if m.SummaryWordCount > longSummaryWords {
		score -= summaryLengthPenalty
	}

	return clampScore(score)
}

// coverageScore maps field coverage percent onto the 1-5 scale in tiers.
func coverageScore(percent float64) float64 {
	switch {
	case percent >= 80:
		return 4.5
	case percent >= 60:
		return 4.0
	case percent >= 40:
		return 3.0
	case percent >= 20:
		return 2.5
	default:
		return 1.5
	}
}

func clampScore(v float64) float64 {
	return math.Min(5, math.Max(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
