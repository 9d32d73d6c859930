// Package model defines the domain types shared across the evaluation engine.
package model

// SummaryQuality is the upstream extraction agent's verdict on the summary.
type SummaryQuality string

const (
	SummaryQualityGood             SummaryQuality = "good"
	SummaryQualityNeedsImprovement SummaryQuality = "needs_improvement"
)

// DefaultFidelityScore is substituted when the fidelity agent reported nothing.
const DefaultFidelityScore = 3.0

// StructureMetrics reports how complete the extracted document structure is.
// Produced by the structure agent; consumed read-only.
type StructureMetrics struct {
	CompletenessScore float64  `json:"structure_completeness_score"` // 0-100
	MissingFields     []string `json:"missing_fields,omitempty"`
	IncompleteFields  []string `json:"incomplete_fields,omitempty"`
}

// ExtractionMetrics reports summary and key-point statistics from the
// extraction agent. Zero values are valid (missing counts default to 0).
type ExtractionMetrics struct {
	SummaryWordCount     int            `json:"summary_word_count"`
	SummaryQuality       SummaryQuality `json:"summary_quality,omitempty"`
	FieldCoveragePercent float64        `json:"field_coverage_percent"` // 0-100
	KeyPointsCount       int            `json:"key_points_count"`
}

// Quality returns the reported summary quality, defaulting to
// needs_improvement when the producer omitted the field.
func (m ExtractionMetrics) Quality() SummaryQuality {
	if m.SummaryQuality == "" {
		return SummaryQualityNeedsImprovement
	}
	return m.SummaryQuality
}

// FidelityMetrics reports how faithful the extraction is to the source
// document. Score is nil when the fidelity agent did not run.
type FidelityMetrics struct {
	Score          *float64 `json:"fidelity_score,omitempty"` // nominal 1-5
	AccuracyIssues []string `json:"accuracy_issues,omitempty"`
}

// EffectiveScore returns the reported fidelity score, or
// DefaultFidelityScore when absent.
func (m FidelityMetrics) EffectiveScore() float64 {
	if m.Score == nil {
		return DefaultFidelityScore
	}
	return *m.Score
}

// MetricsBundle groups one round's raw metrics from all upstream agents.
type MetricsBundle struct {
	Structure    StructureMetrics  `json:"structure"`
	Extraction   ExtractionMetrics `json:"extraction"`
	Fidelity     FidelityMetrics   `json:"fidelity"`
	ExpertReview *ExpertReview     `json:"expert_review,omitempty"`
}
