package model

// ScoreBreakdown is the normalized scorecard for one evaluation round.
// Component scores live on a 1-5 scale; ExpertScore is nil when no expert
// review contributed. The overall score is the arithmetic mean of every
// non-nil component, rounded to two decimals.
type ScoreBreakdown struct {
	StructureScore  float64  `json:"structure_score"`
	ExtractionScore float64  `json:"extraction_score"`
	FidelityScore   float64  `json:"fidelity_score"`
	CoverageScore   float64  `json:"coverage_score"`
	ExpertScore     *float64 `json:"expert_score,omitempty"`
	OverallScore    float64  `json:"overall_score"`
	Passed          bool     `json:"passed"`
}
