package model

import (
	"math"
	"strings"
)

// ReviewDimension identifies one axis of an expert quality review.
type ReviewDimension string

const (
	DimensionFactualAccuracy    ReviewDimension = "factual_accuracy"
	DimensionCompleteness       ReviewDimension = "completeness"
	DimensionFaithfulness       ReviewDimension = "faithfulness_to_source"
	DimensionSignalToNoiseRatio ReviewDimension = "signal_to_noise_ratio"
	DimensionReusabilityForAI   ReviewDimension = "reusability_for_ai"
)

// ReviewDimensions lists every dimension a full expert review covers.
var ReviewDimensions = []ReviewDimension{
	DimensionFactualAccuracy,
	DimensionCompleteness,
	DimensionFaithfulness,
	DimensionSignalToNoiseRatio,
	DimensionReusabilityForAI,
}

// Valid reports whether d is one of the defined dimensions.
func (d ReviewDimension) Valid() bool {
	switch d {
	case DimensionFactualAccuracy,
		DimensionCompleteness,
		DimensionFaithfulness,
		DimensionSignalToNoiseRatio,
		DimensionReusabilityForAI:
		return true
	}
	return false
}

// Display returns the human-readable dimension name (spaces, not underscores).
func (d ReviewDimension) Display() string {
	return strings.ReplaceAll(string(d), "_", " ")
}

// DimensionScore is one reviewer judgment on a single dimension.
type DimensionScore struct {
	Dimension      ReviewDimension `json:"dimension"`
	Score          float64         `json:"score"` // 1-5
	Rationale      string          `json:"rationale,omitempty"`
	SpecificIssues []string        `json:"specific_issues,omitempty"`
}

// ExpertReview is an optional multi-dimension quality review of one artifact,
// produced by a human reviewer or an automated judge. A full review carries
// exactly one DimensionScore per ReviewDimension.
type ExpertReview struct {
	ArtifactTitle     string           `json:"artifact_title"`
	ArtifactType      string           `json:"artifact_type,omitempty"`
	Reviewer          string           `json:"reviewer,omitempty"`
	DimensionScores   []DimensionScore `json:"dimension_scores"`
	OverallScore      float64          `json:"overall_score"`
	OverallComments   string           `json:"overall_comments,omitempty"`
	Approved          bool             `json:"approved"`
	RequiresIteration bool             `json:"requires_iteration"`
}

// Overall returns the review's overall score. When dimension scores are
// present it is always their arithmetic mean; the stored OverallScore is used
// only for reviews that carry no per-dimension scores.
func (r ExpertReview) Overall() float64 {
	if len(r.DimensionScores) == 0 {
		return r.OverallScore
	}
	var sum float64
	for _, ds := range r.DimensionScores {
		sum += ds.Score
	}
	return math.Round(sum/float64(len(r.DimensionScores))*100) / 100
}

// Normalize recomputes OverallScore from the dimension scores so the
// serialized form never disagrees with Overall().
func (r *ExpertReview) Normalize() {
	if len(r.DimensionScores) > 0 {
		r.OverallScore = r.Overall()
	}
}
