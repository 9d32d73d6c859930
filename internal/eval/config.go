// Package eval turns raw per-artifact quality metrics into a normalized
// scorecard, a pass/fail decision, and improvement suggestions.
package eval

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Thresholds holds the tunable quality gates and suggestion triggers.
// Zero values are invalid; use DefaultThresholds as the base.
type Thresholds struct {
	// Pass gates. Each must be met independently for passed=true.
	MinOverall   float64 `yaml:"min_overall" mapstructure:"min_overall"`
	MinFidelity  float64 `yaml:"min_fidelity" mapstructure:"min_fidelity"`
	MinStructure float64 `yaml:"min_structure" mapstructure:"min_structure"`

	// Suggestion triggers.
	MinKeyPoints    int `yaml:"min_key_points" mapstructure:"min_key_points"`
	MinSummaryWords int `yaml:"min_summary_words" mapstructure:"min_summary_words"`
}

// DefaultThresholds returns the standard quality gates: 3.0 on all score
// gates, 3 key points, 100 summary words.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOverall:      3.0,
		MinFidelity:     3.0,
		MinStructure:    3.0,
		MinKeyPoints:    3,
		MinSummaryWords: 100,
	}
}

// Validate checks that a Thresholds is internally consistent.
func Validate(t Thresholds) error {
	var errs []string

	gates := map[string]float64{
		"min_overall":   t.MinOverall,
		"min_fidelity":  t.MinFidelity,
		"min_structure": t.MinStructure,
	}
	for name, g := range gates {
		if g < 1 || g > 5 {
			errs = append(errs, fmt.Sprintf("%s must be between 1 and 5", name))
		}
	}

	if t.MinKeyPoints < 0 {
		errs = append(errs, "min_key_points must be >= 0")
	}
	if t.MinSummaryWords < 0 {
		errs = append(errs, "min_summary_words must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("eval: threshold validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadRubric reads a YAML threshold file, layered over the defaults. Keys
// omitted in the file keep their default values.
func LoadRubric(path string) (Thresholds, error) {
	t := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, eris.Wrapf(err, "eval: read rubric %s", path)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, eris.Wrapf(err, "eval: parse rubric %s", path)
	}
	if err := Validate(t); err != nil {
		return t, err
	}
	return t, nil
}
