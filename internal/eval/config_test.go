package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThresholds(t *testing.T) {
	d := DefaultThresholds()

	assert.Equal(t, 3.0, d.MinOverall)
	assert.Equal(t, 3.0, d.MinFidelity)
	assert.Equal(t, 3.0, d.MinStructure)
	assert.Equal(t, 3, d.MinKeyPoints)
	assert.Equal(t, 100, d.MinSummaryWords)
	require.NoError(t, Validate(d))
}

func TestValidate_RejectsOutOfRangeGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"overall below 1", func(th *Thresholds) { th.MinOverall = 0.5 }},
		{"overall above 5", func(th *Thresholds) { th.MinOverall = 5.5 }},
		{"fidelity below 1", func(th *Thresholds) { th.MinFidelity = 0 }},
		{"structure above 5", func(th *Thresholds) { th.MinStructure = 6 }},
		{"negative key points", func(th *Thresholds) { th.MinKeyPoints = -1 }},
		{"negative summary words", func(th *Thresholds) { th.MinSummaryWords = -10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			assert.Error(t, Validate(th))
		})
	}
}

func TestLoadRubric_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_overall: 4.0\nmin_key_points: 5\n"), 0o644))

	th, err := LoadRubric(path)
	require.NoError(t, err)

	assert.Equal(t, 4.0, th.MinOverall)
	assert.Equal(t, 5, th.MinKeyPoints)
	assert.Equal(t, 3.0, th.MinFidelity, "omitted keys keep defaults")
	assert.Equal(t, 100, th.MinSummaryWords)
}

func TestLoadRubric_MissingFile(t *testing.T) {
	_, err := LoadRubric(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRubric_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_overall: 9.0\n"), 0o644))

	_, err := LoadRubric(path)
	assert.Error(t, err)
}
