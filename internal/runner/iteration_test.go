package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quality-engine/internal/eval"
	"github.com/sells-group/quality-engine/internal/model"
	"github.com/sells-group/quality-engine/internal/store"
)

func fptr(v float64) *float64 { return &v }

// passingBundle meets every default gate.
func passingBundle() model.MetricsBundle {
	return model.MetricsBundle{
		Structure: model.StructureMetrics{CompletenessScore: 90},
		Extraction: model.ExtractionMetrics{
			SummaryWordCount:     200,
			SummaryQuality:       model.SummaryQualityGood,
			FieldCoveragePercent: 75,
			KeyPointsCount:       4,
		},
		Fidelity: model.FidelityMetrics{Score: fptr(4.5)},
	}
}

// failingBundle misses the structure and fidelity gates.
func failingBundle() model.MetricsBundle {
	return model.MetricsBundle{
		Structure: model.StructureMetrics{
			CompletenessScore: 40,
			MissingFields:     []string{"title"},
		},
		Extraction: model.ExtractionMetrics{
			SummaryWordCount:     80,
			FieldCoveragePercent: 30,
			KeyPointsCount:       1,
		},
		Fidelity: model.FidelityMetrics{Score: fptr(2.0)},
	}
}

func newTestController(t *testing.T) (*Controller, *store.MemoryStore, string) {
	t.Helper()

	st := store.NewMemory()
	project := &model.Project{
		ID:        "proj-1",
		Name:      "test project",
		Status:    model.ProjectStatusDraft,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateProject(context.Background(), project))

	thresholds := eval.DefaultThresholds()
	executor := NewProjectExecutor(eval.New(thresholds), st)
	return NewController(executor, st, st, thresholds), st, project.ID
}

func TestRunIterations_PassesOnThirdRound(t *testing.T) {
	ctx := context.Background()
	c, st, projectID := newTestController(t)

	bundles := []model.MetricsBundle{failingBundle(), failingBundle(), passingBundle()}
	outcome, err := c.RunIterations(ctx, projectID, bundles, 3, RunOptions{EventID: "evt-1"})
	require.NoError(t, err)

	assert.True(t, outcome.Passed)
	assert.Equal(t, 3, outcome.IterationsUsed)
	assert.Equal(t, model.ExecutionStatusCompleted, outcome.Status)
	assert.Equal(t, 4.19, outcome.Scorecard.OverallScore)

	project, err := st.GetProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusReady, project.Status)

	rec, err := st.GetExecution(ctx, outcome.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusCompleted, rec.Status)
	assert.Equal(t, "passed", rec.FinalDecision)
	assert.Equal(t, "evt-1", rec.EventID)
	assert.Len(t, rec.Iterations, 3)
	assert.Equal(t, 3, rec.CurrentIteration)
	assert.False(t, rec.Iterations[0].Passed)
	assert.False(t, rec.Iterations[1].Passed)
	assert.True(t, rec.Iterations[2].Passed)
	require.NotNil(t, rec.FinalScore)
	assert.Equal(t, 4.19, *rec.FinalScore)
}

func TestRunIterations_ExhaustsIterations(t *testing.T) {
	ctx := context.Background()
	c, st, projectID := newTestController(t)

	bundles := []model.MetricsBundle{failingBundle(), failingBundle()}
	outcome, err := c.RunIterations(ctx, projectID, bundles, 2, RunOptions{})
	require.NoError(t, err)

	assert.False(t, outcome.Passed)
	assert.Equal(t, 2, outcome.IterationsUsed)
	assert.Equal(t, model.ExecutionStatusFailed, outcome.Status)
	assert.NotEmpty(t, outcome.Suggestions, "final suggestions surface to the caller")

	project, err := st.GetProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusFailed, project.Status)

	rec, err := st.GetExecution(ctx, outcome.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "failed_quality_threshold", rec.FinalDecision)
	assert.Len(t, rec.Iterations, 2)
}

func TestRunIterations_StopsAtFirstPass(t *testing.T) {
	ctx := context.Background()
	c, st, projectID := newTestController(t)

	bundles := []model.MetricsBundle{passingBundle(), failingBundle(), failingBundle()}
	outcome, err := c.RunIterations(ctx, projectID, bundles, 3, RunOptions{})
	require.NoError(t, err)

	assert.True(t, outcome.Passed)
	assert.Equal(t, 1, outcome.IterationsUsed)

	rec, err := st.GetExecution(ctx, outcome.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, rec.Iterations, 1)
	assert.Equal(t, model.ExecutionStatusCompleted, rec.Status)
}

func TestRunIterations_EmptyBundlesIsFatal(t *testing.T) {
	ctx := context.Background()
	c, st, projectID := newTestController(t)

	_, err := c.RunIterations(ctx, projectID, nil, 3, RunOptions{})
	require.Error(t, err)

	// Failed before any round: nothing was persisted.
	recs, listErr := st.ListExecutions(ctx, store.ExecutionFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, recs)
}

func TestRunIterations_MaxIterationsDefaultsToBundleCount(t *testing.T) {
	ctx := context.Background()
	c, _, projectID := newTestController(t)

	bundles := []model.MetricsBundle{failingBundle(), failingBundle(), failingBundle()}
	outcome, err := c.RunIterations(ctx, projectID, bundles, 0, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.IterationsUsed)
}

func TestRunIterations_ReusesLastBundleWhenCapExceedsList(t *testing.T) {
	ctx := context.Background()
	c, _, projectID := newTestController(t)

	bundles := []model.MetricsBundle{failingBundle()}
	outcome, err := c.RunIterations(ctx, projectID, bundles, 3, RunOptions{})
	require.NoError(t, err)

	assert.False(t, outcome.Passed)
	assert.Equal(t, 3, outcome.IterationsUsed)
}

func TestRun_ProjectNotFound(t *testing.T) {
	ctx := context.Background()
	c, st, _ := newTestController(t)

	_, err := c.RunIterations(ctx, "no-such-project", []model.MetricsBundle{passingBundle()}, 1, RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)

	recs, listErr := st.ListExecutions(ctx, store.ExecutionFilter{})
	require.NoError(t, listErr)
	assert.Empty(t, recs, "nothing persisted when the project is unknown")
}

func TestRun_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	c, _, projectID := newTestController(t)

	_, err := c.Run(ctx, projectID, nil, 3, RunOptions{})
	assert.Error(t, err, "nil provider")

	provider := func(context.Context, int, []string) (model.MetricsBundle, error) {
		return passingBundle(), nil
	}
	_, err = c.Run(ctx, projectID, provider, 0, RunOptions{})
	assert.Error(t, err, "non-positive max iterations")
}

func TestRun_ProviderFailureFailsRecord(t *testing.T) {
	ctx := context.Background()
	c, st, projectID := newTestController(t)

	provider := func(context.Context, int, []string) (model.MetricsBundle, error) {
		return model.MetricsBundle{}, eris.New("extraction agent unreachable")
	}

	_, err := c.Run(ctx, projectID, provider, 3, RunOptions{})
	require.Error(t, err)

	recs, listErr := st.ListExecutions(ctx, store.ExecutionFilter{ProjectID: projectID})
	require.NoError(t, listErr)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ExecutionStatusFailed, recs[0].Status)
	assert.Equal(t, "error", recs[0].FinalDecision)
	assert.Contains(t, recs[0].ErrorMessage, "extraction agent unreachable")
}

func TestRun_PriorSuggestionsFeedTheNextRound(t *testing.T) {
	ctx := context.Background()
	c, _, projectID := newTestController(t)

	var rounds [][]string
	provider := func(_ context.Context, i int, prior []string) (model.MetricsBundle, error) {
		rounds = append(rounds, prior)
		if i < 1 {
			return failingBundle(), nil
		}
		return passingBundle(), nil
	}

	outcome, err := c.Run(ctx, projectID, provider, 3, RunOptions{})
	require.NoError(t, err)
	assert.True(t, outcome.Passed)

	require.Len(t, rounds, 2)
	assert.Nil(t, rounds[0], "first round has no prior suggestions")
	assert.Contains(t, rounds[1], "Populate missing fields: title")
}

func TestRun_ContextCancellationBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, st, projectID := newTestController(t)

	provider := func(context.Context, int, []string) (model.MetricsBundle, error) {
		cancel() // takes effect before the next round starts
		return failingBundle(), nil
	}

	outcome, err := c.Run(ctx, projectID, provider, 3, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionStatusCancelled, outcome.Status)
	assert.Equal(t, 1, outcome.IterationsUsed, "the round in progress finished")

	rec, getErr := st.GetExecution(context.Background(), outcome.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ExecutionStatusCancelled, rec.Status)
	assert.Equal(t, "cancelled", rec.FinalDecision)
	assert.Len(t, rec.Iterations, 1)
}

// The in-memory store never consults the context, so this repeats the
// cancellation scenario against SQLite, which rejects writes on a dead
// context. The terminal state must still land on disk.
func TestRun_CancellationPersistsThroughSQLite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "quality.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(context.Background()))

	project := &model.Project{ID: "proj-1", Status: model.ProjectStatusDraft}
	require.NoError(t, st.CreateProject(context.Background(), project))

	thresholds := eval.DefaultThresholds()
	c := NewController(NewProjectExecutor(eval.New(thresholds), st), st, st, thresholds)

	provider := func(context.Context, int, []string) (model.MetricsBundle, error) {
		cancel()
		return failingBundle(), nil
	}

	outcome, err := c.Run(ctx, "proj-1", provider, 3, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusCancelled, outcome.Status)

	rec, getErr := st.GetExecution(context.Background(), outcome.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ExecutionStatusCancelled, rec.Status)
	assert.Equal(t, "cancelled", rec.FinalDecision)
	assert.Len(t, rec.Iterations, 1, "the round in flight still committed")
	assert.NotNil(t, rec.CompletedAt)
}

// cancellingStore wraps a MemoryStore and simulates an administrative cancel
// landing between rounds: the second status reload first cancels the stored
// record through a separate handle, the way the cancel API endpoint would.
type cancellingStore struct {
	*store.MemoryStore
	gets int
}

func (s *cancellingStore) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	s.gets++
	if s.gets == 2 {
		rec, err := s.MemoryStore.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := rec.Cancel(); err != nil {
			return nil, err
		}
		if err := s.MemoryStore.UpdateExecution(ctx, rec); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.GetExecution(ctx, id)
}

func TestRun_ExternalCancellationAdopted(t *testing.T) {
	ctx := context.Background()

	mem := store.NewMemory()
	project := &model.Project{ID: "proj-1", Status: model.ProjectStatusDraft}
	require.NoError(t, mem.CreateProject(ctx, project))

	st := &cancellingStore{MemoryStore: mem}
	thresholds := eval.DefaultThresholds()
	executor := NewProjectExecutor(eval.New(thresholds), mem)
	c := NewController(executor, st, mem, thresholds)

	provider := func(context.Context, int, []string) (model.MetricsBundle, error) {
		return failingBundle(), nil
	}

	outcome, err := c.Run(ctx, "proj-1", provider, 3, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionStatusCancelled, outcome.Status)
	assert.Equal(t, 1, outcome.IterationsUsed)

	rec, getErr := mem.GetExecution(ctx, outcome.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, model.ExecutionStatusCancelled, rec.Status)
}

func TestRun_ArtifactDetailsFromExpertReview(t *testing.T) {
	ctx := context.Background()
	c, st, projectID := newTestController(t)

	bundle := passingBundle()
	bundle.ExpertReview = &model.ExpertReview{
		ArtifactTitle: "Q3 earnings call notes",
		ArtifactType:  "meeting_notes",
		Reviewer:      "jordan",
		DimensionScores: []model.DimensionScore{
			{Dimension: model.DimensionFactualAccuracy, Score: 5},
			{Dimension: model.DimensionCompleteness, Score: 4.5},
		},
	}

	outcome, err := c.RunIterations(ctx, projectID, []model.MetricsBundle{bundle}, 1, RunOptions{})
	require.NoError(t, err)
	assert.True(t, outcome.Passed)

	rec, getErr := st.GetExecution(ctx, outcome.ExecutionID)
	require.NoError(t, getErr)
	assert.Equal(t, 1, rec.TotalArtifacts)
	assert.Equal(t, 1, rec.ArtifactsPassed)
	assert.Equal(t, "Q3 earnings call notes", rec.ArtifactDetails["title"])
	assert.Equal(t, "meeting_notes", rec.ArtifactDetails["type"])
	assert.Equal(t, "jordan", rec.ArtifactDetails["reviewer"])
}
