package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quality-engine/internal/model"
)

// MemoryStore is an in-memory Store for tests and dry runs. Safe for
// concurrent use; data does not survive the process.
type MemoryStore struct {
	mu         sync.RWMutex
	executions map[string]model.ExecutionRecord
	projects   map[string]model.Project
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]model.ExecutionRecord),
		projects:   make(map[string]model.Project),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateExecution(_ context.Context, rec *model.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[rec.ID]; exists {
		return eris.Errorf("memory: execution already exists: %s", rec.ID)
	}
	s.executions[rec.ID] = cloneRecord(*rec)
	return nil
}

func (s *MemoryStore) UpdateExecution(_ context.Context, rec *model.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.executions[rec.ID]
	if !exists {
		return eris.Wrapf(ErrNotFound, "memory: execution %s", rec.ID)
	}
	if cur.Version != rec.Version {
		return eris.Wrapf(ErrVersionConflict, "memory: execution %s at version %d, have %d", rec.ID, cur.Version, rec.Version)
	}
	rec.Version++
	s.executions[rec.ID] = cloneRecord(*rec)
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*model.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.executions[id]
	if !exists {
		return nil, eris.Wrapf(ErrNotFound, "memory: execution %s", id)
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []model.ExecutionRecord
	for _, rec := range s.executions {
		if filter.ProjectID != "" && rec.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if !filter.CreatedAfter.IsZero() && rec.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		recs = append(recs, cloneRecord(rec))
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) CreateProject(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return eris.Errorf("memory: project already exists: %s", p.ID)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.projects[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.projects[id]
	if !exists {
		return nil, eris.Wrapf(ErrNotFound, "memory: project %s", id)
	}
	return &p, nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.projects[p.ID]
	if !exists {
		return eris.Wrapf(ErrNotFound, "memory: project %s", p.ID)
	}
	if cur.Version != p.Version {
		return eris.Wrapf(ErrVersionConflict, "memory: project %s at version %d, have %d", p.ID, cur.Version, p.Version)
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	s.projects[p.ID] = *p
	return nil
}

// cloneRecord deep-copies the slices so callers cannot mutate stored state.
func cloneRecord(rec model.ExecutionRecord) model.ExecutionRecord {
	out := rec
	if rec.Iterations != nil {
		out.Iterations = make([]model.IterationSnapshot, len(rec.Iterations))
		copy(out.Iterations, rec.Iterations)
	}
	if rec.Tags != nil {
		out.Tags = append([]string(nil), rec.Tags...)
	}
	if rec.FinalScorecard != nil {
		sc := *rec.FinalScorecard
		out.FinalScorecard = &sc
	}
	return out
}
