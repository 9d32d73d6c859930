// Package store persists execution records and the project status the engine
// is allowed to touch, behind interchangeable SQLite, Postgres, and in-memory
// backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quality-engine/internal/model"
)

// ErrNotFound is returned when a record or project id does not exist.
var ErrNotFound = eris.New("not found")

// ErrVersionConflict is returned when an optimistic-concurrency check fails:
// another writer updated the row since it was read.
var ErrVersionConflict = eris.New("version conflict")

// ExecutionFilter specifies criteria for listing execution records.
type ExecutionFilter struct {
	ProjectID    string                `json:"project_id,omitempty"`
	Status       model.ExecutionStatus `json:"status,omitempty"`
	CreatedAfter time.Time             `json:"created_after,omitempty"`
	Limit        int                   `json:"limit,omitempty"`
	Offset       int                   `json:"offset,omitempty"`
}

// ExecutionStore persists execution records. UpdateExecution checks the
// record's Version and increments it on success, so concurrent writers of the
// same record fail fast with ErrVersionConflict.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, rec *model.ExecutionRecord) error
	UpdateExecution(ctx context.Context, rec *model.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error)
}

// ProjectStore is the collaborator interface the engine requires from the
// externally-owned project service: a single get and a single update.
// UpdateProject carries the same optimistic version discipline.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, p *model.Project) error
}

// Store is the full persistence surface a backend provides. CreateProject
// exists only so local deployments can seed projects; the engine itself never
// calls it.
type Store interface {
	ExecutionStore
	ProjectStore

	CreateProject(ctx context.Context, p *model.Project) error

	Migrate(ctx context.Context) error
	Close() error
}
