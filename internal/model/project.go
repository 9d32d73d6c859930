package model

import "time"

// ProjectStatus represents where a project sits in the extract-evaluate cycle.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusExtracting ProjectStatus = "extracting"
	ProjectStatusEvaluating ProjectStatus = "evaluating"
	ProjectStatusIterating  ProjectStatus = "iterating"
	ProjectStatusReady      ProjectStatus = "ready_for_compilation"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// Valid reports whether s is a defined project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusExtracting, ProjectStatusEvaluating,
		ProjectStatusIterating, ProjectStatusReady, ProjectStatusFailed:
		return true
	}
	return false
}

// Project is the externally-owned entity whose extraction quality is being
// evaluated. The engine only reads it and updates its status; everything else
// belongs to the project service.
type Project struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	EventID   string        `json:"event_id,omitempty"`
	Status    ProjectStatus `json:"status"`
	Version   int           `json:"version"` // optimistic concurrency check
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
