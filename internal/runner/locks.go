package runner

import "sync"

// ProjectLocks serializes evaluation runs per project id. The iteration loop
// and every project/record mutation for one project run under its lock, which
// enforces the single-writer discipline in-process; cross-process writers are
// caught by the store's optimistic version checks.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProjectLocks creates an empty lock registry.
func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for the given project id, creating it on first use,
// and returns the release function.
func (l *ProjectLocks) Lock(projectID string) (release func()) {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
