package memory

import (
	"context"
	"sync"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository"
)

// Repository keeps projects in process memory.
type Repository struct {
	mu       sync.Mutex
	projects map[string]domain.Project
}

var _ repository.ProjectRepository = (*Repository)(nil)

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{projects: make(map[string]domain.Project)}
}

// CreateProject stores project unless its id is taken.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; ok {
		return repository.ErrConflict
	}
	r.projects[project.ID] = *project
	return nil
}

// SetStatus updates the lifecycle status of a stored project.
func (r *Repository) SetStatus(ctx context.Context, projectID string, status domain.ProjectStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	r.projects[projectID] = p
	return nil
}

// GetProject fetches a project by id.
func (r *Repository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error { return nil }

// Len reports the number of stored projects.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projects)
}
