package repository

import (
	"context"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
)

// ProjectRepository reserves project identifiers. CreateProject fails with
// ErrConflict when the identifier is already taken, which is how callers
// detect slug collisions. Records are never removed, so an id stays taken
// even after its build failed to launch.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	SetStatus(ctx context.Context, projectID string, status domain.ProjectStatus) error
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	Ping(ctx context.Context) error
}
