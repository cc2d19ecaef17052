package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository"
)

const uniqueViolation = "23505"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.ProjectRepository = (*Repository)(nil)

// CreateProject inserts a project; a duplicate id yields ErrConflict.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, source_url, created_at, status) VALUES ($1, $2, $3, $4)`
	status := project.Status
	if status == "" {
		status = domain.StatusQueued
	}
	_, err := r.pool.Exec(ctx, query, project.ID, project.SourceURL, project.CreatedAt, string(status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// SetStatus updates a project's lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, projectID string, status domain.ProjectStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET status = $2 WHERE id = $1`, projectID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetProject fetches a project by id.
func (r *Repository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, source_url, created_at, status FROM projects WHERE id = $1`
	var p domain.Project
	var status string
	if err := r.pool.QueryRow(ctx, query, projectID).Scan(&p.ID, &p.SourceURL, &p.CreatedAt, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	p.Status = domain.ProjectStatus(status)
	return &p, nil
}

// Ping checks the pool.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
