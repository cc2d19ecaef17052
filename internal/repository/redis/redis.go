// Package redis reserves project identifiers with SETNX so that several API
// replicas never hand out the same slug.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository"
)

const keyPrefix = "project:"

// Repository stores project records as JSON strings.
type Repository struct {
	client *goredis.Client
	prefix string
}

var _ repository.ProjectRepository = (*Repository)(nil)

type record struct {
	ID        string               `json:"id"`
	SourceURL string               `json:"source_url"`
	CreatedAt time.Time            `json:"created_at"`
	Status    domain.ProjectStatus `json:"status,omitempty"`
}

// setStatus rewrites the status field of an existing record and reports
// zero when the key does not exist.
var setStatus = goredis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local rec = cjson.decode(raw)
rec["status"] = ARGV[1]
redis.call("SET", KEYS[1], cjson.encode(rec))
return 1
`)

// New constructs a Repository on an existing client.
func New(client *goredis.Client) *Repository {
	return &Repository{client: client, prefix: keyPrefix}
}

// CreateProject reserves the project id.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	data, err := json.Marshal(record{ID: project.ID, SourceURL: project.SourceURL, CreatedAt: project.CreatedAt, Status: project.Status})
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.prefix+project.ID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve project: %w", err)
	}
	if !ok {
		return repository.ErrConflict
	}
	return nil
}

// SetStatus records a lifecycle change without releasing the id.
func (r *Repository) SetStatus(ctx context.Context, projectID string, status domain.ProjectStatus) error {
	n, err := setStatus.Run(ctx, r.client, []string{r.prefix + projectID}, string(status)).Int()
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetProject loads a project record.
func (r *Repository) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	data, err := r.client.Get(ctx, r.prefix+projectID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &domain.Project{ID: rec.ID, SourceURL: rec.SourceURL, CreatedAt: rec.CreatedAt, Status: rec.Status}, nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
