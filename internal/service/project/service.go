// Package project admits build requests: it allocates a unique project id,
// reserves it and launches a build worker without waiting for the build.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository"
)

const (
	// ModeSubdomain serves projects at <id>.<domain>.
	ModeSubdomain = "subdomain"
	// ModePath serves projects at <base>/<id>/.
	ModePath = "path"

	maxSlugAttempts      = 8
	defaultLaunchTimeout = 15 * time.Second
	statusTimeout        = 5 * time.Second
)

var (
	// ErrInvalidSourceURL marks a missing repository URL.
	ErrInvalidSourceURL = errors.New("gitURL is required")
	// ErrMalformedSourceURL marks a repository URL that is present but is
	// not an http(s), ssh, git or scp-like git address.
	ErrMalformedSourceURL = errors.New("gitURL is not a valid git repository URL")
	// ErrLaunchFailed marks a build that could not be started. The project
	// id stays reserved with status failed.
	ErrLaunchFailed = errors.New("build launch failed")
	// ErrNotFound is returned by Get for unknown ids.
	ErrNotFound = errors.New("project not found")

	errSlugsExhausted = errors.New("could not allocate a unique project id")

	scpLikeURL = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[A-Za-z0-9._~/-]+$`)
)

// SlugGenerator produces candidate project ids.
type SlugGenerator interface {
	Generate() string
}

// Options controls URL rendering and launch limits.
type Options struct {
	ServingMode    string
	ServingDomain  string
	ServingScheme  string
	ServingBaseURL string
	LaunchTimeout  time.Duration
}

// Created is the acknowledgment returned to the client.
type Created struct {
	Project domain.Project
	URL     string
	Channel string
}

// Service orchestrates project creation. It keeps no mutable state of its own
// and is safe for concurrent use.
type Service struct {
	projects repository.ProjectRepository
	executor executor.Executor
	slugs    SlugGenerator
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a project service.
func New(projects repository.ProjectRepository, exec executor.Executor, slugs SlugGenerator, opts Options, logger *slog.Logger) Service {
	if opts.ServingMode == "" {
		opts.ServingMode = ModeSubdomain
	}
	if opts.ServingScheme == "" {
		opts.ServingScheme = "http"
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = defaultLaunchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{projects: projects, executor: exec, slugs: slugs, opts: opts, logger: logger, now: time.Now}
}

// Create registers a project for sourceURL and launches its build. It returns
// as soon as the launch is acknowledged; the same URL submitted twice yields
// two independent projects.
func (s Service) Create(ctx context.Context, sourceURL string) (Created, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if err := ValidateSourceURL(sourceURL); err != nil {
		return Created{}, err
	}

	project, err := s.reserve(ctx, sourceURL)
	if err != nil {
		return Created{}, err
	}

	launchCtx, cancel := context.WithTimeout(ctx, s.opts.LaunchTimeout)
	defer cancel()
	handle, err := s.executor.Launch(launchCtx, executor.Spec{ProjectID: project.ID, SourceURL: sourceURL})
	if err != nil {
		s.markFailed(project.ID)
		s.logger.Error("build launch failed", "project_id", project.ID, "error", err)
		return Created{}, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	s.logger.Info("project queued", "project_id", project.ID, "repo_url", sourceURL, "backend", handle.Backend, "run_id", handle.ID)
	return Created{
		Project: *project,
		URL:     s.URL(project.ID),
		Channel: domain.LogChannel(project.ID),
	}, nil
}

// Get returns a registered project.
func (s Service) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrNotFound
	}
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return project, nil
}

// URL renders the public address of a project.
func (s Service) URL(projectID string) string {
	if s.opts.ServingMode == ModePath {
		return strings.TrimRight(s.opts.ServingBaseURL, "/") + "/" + projectID + "/"
	}
	return s.opts.ServingScheme + "://" + projectID + "." + s.opts.ServingDomain
}

// reserve picks a fresh slug and records it, retrying on collisions.
func (s Service) reserve(ctx context.Context, sourceURL string) (*domain.Project, error) {
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		project := &domain.Project{
			ID:        s.slugs.Generate(),
			SourceURL: sourceURL,
			CreatedAt: s.now().UTC(),
			Status:    domain.StatusQueued,
		}
		err := s.projects.CreateProject(ctx, project)
		if err == nil {
			return project, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("reserve project id: %w", err)
		}
		s.logger.Debug("project id collision", "project_id", project.ID, "attempt", attempt+1)
	}
	return nil, errSlugsExhausted
}

// markFailed leaves the id reserved with status failed.
func (s Service) markFailed(projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	if err := s.projects.SetStatus(ctx, projectID, domain.StatusFailed); err != nil {
		s.logger.Warn("mark project failed", "project_id", projectID, "error", err)
	}
}

// ValidateSourceURL accepts http(s), ssh and git URLs with a host, and
// scp-like git@host:path references.
func ValidateSourceURL(raw string) error {
	if raw == "" {
		return ErrInvalidSourceURL
	}
	if scpLikeURL.MatchString(raw) {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrMalformedSourceURL
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "ssh", "git":
	default:
		return ErrMalformedSourceURL
	}
	if parsed.Host == "" {
		return ErrMalformedSourceURL
	}
	return nil
}
