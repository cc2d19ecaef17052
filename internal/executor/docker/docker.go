// Package docker launches build workers as detached Docker containers.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor"
)

const (
	backendName        = "docker"
	containerPrefix    = "builder-"
	projectLabel       = "maybe-vercel.dev/project-id"
	componentLabel     = "maybe-vercel.dev/component"
	componentBuilder   = "builder"
	removeStaleTimeout = 5 * time.Second
)

// API is the subset of the Docker client used to launch builds.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Options configures the builder container.
type Options struct {
	Image   string
	Network string
	Env     []string
}

// Executor runs one builder container per project.
type Executor struct {
	api    API
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

var _ executor.Executor = (*Executor)(nil)

// NewClient creates a Docker SDK client using environment defaults.
func NewClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return inner, nil
}

// New wraps api.
func New(api API, opts Options, logger *slog.Logger) (*Executor, error) {
	if api == nil {
		return nil, fmt.Errorf("docker client not initialized")
	}
	if strings.TrimSpace(opts.Image) == "" {
		return nil, fmt.Errorf("builder image cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{api: api, opts: opts, logger: logger, now: time.Now}, nil
}

// Ping validates connectivity to the Docker daemon.
func (e *Executor) Ping(ctx context.Context) error {
	ping, err := e.api.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases the Docker client.
func (e *Executor) Close() error {
	return e.api.Close()
}

// Launch creates and starts the builder container and returns its id. The
// container removes itself once the build exits.
func (e *Executor) Launch(ctx context.Context, spec executor.Spec) (executor.Handle, error) {
	if err := spec.Validate(); err != nil {
		return executor.Handle{}, err
	}
	name := containerPrefix + spec.ProjectID
	if err := e.removeStale(ctx, name); err != nil {
		return executor.Handle{}, err
	}

	env := append(append([]string{}, e.opts.Env...), spec.Env()...)
	cfg := &container.Config{
		Image: e.opts.Image,
		Env:   env,
		Labels: map[string]string{
			projectLabel:   spec.ProjectID,
			componentLabel: componentBuilder,
		},
	}
	hostCfg := &container.HostConfig{AutoRemove: true}
	if e.opts.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(e.opts.Network)
	}

	created, err := e.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return executor.Handle{}, fmt.Errorf("container create: %w", err)
	}
	if err := e.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		if rmErr := e.api.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			e.logger.Warn("builder container cleanup failed", "container_id", created.ID, "error", rmErr)
		}
		return executor.Handle{}, fmt.Errorf("container start: %w", err)
	}
	e.logger.Info("builder container started", "project_id", spec.ProjectID, "container_id", created.ID, "image", e.opts.Image)
	return executor.Handle{ID: created.ID, Backend: backendName, LaunchedAt: e.now().UTC()}, nil
}

func (e *Executor) removeStale(ctx context.Context, name string) error {
	rmCtx, cancel := context.WithTimeout(ctx, removeStaleTimeout)
	defer cancel()
	if err := e.api.ContainerRemove(rmCtx, name, container.RemoveOptions{Force: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}
