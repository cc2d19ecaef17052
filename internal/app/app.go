// Package app assembles backends from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/app/migrate"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
	brokermemory "github.com/GeneCodeSavvy/maybe-vercel/internal/broker/memory"
	brokernats "github.com/GeneCodeSavvy/maybe-vercel/internal/broker/nats"
	brokerredis "github.com/GeneCodeSavvy/maybe-vercel/internal/broker/redis"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/config"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor/docker"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor/kubernetes"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor/local"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/git"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository"
	repomemory "github.com/GeneCodeSavvy/maybe-vercel/internal/repository/memory"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository/postgres"
	reporedis "github.com/GeneCodeSavvy/maybe-vercel/internal/repository/redis"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/service/build"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
	storagefs "github.com/GeneCodeSavvy/maybe-vercel/internal/storage/fs"
	storagememory "github.com/GeneCodeSavvy/maybe-vercel/internal/storage/memory"
	storages3 "github.com/GeneCodeSavvy/maybe-vercel/internal/storage/s3"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/workspace"
)

// Closer releases a backend. It is never nil.
type Closer func()

func noop() {}

// OpenBroker connects the configured broker backend.
func OpenBroker(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger) (broker.Broker, error) {
	switch backend(cfg.Backend) {
	case "redis":
		return brokerredis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	case "nats":
		return brokernats.New(cfg.NATSURL, logger)
	case "memory":
		return brokermemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.Backend)
	}
}

// OpenStore builds the configured object store.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch backend(cfg.Backend) {
	case "s3":
		return storages3.New(ctx, cfg)
	case "fs":
		return storagefs.New(cfg.Dir)
	case "memory":
		return storagememory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// OpenRegistry builds the project registry. The postgres backend applies
// pending migrations before returning.
func OpenRegistry(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (repository.ProjectRepository, Closer, error) {
	switch backend(cfg.RegistryBackend) {
	case "memory":
		return repomemory.New(), noop, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Broker.RedisAddr,
			Password: cfg.Broker.RedisPassword,
			DB:       cfg.Broker.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("registry redis ping: %w", err)
		}
		return reporedis.New(client), func() { client.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect database: %w", err)
		}
		runner, err := migrate.New(pool, logger)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		err = runner.Ping(ctx)
		if err == nil {
			err = runner.Ensure(ctx)
		}
		runner.Close()
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		return postgres.New(pool), pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}
}

// NewBuildService wires the build worker's collaborators.
func NewBuildService(cfg config.BuilderConfig, store storage.Store, publisher broker.Publisher, logger *slog.Logger) (build.Service, error) {
	ws, err := workspace.New(cfg.Workdir)
	if err != nil {
		return build.Service{}, fmt.Errorf("workspace init: %w", err)
	}
	return build.New(git.New(cfg.GitDepth), store, publisher, ws, build.Options{
		BuildCommand: cfg.BuildCommand,
		OutputDir:    cfg.OutputDir,
		BatchSize:    cfg.UploadBatch,
		BuildTimeout: cfg.BuildTimeout,
		GitTimeout:   cfg.GitTimeout,
	}, logger)
}

// LocalRunner adapts a build service to the local executor.
func LocalRunner(svc build.Service) local.RunFunc {
	return func(ctx context.Context, projectID, sourceURL string) error {
		_, err := svc.Run(ctx, build.Request{ProjectID: projectID, SourceURL: sourceURL})
		return err
	}
}

// OpenExecutor builds the configured executor. The local backend runs builds
// in-process against b and the configured store.
func OpenExecutor(ctx context.Context, cfg config.APIConfig, b broker.Broker, logger *slog.Logger) (executor.Executor, Closer, error) {
	env := executor.PassthroughEnv(cfg.BuilderEnv, os.LookupEnv)
	switch backend(cfg.ExecutorBackend) {
	case "docker":
		cli, err := docker.NewClient(cfg.DockerHost)
		if err != nil {
			return nil, noop, err
		}
		exec, err := docker.New(cli, docker.Options{Image: cfg.BuilderImage, Network: cfg.BuilderNetwork, Env: env}, logger)
		if err != nil {
			cli.Close()
			return nil, noop, err
		}
		if err := exec.Ping(ctx); err != nil {
			logger.Warn("docker ping failed", "error", err)
		}
		return exec, func() { exec.Close() }, nil
	case "kubernetes":
		clientset, err := kubernetes.NewClientset(cfg.KubeConfig)
		if err != nil {
			return nil, noop, err
		}
		exec, err := kubernetes.New(clientset, kubernetes.Options{
			Namespace: cfg.KubeNamespace,
			Image:     cfg.BuilderImage,
			Env:       env,
			TTL:       cfg.JobTTL,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return exec, noop, nil
	case "local":
		store, err := OpenStore(ctx, cfg.Builder.Storage)
		if err != nil {
			return nil, noop, err
		}
		svc, err := NewBuildService(cfg.Builder, store, b, logger.With("component", "builder"))
		if err != nil {
			return nil, noop, err
		}
		exec, err := local.New(LocalRunner(svc), logger)
		if err != nil {
			return nil, noop, err
		}
		return exec, exec.Wait, nil
	default:
		return nil, noop, fmt.Errorf("unknown executor backend %q", cfg.ExecutorBackend)
	}
}

func backend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
