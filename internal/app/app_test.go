package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/config"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor/local"
)

func TestOpenBackendsRejectUnknownNames(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := OpenBroker(ctx, config.BrokerConfig{Backend: "kafka"}, log); err == nil {
		t.Fatalf("expected unknown broker error")
	}
	if _, err := OpenStore(ctx, config.StorageConfig{Backend: "gcs"}); err == nil {
		t.Fatalf("expected unknown storage error")
	}
	if _, closeFn, err := OpenRegistry(ctx, config.APIConfig{RegistryBackend: "mongo"}, log); err == nil || closeFn == nil {
		t.Fatalf("expected unknown registry error with a non-nil closer")
	}
	if _, closeFn, err := OpenExecutor(ctx, config.APIConfig{ExecutorBackend: "nomad"}, nil, log); err == nil || closeFn == nil {
		t.Fatalf("expected unknown executor error with a non-nil closer")
	}
}

func TestOpenMemoryBackends(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	b, err := OpenBroker(ctx, config.BrokerConfig{Backend: " Memory "}, log)
	if err != nil {
		t.Fatalf("open broker: %v", err)
	}
	defer b.Close()
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("ping broker: %v", err)
	}

	if _, err := OpenStore(ctx, config.StorageConfig{Backend: "memory"}); err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := OpenStore(ctx, config.StorageConfig{Backend: "fs", Dir: t.TempDir()}); err != nil {
		t.Fatalf("open fs store: %v", err)
	}

	repo, closeRepo, err := OpenRegistry(ctx, config.APIConfig{RegistryBackend: "memory"}, log)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer closeRepo()
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping registry: %v", err)
	}

	cfg := config.APIConfig{
		ExecutorBackend: "local",
		Builder: config.BuilderConfig{
			Workdir: t.TempDir(),
			Storage: config.StorageConfig{Backend: "memory"},
		},
	}
	exec, closeExec, err := OpenExecutor(ctx, cfg, b, log)
	if err != nil {
		t.Fatalf("open executor: %v", err)
	}
	defer closeExec()
	if _, ok := exec.(*local.Executor); !ok {
		t.Fatalf("expected local executor, got %T", exec)
	}
}
