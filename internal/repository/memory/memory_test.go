package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository"
)

func TestCreateProjectConflict(t *testing.T) {
	repo := New()
	ctx := context.Background()
	if err := repo.CreateProject(ctx, &domain.Project{ID: "calm-red-fox"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateProject(ctx, &domain.Project{ID: "calm-red-fox"}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSetStatusKeepsReservation(t *testing.T) {
	repo := New()
	ctx := context.Background()
	if err := repo.CreateProject(ctx, &domain.Project{ID: "calm-red-fox", Status: domain.StatusQueued}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetStatus(ctx, "calm-red-fox", domain.StatusFailed); err != nil {
		t.Fatalf("set status: %v", err)
	}
	p, err := repo.GetProject(ctx, "calm-red-fox")
	if err != nil || p.Status != domain.StatusFailed {
		t.Fatalf("expected failed project, got %+v %v", p, err)
	}
	if err := repo.CreateProject(ctx, &domain.Project{ID: "calm-red-fox"}); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("failed project id was reusable: %v", err)
	}
	if err := repo.SetStatus(ctx, "missing", domain.StatusFailed); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
