package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/repository/memory"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/slug"
)

type stubExecutor struct {
	mu    sync.Mutex
	specs []executor.Spec
	err   error
}

func (e *stubExecutor) Launch(ctx context.Context, spec executor.Spec) (executor.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return executor.Handle{}, e.err
	}
	e.specs = append(e.specs, spec)
	return executor.Handle{ID: "run-1", Backend: "stub", LaunchedAt: time.Now()}, nil
}

type sequenceSlugs struct {
	mu   sync.Mutex
	ids  []string
	next int
}

func (s *sequenceSlugs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ids[s.next%len(s.ids)]
	s.next++
	return id
}

func newTestService(repo *memory.Repository, exec executor.Executor, slugs SlugGenerator, opts Options) Service {
	return New(repo, exec, slugs, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateQueuesProject(t *testing.T) {
	repo := memory.New()
	exec := &stubExecutor{}
	svc := newTestService(repo, exec, &sequenceSlugs{ids: []string{"calm-red-fox"}}, Options{ServingDomain: "localhost:8000"})

	created, err := svc.Create(context.Background(), "  https://github.com/u/r  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Project.ID != "calm-red-fox" || created.Project.Status != domain.StatusQueued {
		t.Fatalf("unexpected project %+v", created.Project)
	}
	if created.URL != "http://calm-red-fox.localhost:8000" {
		t.Fatalf("unexpected url %s", created.URL)
	}
	if created.Channel != "logs:calm-red-fox" {
		t.Fatalf("unexpected channel %s", created.Channel)
	}
	if len(exec.specs) != 1 || exec.specs[0].SourceURL != "https://github.com/u/r" {
		t.Fatalf("unexpected launches %+v", exec.specs)
	}
	if _, err := svc.Get(context.Background(), "calm-red-fox"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestCreateRejectsInvalidSourceURL(t *testing.T) {
	exec := &stubExecutor{}
	svc := newTestService(memory.New(), exec, slug.New(), Options{})
	for raw, want := range map[string]error{
		"":                       ErrInvalidSourceURL,
		"   ":                    ErrInvalidSourceURL,
		"not a url":              ErrMalformedSourceURL,
		"ftp://example.com/repo": ErrMalformedSourceURL,
		"https://":               ErrMalformedSourceURL,
		"/local/path":            ErrMalformedSourceURL,
	} {
		if _, err := svc.Create(context.Background(), raw); !errors.Is(err, want) {
			t.Fatalf("%q: expected %v, got %v", raw, want, err)
		}
	}
	if len(exec.specs) != 0 {
		t.Fatalf("expected no launches, got %d", len(exec.specs))
	}
}

func TestValidateSourceURLAcceptsGitForms(t *testing.T) {
	for _, raw := range []string{
		"https://github.com/u/r",
		"http://gitea.local/u/r.git",
		"ssh://git@github.com/u/r.git",
		"git://example.com/r.git",
		"git@github.com:u/r.git",
	} {
		if err := ValidateSourceURL(raw); err != nil {
			t.Fatalf("%q: unexpected error %v", raw, err)
		}
	}
}

func TestCreateRegeneratesOnCollision(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateProject(context.Background(), &domain.Project{ID: "taken-id-one"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(repo, &stubExecutor{}, &sequenceSlugs{ids: []string{"taken-id-one", "fresh-id-two"}}, Options{})

	created, err := svc.Create(context.Background(), "https://github.com/u/r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Project.ID != "fresh-id-two" {
		t.Fatalf("expected regenerated id, got %s", created.Project.ID)
	}
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateProject(context.Background(), &domain.Project{ID: "always-the-same"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exec := &stubExecutor{}
	svc := newTestService(repo, exec, &sequenceSlugs{ids: []string{"always-the-same"}}, Options{})

	if _, err := svc.Create(context.Background(), "https://github.com/u/r"); !errors.Is(err, errSlugsExhausted) {
		t.Fatalf("expected errSlugsExhausted, got %v", err)
	}
	if len(exec.specs) != 0 {
		t.Fatal("launched without a reserved id")
	}
}

func TestCreateKeepsFailedIDReserved(t *testing.T) {
	repo := memory.New()
	exec := &stubExecutor{err: errors.New("docker unavailable")}
	svc := newTestService(repo, exec, &sequenceSlugs{ids: []string{"calm-red-fox", "calm-red-fox", "other-blue-owl"}}, Options{})

	_, err := svc.Create(context.Background(), "https://github.com/u/r")
	if !errors.Is(err, ErrLaunchFailed) {
		t.Fatalf("expected ErrLaunchFailed, got %v", err)
	}
	p, err := svc.Get(context.Background(), "calm-red-fox")
	if err != nil {
		t.Fatalf("failed project should remain registered: %v", err)
	}
	if p.Status != domain.StatusFailed {
		t.Fatalf("expected status failed, got %q", p.Status)
	}

	exec.err = nil
	created, err := svc.Create(context.Background(), "https://github.com/u/r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Project.ID != "other-blue-owl" {
		t.Fatalf("failed id was handed out again: %s", created.Project.ID)
	}
}

func TestConcurrentCreatesYieldDistinctIDs(t *testing.T) {
	const n = 50
	repo := memory.New()
	exec := &stubExecutor{}
	svc := newTestService(repo, exec, slug.New(), Options{})

	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := svc.Create(context.Background(), "https://github.com/u/r")
			ids[i], errs[i] = created.Project.ID, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, id := range ids {
		if errs[i] != nil {
			t.Fatalf("create %d: %v", i, errs[i])
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(exec.specs) != n {
		t.Fatalf("expected %d launches, got %d", n, len(exec.specs))
	}
}

func TestURLPathMode(t *testing.T) {
	svc := newTestService(memory.New(), &stubExecutor{}, slug.New(), Options{ServingMode: ModePath, ServingBaseURL: "https://deploy.example.com/"})
	if got := svc.URL("calm-red-fox"); got != "https://deploy.example.com/calm-red-fox/" {
		t.Fatalf("unexpected url %s", got)
	}
}
