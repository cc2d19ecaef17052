// Package local runs build workers as detached goroutines inside the API
// process. Intended for development and end-to-end tests; builds share the
// host filesystem and are not isolated.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/executor"
)

const backendName = "local"

// RunFunc executes one build to completion.
type RunFunc func(ctx context.Context, projectID, sourceURL string) error

// Executor launches RunFunc in the background.
type Executor struct {
	run    RunFunc
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ executor.Executor = (*Executor)(nil)

// New wraps run.
func New(run RunFunc, logger *slog.Logger) (*Executor, error) {
	if run == nil {
		return nil, fmt.Errorf("local executor requires a run function")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{run: run, logger: logger}, nil
}

// Launch starts the build on a context detached from ctx, so the request
// that triggered it can complete without cancelling the build.
func (e *Executor) Launch(ctx context.Context, spec executor.Spec) (executor.Handle, error) {
	if err := spec.Validate(); err != nil {
		return executor.Handle{}, err
	}
	runID := uuid.NewString()
	runCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		log := e.logger.With("project_id", spec.ProjectID, "run_id", runID)
		log.Info("local build started")
		if err := e.run(runCtx, spec.ProjectID, spec.SourceURL); err != nil {
			log.Warn("local build failed", "error", err)
			return
		}
		log.Info("local build finished")
	}()
	return executor.Handle{ID: runID, Backend: backendName, LaunchedAt: time.Now().UTC()}, nil
}

// Wait blocks until every launched build returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}
