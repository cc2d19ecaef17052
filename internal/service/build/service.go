// Package build implements the build worker: clone, build, collect and upload
// a project's static output while streaming progress to its log channel.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/broker"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/workspace"
)

// Stage names a step of the build state machine.
type Stage string

const (
	StageInit     Stage = "init"
	StageBuild    Stage = "build"
	StageCollect  Stage = "collect"
	StageUpload   Stage = "upload"
	StageFinalize Stage = "finalize"
)

const (
	defaultBuildCommand = "npm install && npm run build"
	defaultOutputDir    = "dist"
	defaultBatchSize    = 10
	publishTimeout      = 5 * time.Second
)

var (
	errMissingProjectID = errors.New("project id required")
	errMissingSourceURL = errors.New("repository url required")
)

// Cloner fetches a repository into dest.
type Cloner interface {
	Clone(ctx context.Context, repoURL, dest string, progress io.Writer) (string, error)
}

// Options tunes a Service.
type Options struct {
	BuildCommand string
	OutputDir    string
	BatchSize    int
	// BuildTimeout and GitTimeout are off when zero: a build otherwise runs
	// until its command exits or the worker is killed.
	BuildTimeout time.Duration
	GitTimeout   time.Duration
}

// Request identifies the project to build.
type Request struct {
	ProjectID string
	SourceURL string
}

// Result summarizes a completed build.
type Result struct {
	ProjectID string
	Commit    string
	Files     int
	Report    UploadReport
	Duration  time.Duration
}

// StageError reports the stage at which a build stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Service runs builds. It holds no per-build state and may run several
// builds concurrently, each on its own log channel and workspace.
type Service struct {
	cloner    Cloner
	store     storage.Store
	publisher broker.Publisher
	workspace *workspace.Manager
	opts      Options
	logger    *slog.Logger
}

// New creates a build service.
func New(cloner Cloner, store storage.Store, publisher broker.Publisher, ws *workspace.Manager, opts Options, logger *slog.Logger) (Service, error) {
	if cloner == nil || store == nil || publisher == nil || ws == nil {
		return Service{}, fmt.Errorf("build service requires cloner, store, publisher and workspace")
	}
	if strings.TrimSpace(opts.BuildCommand) == "" {
		opts.BuildCommand = defaultBuildCommand
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		opts.OutputDir = defaultOutputDir
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{cloner: cloner, store: store, publisher: publisher, workspace: ws, opts: opts, logger: logger}, nil
}

// Run executes Init, Build, Collect, Upload and Finalize for req. Every run
// ends with exactly one terminal event on the project's log channel unless
// the worker process itself dies.
func (s Service) Run(ctx context.Context, req Request) (Result, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if req.ProjectID == "" {
		return Result{}, errMissingProjectID
	}
	if req.SourceURL == "" {
		return Result{}, errMissingSourceURL
	}

	started := time.Now()
	ctx, cancel := withOptionalTimeout(ctx, s.opts.BuildTimeout)
	defer cancel()

	r := &run{
		svc:    s,
		req:    req,
		pub:    broker.Bind(s.publisher, domain.LogChannel(req.ProjectID)),
		logger: s.logger.With("project_id", req.ProjectID),
	}
	defer r.pub.Close()

	result, err := r.execute(ctx)
	result.ProjectID = req.ProjectID
	result.Duration = time.Since(started)
	if err != nil {
		return result, err
	}
	r.logger.Info("build finished", "status", domain.StatusReady, "files", result.Files, "failed_uploads", result.Report.Failed, "duration", result.Duration)
	return result, nil
}

type run struct {
	svc    Service
	req    Request
	pub    *broker.ChannelPublisher
	logger *slog.Logger
}

func (r *run) execute(ctx context.Context) (Result, error) {
	var result Result

	// Init
	workdir, err := r.svc.workspace.Prepare(r.req.ProjectID)
	if err != nil {
		return result, r.fail(StageInit, err)
	}
	defer func() {
		if err := r.svc.workspace.Cleanup(workdir); err != nil {
			r.logger.Warn("workspace cleanup failed", "error", err)
		}
	}()
	r.logger.Info("build started", "status", domain.StatusBuilding, "repo_url", r.req.SourceURL)
	r.publish(domain.LineBuildStarted)

	// Build
	commit, err := r.clone(ctx, workdir)
	if err != nil {
		return result, r.fail(StageBuild, err)
	}
	result.Commit = commit
	if err := r.build(ctx, workdir); err != nil {
		return result, r.fail(StageBuild, err)
	}
	r.publish("Build Complete")

	// Collect
	files, err := collect(workdir, r.svc.opts.OutputDir)
	if err != nil {
		return result, r.fail(StageCollect, err)
	}
	result.Files = len(files)

	// Upload
	r.publish("Starting to upload")
	report, err := r.upload(ctx, files)
	result.Report = report
	if err != nil {
		return result, r.fail(StageUpload, err)
	}

	// Finalize
	r.publish(fmt.Sprintf("uploaded %d of %d files", report.Uploaded, len(files)))
	r.publish(domain.LineDone)
	return result, nil
}

func (r *run) clone(ctx context.Context, workdir string) (string, error) {
	gitCtx, cancel := withOptionalTimeout(ctx, r.svc.opts.GitTimeout)
	defer cancel()
	r.publish("cloning " + r.req.SourceURL)
	progress := newLineWriter(r.publish)
	commit, err := r.svc.cloner.Clone(gitCtx, r.req.SourceURL, workdir, progress)
	progress.Flush()
	if err != nil {
		return "", err
	}
	r.logger.Info("repository cloned", "commit", commit)
	return commit, nil
}

// fail publishes the reason and the terminal failure line, and wraps err in
// a StageError.
func (r *run) fail(stage Stage, err error) error {
	r.logger.Error("build stage failed", "status", domain.StatusFailed, "stage", stage, "error", err)
	r.publish("error: " + err.Error())
	r.publish(domain.FailedLine(string(stage)))
	return &StageError{Stage: stage, Err: err}
}

// publish sends one log line. Failures are logged and otherwise ignored so a
// broker outage never stops a build.
func (r *run) publish(line string) {
	payload, err := domain.LogEvent{Log: line}.Marshal()
	if err != nil {
		r.logger.Warn("encode log event failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.pub.Publish(ctx, payload); err != nil {
		r.logger.Warn("publish log event failed", "channel", r.pub.Channel(), "error", err)
	}
}

// withOptionalTimeout bounds ctx only when d is positive.
func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
