package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/app"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/config"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/logger"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/service/build"
)

// CLI carries the per-build inputs. The executor passes them as environment
// variables; flags exist for running a build by hand.
type CLI struct {
	ProjectID string `name:"project-id" env:"PROJECT_ID" required:"" help:"Project id; output is published under __outputs/<id>/."`
	RepoURL   string `name:"repo-url" env:"GIT_REPOSITORY__URL" required:"" help:"Git repository to build."`
	EnvFile   string `name:"env-file" default:".env" help:"Optional dotenv file loaded before configuration."`
	Verbose   bool   `short:"v" help:"Enable debug logging."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("builder"),
		kong.Description("Clone, build and publish one project."),
	)
	os.Exit(run(cli))
}

func run(cli CLI) int {
	if err := config.LoadDotEnv(cli.EnvFile); err != nil {
		slog.Warn("failed to load env file", "file", cli.EnvFile, "error", err)
	}
	cfg := config.LoadBuilderConfig()
	level := logger.ParseLevel(config.GetString("LOG_LEVEL", "info"))
	if cli.Verbose {
		level = slog.LevelDebug
	}
	log := logger.New("builder", level).With("project_id", cli.ProjectID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logBroker, err := app.OpenBroker(ctx, cfg.Broker, log)
	if err != nil {
		log.Error("failed to connect to broker", "backend", cfg.Broker.Backend, "error", err)
		return 1
	}
	defer logBroker.Close()

	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		return 1
	}

	svc, err := app.NewBuildService(cfg, store, logBroker, log)
	if err != nil {
		log.Error("failed to configure build", "error", err)
		return 1
	}

	result, err := svc.Run(ctx, build.Request{ProjectID: cli.ProjectID, SourceURL: cli.RepoURL})
	if err != nil {
		var stageErr *build.StageError
		if errors.As(err, &stageErr) {
			log.Error("build failed", "stage", stageErr.Stage, "error", stageErr.Err)
		} else {
			log.Error("build failed", "error", err)
		}
		return 1
	}
	log.Info("build published", "files", result.Files, "failed_uploads", result.Report.Failed, "commit", result.Commit)
	return 0
}
