package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/app/migrate"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/config"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/logger"
)

// Globals are shared by every subcommand.
type Globals struct {
	DatabaseURL string        `name:"database-url" env:"DATABASE_URL" help:"Postgres connection string; defaults to the API configuration."`
	Timeout     time.Duration `default:"1m" help:"Command timeout."`
}

type upCmd struct{}

func (upCmd) Run(ctx context.Context, r *migrate.Runner) error {
	return r.Ensure(ctx)
}

type statusCmd struct{}

func (statusCmd) Run(ctx context.Context, r *migrate.Runner) error {
	return r.Status(ctx)
}

type downCmd struct {
	Target int64 `help:"Target version; zero rolls back the latest migration only."`
}

func (c downCmd) Run(ctx context.Context, r *migrate.Runner) error {
	return r.Down(ctx, c.Target)
}

type CLI struct {
	Globals

	Up     upCmd     `cmd:"" default:"1" help:"Apply pending migrations."`
	Status statusCmd `cmd:"" help:"Show applied and pending migrations."`
	Down   downCmd   `cmd:"" help:"Roll back migrations."`
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.LoadAPIConfig()
	var cli CLI
	kctx := kong.Parse(&cli, kong.Name("migrate"), kong.Description("Manage project registry migrations."))
	if cli.DatabaseURL == "" {
		cli.DatabaseURL = cfg.DatabaseURL
	}

	log := logger.New("migrate", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cli.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := run(ctx, kctx, pool, log); err != nil {
		log.Error("migration command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, kctx *kong.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	runner, err := migrate.New(pool, log)
	if err != nil {
		return err
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		return err
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(runner)
}
