// Package migrate applies the project registry schema with goose.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/GeneCodeSavvy/maybe-vercel/db"
)

const (
	runTimeout  = time.Minute
	pingTimeout = 5 * time.Second
)

// Runner applies the embedded registry migrations over a pgx pool.
type Runner struct {
	pool     *pgxpool.Pool
	sqlDB    *sql.DB
	provider *goose.Provider
	log      *slog.Logger
}

// New builds a goose provider over pool and the embedded migrations.
func New(pool *pgxpool.Pool, log *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, errors.New("migrate: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}
	migrations, err := fs.Sub(db.Migrations, db.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrate: open embedded migrations: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: configure goose: %w", err)
	}
	return &Runner{pool: pool, sqlDB: sqlDB, provider: provider, log: log}, nil
}

// Ensure applies every pending migration.
func (r *Runner) Ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	results, err := r.provider.Up(ctx)
	for _, res := range results {
		r.log.Info("migration applied", "version", res.Source.Version, "duration_ms", res.Duration.Milliseconds())
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if len(results) == 0 {
		r.log.Debug("registry schema up to date")
	}
	return nil
}

// Status logs whether each known migration is applied or pending.
func (r *Runner) Status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	for _, st := range statuses {
		fields := []any{"version", st.Source.Version, "file", st.Source.Path, "state", string(st.State)}
		if !st.AppliedAt.IsZero() {
			fields = append(fields, "applied_at", st.AppliedAt.UTC().Format(time.RFC3339))
		}
		r.log.Info("migration", fields...)
	}
	return nil
}

// Down rolls back to target, or only the latest migration when target is
// zero.
func (r *Runner) Down(ctx context.Context, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	if target > 0 {
		results, err := r.provider.DownTo(ctx, target)
		for _, res := range results {
			r.log.Info("migration rolled back", "version", res.Source.Version)
		}
		if err != nil {
			return fmt.Errorf("roll back to version %d: %w", target, err)
		}
		return nil
	}
	res, err := r.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("roll back latest migration: %w", err)
	}
	r.log.Info("migration rolled back", "version", res.Source.Version)
	return nil
}

// Ping checks the pool before any migration runs.
func (r *Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the database/sql handle. The pool stays open for its owner.
func (r *Runner) Close() error {
	return r.sqlDB.Close()
}
