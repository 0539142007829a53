// Package migrate applies the deployment schema with goose.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/db"
)

const (
	runTimeout  = time.Minute
	pingTimeout = 5 * time.Second
)

// Status describes one migration file and whether it has been applied.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Runner owns a goose provider bound to one pool. Close releases it.
type Runner struct {
	pool     *pgxpool.Pool
	db       *sql.DB
	provider *goose.Provider
	log      *slog.Logger
}

// Source picks the migration set: the embedded schema when dir is empty,
// otherwise the files under dir.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(db.Migrations, "migrations")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// New prepares a runner over pool using the migrations in source.
func New(pool *pgxpool.Pool, source fs.FS, log *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, errors.New("migrate: nil pool")
	}
	if source == nil {
		return nil, errors.New("migrate: nil migration source")
	}
	if log == nil {
		log = slog.Default()
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, source)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: configure goose: %w", err)
	}
	return &Runner{pool: pool, db: sqlDB, provider: provider, log: log.With("component", "migrate")}, nil
}

// Close releases the provider and its database handle.
func (r *Runner) Close() error {
	return errors.Join(r.provider.Close(), r.db.Close())
}

// Ping checks the pool within a short deadline.
func (r *Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Up applies every pending migration and returns the resulting version.
func (r *Runner) Up(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	pending, err := r.provider.HasPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("check pending migrations: %w", err)
	}
	if pending {
		results, err := r.provider.Up(ctx)
		r.logResults("applied", results)
		if err != nil {
			return 0, fmt.Errorf("apply migrations: %w", err)
		}
	}
	version, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	r.log.Info("schema up to date", "version", version, "applied_now", pending)
	return version, nil
}

// Down rolls back the latest migration, or every migration above target
// when target is positive.
func (r *Runner) Down(ctx context.Context, target int64) error {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if target > 0 {
		results, err := r.provider.DownTo(ctx, target)
		r.logResults("rolled back", results)
		if err != nil {
			return fmt.Errorf("roll back to version %d: %w", target, err)
		}
		return nil
	}
	res, err := r.provider.Down(ctx)
	if res != nil {
		r.logResults("rolled back", []*goose.MigrationResult{res})
	}
	if err != nil {
		return fmt.Errorf("roll back latest migration: %w", err)
	}
	return nil
}

// Status lists known migrations in version order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, Status{
			Version:   st.Source.Version,
			Path:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

func (r *Runner) logResults(verb string, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		r.log.Info("migration "+verb, "version", res.Source.Version, "path", res.Source.Path, "duration", res.Duration)
	}
}
