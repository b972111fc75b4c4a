package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

// DefaultDir is where create writes new files, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migration files under dir, or the set compiled into the
// binary when dir is empty.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return os.DirFS(dir), nil
}

// Runner applies goose migrations to Postgres and logs each step.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

// NewRunner builds a runner over db. The caller keeps ownership of db.
func NewRunner(db *sql.DB, dir string, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := Source(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Exec runs one of up, down, redo, status or version. version needs target.
func (r *Runner) Exec(ctx context.Context, command, target string) error {
	switch command {
	case "up":
		results, err := r.provider.Up(ctx)
		r.logResults(ctx, results...)
		return wrap("up", err)
	case "down":
		result, err := r.provider.Down(ctx)
		r.logResults(ctx, result)
		return wrap("down", err)
	case "redo":
		down, err := r.provider.Down(ctx)
		r.logResults(ctx, down)
		if err != nil {
			return wrap("redo down", err)
		}
		up, err := r.provider.UpByOne(ctx)
		r.logResults(ctx, up)
		return wrap("redo up", err)
	case "status":
		return r.status(ctx)
	case "version":
		return r.migrateTo(ctx, target)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	return r.Exec(ctx, "up", "")
}

func (r *Runner) migrateTo(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("target version is required")
	}
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == version:
		return nil
	case current < version:
		results, err := r.provider.UpTo(ctx, version)
		r.logResults(ctx, results...)
		return wrap(fmt.Sprintf("up-to %d", version), err)
	default:
		results, err := r.provider.DownTo(ctx, version)
		r.logResults(ctx, results...)
		return wrap(fmt.Sprintf("down-to %d", version), err)
	}
}

func (r *Runner) status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	if r.logg == nil {
		return nil
	}
	for _, st := range statuses {
		fields := map[string]any{"state": string(st.State)}
		if st.Source != nil {
			fields["version"] = st.Source.Version
			fields["path"] = st.Source.Path
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (r *Runner) logResults(ctx context.Context, results ...*goose.MigrationResult) {
	if r.logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		stepCtx := r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			r.logg.Error(stepCtx, "migration step failed", res.Error)
			continue
		}
		r.logg.Info(stepCtx, "migration applied")
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
