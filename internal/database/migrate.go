package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// migrationTarget is a database the embedded migrations can be applied to.
type migrationTarget interface {
	ensureTable(ctx context.Context) error
	applied(ctx context.Context, version string) (bool, error)
	apply(ctx context.Context, version, script string) error
}

// Migrate applies the Postgres migrations that have not run yet.
func (db *DB) Migrate(ctx context.Context, log *zap.Logger) ([]string, error) {
	return migrate(ctx, postgresFS, "migrations/postgres", pgTarget{db: db}, log)
}

func migrate(ctx context.Context, fsys fs.FS, dir string, target migrationTarget, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := target.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var done []string
	for _, name := range files {
		exists, err := target.applied(ctx, name)
		if err != nil {
			return done, fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return done, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := target.apply(ctx, name, string(content)); err != nil {
			return done, fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		log.Info("applied migration", zap.String("version", name))
		done = append(done, name)
	}
	return done, nil
}

type pgTarget struct {
	db *DB
}

func (t pgTarget) ensureTable(ctx context.Context) error {
	_, err := t.db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (t pgTarget) applied(ctx context.Context, version string) (bool, error) {
	var exists bool
	err := t.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
		version,
	).Scan(&exists)
	return exists, err
}

func (t pgTarget) apply(ctx context.Context, version, script string) error {
	return pgx.BeginFunc(ctx, t.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, script); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
		return err
	})
}
