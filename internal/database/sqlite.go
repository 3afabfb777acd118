package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the database file at path, applies the
// connection pragmas and runs the embedded SQLite migrations.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer; one connection keeps the pragmas in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	if _, err := migrate(ctx, sqliteFS, "migrations/sqlite", sqliteTarget{db: db}, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

type sqliteTarget struct {
	db *sqlx.DB
}

func (t sqliteTarget) ensureTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)
	`)
	return err
}

func (t sqliteTarget) applied(ctx context.Context, version string) (bool, error) {
	var n int
	if err := t.db.GetContext(ctx, &n, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t sqliteTarget) apply(ctx context.Context, version, script string) error {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}
