package repository

import (
	"context"
	"os"
	"testing"

	"github.com/hray3182/CoachLine/internal/database"
)

// TEST_DATABASE_URI points at a disposable database; its tables are truncated.
const testDatabaseEnv = "TEST_DATABASE_URI"

func TestPostgresStore(t *testing.T) {
	uri := os.Getenv(testDatabaseEnv)
	if uri == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	runStoreContract(t, func(t *testing.T) Store { return newPostgresStore(t, uri) })
}

func newPostgresStore(t *testing.T, uri string) *Postgres {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, uri)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if _, err := db.Migrate(ctx, nil); err != nil {
		db.Close()
		t.Fatalf("migrate postgres: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, `TRUNCATE custom_contents, notification_rules, users RESTART IDENTITY CASCADE`); err != nil {
		db.Close()
		t.Fatalf("truncate postgres: %v", err)
	}
	p := NewPostgres(db)
	t.Cleanup(func() { _ = p.Close() })
	return p
}
