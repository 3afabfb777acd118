package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hray3182/CoachLine/internal/models"
)

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return newTestStore(t) })
}

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rules.db"), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMalformedPeriodicityStaysLoadable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := morningRule(1, base)
	if err := s.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notification_rules SET periodicity = 'weekly:9' WHERE id = ?`, r.ID); err != nil {
		t.Fatal(err)
	}

	due, err := s.FindDue(ctx, base)
	if err != nil {
		t.Fatalf("a corrupt rule must not fail the query: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due = %d", len(due))
	}
	if err := due[0].Periodicity.Validate(); !errors.Is(err, models.ErrInvalidPeriodicity) {
		t.Fatalf("Validate = %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")

	s, err := OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, morningRule(1, base)); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	list, err := s.ListByOwner(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("after reopen: %v, %v", list, err)
	}
}
