package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/CoachLine/internal/database"
	"github.com/hray3182/CoachLine/internal/models"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

// RuleStore persists notification rules. Every mutation touches one rule
// and is atomic.
type RuleStore interface {
	// FindDue returns active, unsent rules whose next execution is not after now.
	FindDue(ctx context.Context, now time.Time) ([]models.NotificationRule, error)
	FindDueByKinds(ctx context.Context, now time.Time, kinds []models.Kind) ([]models.NotificationRule, error)
	// MarkDelivered records a delivery. A non-nil next re-arms a recurring
	// rule; a nil next retires a one-shot rule.
	MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time, next *time.Time) error
	MarkEscalated(ctx context.Context, id int64, date time.Time) error
	ToggleActive(ctx context.Context, id int64) (bool, error)
	Reschedule(ctx context.Context, id int64, tod models.TimeOfDay, next time.Time) error
	Create(ctx context.Context, rule *models.NotificationRule) error
	// Upsert replaces the owner's rule of a non-custom kind and re-arms it.
	Upsert(ctx context.Context, rule *models.NotificationRule) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.NotificationRule, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.NotificationRule, error)
	ListActive(ctx context.Context) ([]models.NotificationRule, error)
	SetNextExecution(ctx context.Context, id int64, next time.Time) error
	MarkSent(ctx context.Context, ownerID int64, kind models.Kind) error
}

// UserDirectory maps rule owners to reachable chats.
type UserDirectory interface {
	Resolve(ctx context.Context, ownerID int64) (int64, error)
	Register(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, userID int64) error
}

// Store bundles both collaborators over one backend.
type Store interface {
	RuleStore
	UserDirectory
	Close() error
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Options struct {
	Driver      string
	DatabaseURI string
	SQLitePath  string
}

// Open connects to the backend named by opts.Driver and migrates it.
func Open(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		db, err := database.New(ctx, opts.DatabaseURI)
		if err != nil {
			return nil, err
		}
		if _, err := db.Migrate(ctx, log); err != nil {
			db.Close()
			return nil, err
		}
		return NewPostgres(db), nil
	case DriverSQLite:
		return OpenSQLite(ctx, opts.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func validateRule(rule *models.NotificationRule) error {
	if rule == nil {
		return errors.New("nil rule")
	}
	if !rule.Kind.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidKind, rule.Kind)
	}
	if err := rule.TimeOfDay.Validate(); err != nil {
		return err
	}
	if rule.IsRecurring() {
		if err := rule.Periodicity.Validate(); err != nil {
			return err
		}
	}
	if rule.Kind == models.KindCustom && rule.Custom == nil {
		return errors.New("custom rule without content")
	}
	if rule.NextExecution.IsZero() {
		return errors.New("rule without next execution")
	}
	return nil
}

// decodeSchedule turns stored text columns back into the rule schedule.
// Malformed values leave a zero periodicity so only this rule fails to
// compute its next occurrence.
func decodeSchedule(rule *models.NotificationRule, tod, periodicity string) {
	t, err := models.ParseTimeOfDay(tod)
	if err != nil {
		rule.Periodicity = models.Periodicity{}
		return
	}
	rule.TimeOfDay = t
	if p, err := models.ParsePeriodicity(periodicity); err == nil {
		rule.Periodicity = p
	}
}

func kindStrings(kinds []models.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
