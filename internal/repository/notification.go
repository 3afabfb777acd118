package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/CoachLine/internal/database"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const selectRule = `SELECT r.id, r.owner_id, r.kind, r.time_of_day, r.periodicity, r.next_execution,
		r.last_execution, r.active, r.sent, r.escalated_on, r.created_at,
		c.name, c.message_body, c.created_at
	FROM notification_rules r
	LEFT JOIN custom_contents c ON c.rule_id = r.id`

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) FindDue(ctx context.Context, now time.Time) ([]models.NotificationRule, error) {
	return r.query(ctx,
		selectRule+` WHERE r.active AND NOT r.sent AND r.next_execution <= $1
		 ORDER BY r.next_execution ASC`,
		now,
	)
}

func (r *NotificationRepository) FindDueByKinds(ctx context.Context, now time.Time, kinds []models.Kind) ([]models.NotificationRule, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	return r.query(ctx,
		selectRule+` WHERE r.active AND NOT r.sent AND r.next_execution <= $1 AND r.kind = ANY($2)
		 ORDER BY r.next_execution ASC`,
		now, kindStrings(kinds),
	)
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time, next *time.Time) error {
	if next != nil {
		return r.exec(ctx, fmt.Sprintf("rule %d", id),
			`UPDATE notification_rules SET last_execution = $1, next_execution = $2, sent = FALSE WHERE id = $3`,
			deliveredAt, *next, id,
		)
	}
	return r.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET last_execution = $1, sent = TRUE WHERE id = $2`,
		deliveredAt, id,
	)
}

func (r *NotificationRepository) MarkEscalated(ctx context.Context, id int64, date time.Time) error {
	return r.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET escalated_on = $1 WHERE id = $2`,
		pgtype.Date{Time: date, Valid: true}, id,
	)
}

func (r *NotificationRepository) ToggleActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.db.Pool.QueryRow(ctx,
		`UPDATE notification_rules SET active = NOT active WHERE id = $1 RETURNING active`,
		id,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return active, err
}

func (r *NotificationRepository) Reschedule(ctx context.Context, id int64, tod models.TimeOfDay, next time.Time) error {
	return r.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET time_of_day = $1, next_execution = $2, sent = FALSE WHERE id = $3`,
		tod.String(), next, id,
	)
}

func (r *NotificationRepository) SetNextExecution(ctx context.Context, id int64, next time.Time) error {
	return r.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET next_execution = $1 WHERE id = $2`,
		next, id,
	)
}

func (r *NotificationRepository) MarkSent(ctx context.Context, ownerID int64, kind models.Kind) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notification_rules SET sent = TRUE WHERE owner_id = $1 AND kind = $2`,
		ownerID, string(kind),
	)
	return err
}

func (r *NotificationRepository) Create(ctx context.Context, rule *models.NotificationRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO notification_rules (owner_id, kind, time_of_day, periodicity, next_execution, active, sent)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			rule.OwnerID, string(rule.Kind), rule.TimeOfDay.String(), rule.Periodicity.String(),
			rule.NextExecution, rule.Active, rule.Sent,
		).Scan(&rule.ID, &rule.CreatedAt)
		if err != nil {
			return err
		}
		if rule.Custom == nil {
			return nil
		}
		return tx.QueryRow(ctx,
			`INSERT INTO custom_contents (rule_id, name, message_body) VALUES ($1, $2, $3)
			 RETURNING created_at`,
			rule.ID, rule.Custom.Name, rule.Custom.MessageBody,
		).Scan(&rule.Custom.CreatedAt)
	})
}

func (r *NotificationRepository) Upsert(ctx context.Context, rule *models.NotificationRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.Kind == models.KindCustom {
		return r.Create(ctx, rule)
	}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO notification_rules (owner_id, kind, time_of_day, periodicity, next_execution, active, sent)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		 ON CONFLICT (owner_id, kind) WHERE kind <> 'custom' DO UPDATE SET
			time_of_day = EXCLUDED.time_of_day,
			periodicity = EXCLUDED.periodicity,
			next_execution = EXCLUDED.next_execution,
			active = EXCLUDED.active,
			sent = FALSE,
			last_execution = NULL,
			escalated_on = NULL
		 RETURNING id, created_at`,
		rule.OwnerID, string(rule.Kind), rule.TimeOfDay.String(), rule.Periodicity.String(),
		rule.NextExecution, rule.Active,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return err
	}
	rule.Sent = false
	rule.LastExecution = nil
	rule.EscalatedOn = nil
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, fmt.Sprintf("rule %d", id), `DELETE FROM notification_rules WHERE id = $1`, id)
}

func (r *NotificationRepository) Get(ctx context.Context, id int64) (*models.NotificationRule, error) {
	rules, err := r.query(ctx, selectRule+` WHERE r.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return &rules[0], nil
}

func (r *NotificationRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.NotificationRule, error) {
	return r.query(ctx, selectRule+` WHERE r.owner_id = $1 ORDER BY r.id ASC`, ownerID)
}

func (r *NotificationRepository) ListActive(ctx context.Context) ([]models.NotificationRule, error) {
	return r.query(ctx, selectRule+` WHERE r.active ORDER BY r.id ASC`)
}

func (r *NotificationRepository) exec(ctx context.Context, subject, sql string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return nil
}

func (r *NotificationRepository) query(ctx context.Context, sql string, args ...any) ([]models.NotificationRule, error) {
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.NotificationRule
	for rows.Next() {
		var (
			rule              models.NotificationRule
			kind, tod, period string
			escalatedOn       pgtype.Date
			name, body        *string
			customCreatedAt   *time.Time
		)
		if err := rows.Scan(&rule.ID, &rule.OwnerID, &kind, &tod, &period, &rule.NextExecution,
			&rule.LastExecution, &rule.Active, &rule.Sent, &escalatedOn, &rule.CreatedAt,
			&name, &body, &customCreatedAt); err != nil {
			return nil, err
		}
		rule.Kind = models.Kind(kind)
		decodeSchedule(&rule, tod, period)
		if escalatedOn.Valid {
			d := models.DateOf(escalatedOn.Time, time.UTC)
			rule.EscalatedOn = &d
		}
		if name != nil {
			rule.Custom = &models.CustomContent{Name: *name}
			if body != nil {
				rule.Custom.MessageBody = *body
			}
			if customCreatedAt != nil {
				rule.Custom.CreatedAt = *customCreatedAt
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
