package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/CoachLine/internal/database"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

const sqliteSelectRule = `SELECT r.id, r.owner_id, r.kind, r.time_of_day, r.periodicity, r.next_execution,
		r.last_execution, r.active, r.sent, r.escalated_on, r.created_at,
		c.name AS custom_name, c.message_body AS custom_body, c.created_at AS custom_created_at
	FROM notification_rules r
	LEFT JOIN custom_contents c ON c.rule_id = r.id`

// SQLite is a Store over an embedded SQLite file. Timestamps are stored as
// unix seconds, escalation dates as YYYY-MM-DD.
type SQLite struct {
	db *sqlx.DB
}

func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLite, error) {
	db, err := database.OpenSQLite(ctx, path, log)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteRule struct {
	ID              int64          `db:"id"`
	OwnerID         int64          `db:"owner_id"`
	Kind            string         `db:"kind"`
	TimeOfDay       string         `db:"time_of_day"`
	Periodicity     string         `db:"periodicity"`
	NextExecution   int64          `db:"next_execution"`
	LastExecution   sql.NullInt64  `db:"last_execution"`
	Active          int64          `db:"active"`
	Sent            int64          `db:"sent"`
	EscalatedOn     sql.NullString `db:"escalated_on"`
	CreatedAt       int64          `db:"created_at"`
	CustomName      sql.NullString `db:"custom_name"`
	CustomBody      sql.NullString `db:"custom_body"`
	CustomCreatedAt sql.NullInt64  `db:"custom_created_at"`
}

func (row sqliteRule) toModel() models.NotificationRule {
	rule := models.NotificationRule{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		Kind:          models.Kind(row.Kind),
		NextExecution: time.Unix(row.NextExecution, 0).UTC(),
		LastExecution: fromNullUnix(row.LastExecution),
		Active:        row.Active != 0,
		Sent:          row.Sent != 0,
		CreatedAt:     time.Unix(row.CreatedAt, 0).UTC(),
	}
	decodeSchedule(&rule, row.TimeOfDay, row.Periodicity)
	if row.EscalatedOn.Valid {
		if d, err := time.Parse(dateLayout, row.EscalatedOn.String); err == nil {
			rule.EscalatedOn = &d
		}
	}
	if row.CustomName.Valid {
		rule.Custom = &models.CustomContent{
			Name:        row.CustomName.String,
			MessageBody: row.CustomBody.String,
		}
		if t := fromNullUnix(row.CustomCreatedAt); t != nil {
			rule.Custom.CreatedAt = *t
		}
	}
	return rule
}

func (s *SQLite) FindDue(ctx context.Context, now time.Time) ([]models.NotificationRule, error) {
	return s.selectRules(ctx,
		sqliteSelectRule+` WHERE r.active = 1 AND r.sent = 0 AND r.next_execution <= ?
		 ORDER BY r.next_execution ASC`,
		now.Unix(),
	)
}

func (s *SQLite) FindDueByKinds(ctx context.Context, now time.Time, kinds []models.Kind) ([]models.NotificationRule, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(
		sqliteSelectRule+` WHERE r.active = 1 AND r.sent = 0 AND r.next_execution <= ? AND r.kind IN (?)
		 ORDER BY r.next_execution ASC`,
		now.Unix(), kindStrings(kinds),
	)
	if err != nil {
		return nil, err
	}
	return s.selectRules(ctx, s.db.Rebind(q), args...)
}

func (s *SQLite) MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time, next *time.Time) error {
	if next != nil {
		return s.exec(ctx, fmt.Sprintf("rule %d", id),
			`UPDATE notification_rules SET last_execution = ?, next_execution = ?, sent = 0 WHERE id = ?`,
			deliveredAt.Unix(), next.Unix(), id,
		)
	}
	return s.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET last_execution = ?, sent = 1 WHERE id = ?`,
		deliveredAt.Unix(), id,
	)
}

func (s *SQLite) MarkEscalated(ctx context.Context, id int64, date time.Time) error {
	return s.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET escalated_on = ? WHERE id = ?`,
		date.Format(dateLayout), id,
	)
}

func (s *SQLite) ToggleActive(ctx context.Context, id int64) (bool, error) {
	var active int64
	err := s.db.QueryRowxContext(ctx,
		`UPDATE notification_rules SET active = 1 - active WHERE id = ? RETURNING active`,
		id,
	).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return active != 0, err
}

func (s *SQLite) Reschedule(ctx context.Context, id int64, tod models.TimeOfDay, next time.Time) error {
	return s.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET time_of_day = ?, next_execution = ?, sent = 0 WHERE id = ?`,
		tod.String(), next.Unix(), id,
	)
}

func (s *SQLite) SetNextExecution(ctx context.Context, id int64, next time.Time) error {
	return s.exec(ctx, fmt.Sprintf("rule %d", id),
		`UPDATE notification_rules SET next_execution = ? WHERE id = ?`,
		next.Unix(), id,
	)
}

func (s *SQLite) MarkSent(ctx context.Context, ownerID int64, kind models.Kind) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_rules SET sent = 1 WHERE owner_id = ? AND kind = ?`,
		ownerID, string(kind),
	)
	return err
}

func (s *SQLite) Create(ctx context.Context, rule *models.NotificationRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var id int64
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO notification_rules (owner_id, kind, time_of_day, periodicity, next_execution, active, sent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		rule.OwnerID, string(rule.Kind), rule.TimeOfDay.String(), rule.Periodicity.String(),
		rule.NextExecution.Unix(), boolToInt(rule.Active), boolToInt(rule.Sent), now.Unix(),
	).Scan(&id)
	if err != nil {
		return err
	}

	if rule.Custom != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO custom_contents (rule_id, name, message_body, created_at) VALUES (?, ?, ?, ?)`,
			id, rule.Custom.Name, rule.Custom.MessageBody, now.Unix(),
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	rule.ID = id
	rule.CreatedAt = time.Unix(now.Unix(), 0).UTC()
	if rule.Custom != nil {
		rule.Custom.CreatedAt = rule.CreatedAt
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, rule *models.NotificationRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.Kind == models.KindCustom {
		return s.Create(ctx, rule)
	}

	var id, created int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO notification_rules (owner_id, kind, time_of_day, periodicity, next_execution, active, sent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT (owner_id, kind) WHERE kind <> 'custom' DO UPDATE SET
			time_of_day = excluded.time_of_day,
			periodicity = excluded.periodicity,
			next_execution = excluded.next_execution,
			active = excluded.active,
			sent = 0,
			last_execution = NULL,
			escalated_on = NULL
		 RETURNING id, created_at`,
		rule.OwnerID, string(rule.Kind), rule.TimeOfDay.String(), rule.Periodicity.String(),
		rule.NextExecution.Unix(), boolToInt(rule.Active), time.Now().UTC().Unix(),
	).Scan(&id, &created)
	if err != nil {
		return err
	}

	rule.ID = id
	rule.CreatedAt = time.Unix(created, 0).UTC()
	rule.Sent = false
	rule.LastExecution = nil
	rule.EscalatedOn = nil
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM custom_contents WHERE rule_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notification_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, id int64) (*models.NotificationRule, error) {
	var row sqliteRule
	err := s.db.GetContext(ctx, &row, sqliteSelectRule+` WHERE r.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rule := row.toModel()
	return &rule, nil
}

func (s *SQLite) ListByOwner(ctx context.Context, ownerID int64) ([]models.NotificationRule, error) {
	return s.selectRules(ctx, sqliteSelectRule+` WHERE r.owner_id = ? ORDER BY r.id ASC`, ownerID)
}

func (s *SQLite) ListActive(ctx context.Context) ([]models.NotificationRule, error) {
	return s.selectRules(ctx, sqliteSelectRule+` WHERE r.active = 1 ORDER BY r.id ASC`)
}

func (s *SQLite) Register(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, chat_id, full_name, active, created_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (user_id) DO UPDATE SET chat_id = excluded.chat_id, full_name = excluded.full_name, active = 1`,
		user.UserID, user.ChatID, user.FullName, time.Now().UTC().Unix(),
	)
	if err != nil {
		return err
	}
	user.Active = true
	return nil
}

// Deactivate marks a user unreachable so its rules resolve to ErrNotFound.
func (s *SQLite) Deactivate(ctx context.Context, userID int64) error {
	return s.exec(ctx, fmt.Sprintf("user %d", userID), `UPDATE users SET active = 0 WHERE user_id = ?`, userID)
}

func (s *SQLite) Resolve(ctx context.Context, ownerID int64) (int64, error) {
	var row struct {
		ChatID int64 `db:"chat_id"`
		Active int64 `db:"active"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT chat_id, active FROM users WHERE user_id = ?`, ownerID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.Active == 0) {
		return 0, fmt.Errorf("user %d: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return row.ChatID, nil
}

func (s *SQLite) exec(ctx context.Context, subject, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return nil
}

func (s *SQLite) selectRules(ctx context.Context, query string, args ...any) ([]models.NotificationRule, error) {
	var rows []sqliteRule
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	rules := make([]models.NotificationRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toModel())
	}
	return rules, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
