package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hray3182/CoachLine/internal/database"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Register(ctx context.Context, user *models.User) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (user_id, chat_id, full_name, active) VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (user_id) DO UPDATE SET chat_id = EXCLUDED.chat_id, full_name = EXCLUDED.full_name, active = TRUE
		 RETURNING active`,
		user.UserID, user.ChatID, user.FullName,
	).Scan(&user.Active)
}

func (r *UserRepository) Deactivate(ctx context.Context, userID int64) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// Resolve returns the chat of an active user.
func (r *UserRepository) Resolve(ctx context.Context, ownerID int64) (int64, error) {
	var (
		chatID int64
		active bool
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT chat_id, active FROM users WHERE user_id = $1`,
		ownerID,
	).Scan(&chatID, &active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return 0, fmt.Errorf("user %d: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return chatID, nil
}

// Postgres is the pgx-backed Store.
type Postgres struct {
	*NotificationRepository
	*UserRepository
	db *database.DB
}

func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{
		NotificationRepository: NewNotificationRepository(db),
		UserRepository:         NewUserRepository(db),
		db:                     db,
	}
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
