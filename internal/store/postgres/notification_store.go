package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// NotificationStore implements domain.NotificationStore.
type NotificationStore struct {
	pool *pgxpool.Pool
}

var _ domain.NotificationStore = (*NotificationStore)(nil)

// NewNotificationStore creates a NotificationStore backed by pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Insert(ctx context.Context, n domain.Notification) error {
	level := n.Level
	if level == "" {
		level = domain.LevelInfo
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (level, message, created_at) VALUES ($1, $2, COALESCE($3::timestamptz, NOW()))`,
		level, n.Message, nullTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("postgres: insert notification: %w", err)
	}
	return nil
}

// ListRecent returns up to limit notifications, newest first.
func (s *NotificationStore) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, level, message, created_at FROM notifications
		ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Level, &n.Message, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("postgres: delete notifications: %w", err)
	}
	return nil
}
