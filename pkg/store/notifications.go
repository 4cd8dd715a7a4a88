package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// Notification is one announcement. A nil/empty UserID means broadcast.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	Read      bool
	CreatedAt time.Time
}

// CreateNotification writes an announcement. userID empty broadcasts to
// everyone.
func (s *Store) CreateNotification(ctx context.Context, userID, title, body string) (Notification, error) {
	if title == "" {
		return Notification{}, core.NewInvalidRequestErrorWithParam("title is required", "title")
	}
	n := Notification{ID: uuid.NewString(), UserID: userID, Title: title, Body: body}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, title, body)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4)
		RETURNING created_at`,
		n.ID, userID, title, body).Scan(&n.CreatedAt)
	if err != nil {
		return Notification{}, core.NewPersistenceError("notification create failed", err)
	}
	return n, nil
}

// ListNotifications returns the notifications visible to a user (their own
// plus broadcasts), newest first, with per-user read state.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, COALESCE(n.user_id::text, ''), n.title, n.body,
			(r.notification_id IS NOT NULL), n.created_at
		FROM notifications n
		LEFT JOIN notification_reads r
			ON r.notification_id = n.id AND r.user_id = $1
		WHERE n.user_id IS NULL OR n.user_id = $1
		ORDER BY n.created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead records that a user saw a notification. Idempotent.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_reads (notification_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		notificationID, userID)
	if err != nil {
		return core.NewPersistenceError("notification read mark failed", err)
	}
	return nil
}
