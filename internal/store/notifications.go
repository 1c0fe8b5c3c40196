package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// InsertNotification persists a notification event. ID and CreatedAt are
// filled in on the event.
func (s *Store) InsertNotification(ctx context.Context, ev *models.NotificationEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Priority == "" {
		ev.Priority = models.PriorityNormal
	}

	var payload interface{}
	if len(ev.Payload) > 0 {
		payload = []byte(ev.Payload)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, payload, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.ID, ev.UserID, ev.Type, ev.Title, ev.Message, payload, ev.Priority, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.NotificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, payload, priority, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var events []models.NotificationEvent
	for rows.Next() {
		var ev models.NotificationEvent
		var payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Type, &ev.Title, &ev.Message, &payload, &ev.Priority, &ev.IsRead, &ev.ReadAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UnreadCount returns the user's unread notification count from the durable
// store. The redis counter is a fast-access cache over this value.
func (s *Store) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flips one notification's read flag. Returns
// ErrNotFound if the row does not exist, is not the user's, or was already
// read.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $1
		WHERE id = $2 AND user_id = $3 AND NOT is_read
	`, at, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead flips every unread notification for a user and
// returns how many were flipped.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $1
		WHERE user_id = $2 AND NOT is_read
	`, at, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected()
}
