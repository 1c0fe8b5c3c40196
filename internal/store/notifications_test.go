package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

func TestInsertNotificationFillsDefaults(t *testing.T) {
	s, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), userID, string(models.EventNotification), "Title", "Message",
			nil, string(models.PriorityNormal), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := &models.NotificationEvent{
		UserID:  userID,
		Type:    models.EventNotification,
		Title:   "Title",
		Message: "Message",
	}
	require.NoError(t, s.InsertNotification(context.Background(), ev))

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, models.PriorityNormal, ev.Priority)
	assert.False(t, ev.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationReadGuards(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	userID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE notifications").
		WithArgs(at, id, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkNotificationRead(context.Background(), id, userID, at))

	// Another user's notification, or an already-read one, is not flipped.
	mock.ExpectExec("UPDATE notifications").
		WithArgs(at, id, userID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.MarkNotificationRead(context.Background(), id, userID, at), ErrNotFound)
}

func TestMarkAllNotificationsReadReturnsCount(t *testing.T) {
	s, mock := newMockStore(t)
	userID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE notifications").
		WithArgs(at, userID).
		WillReturnResult(sqlmock.NewResult(0, 4))

	affected, err := s.MarkAllNotificationsRead(context.Background(), userID, at)
	require.NoError(t, err)
	assert.EqualValues(t, 4, affected)
}

func TestListNotificationsScansPayload(t *testing.T) {
	s, mock := newMockStore(t)
	userID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "payload", "priority", "is_read", "read_at", "created_at"}).
		AddRow(uuid.New(), userID, string(models.EventCrisisAlert), "Crisis", "Bad comment", `{"comment_id":"abc"}`, string(models.PriorityCritical), false, nil, now).
		AddRow(uuid.New(), userID, string(models.EventNotification), "Note", "Hello", nil, string(models.PriorityNormal), true, now, now)

	mock.ExpectQuery("SELECT (.+) FROM notifications").
		WithArgs(userID, 50, 0).
		WillReturnRows(rows)

	events, err := s.ListNotifications(context.Background(), userID, 50, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"comment_id":"abc"}`, string(events[0].Payload))
	assert.Nil(t, events[1].Payload)
	assert.True(t, events[1].IsRead)
}
