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

var publishTaskColumnNames = []string{
	"id", "content_id", "platform_account_id", "status",
	"platform_post_id", "platform_post_url", "error_message",
	"attempts", "scheduled_at", "published_at", "created_at",
}

func TestCreatePublishTaskReturnsPendingRow(t *testing.T) {
	s, mock := newMockStore(t)
	contentID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery("INSERT INTO publishing_logs").
		WithArgs(sqlmock.AnyArg(), contentID, accountID, string(models.PublishPending), nil).
		WillReturnRows(sqlmock.NewRows(publishTaskColumnNames).AddRow(
			uuid.New(), contentID, accountID, string(models.PublishPending),
			"", "", "", 0, nil, nil, time.Now(),
		))

	task, err := s.CreatePublishTask(context.Background(), contentID, accountID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PublishPending, task.Status)
	assert.Zero(t, task.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublishCancelledOnlyNonTerminal(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE publishing_logs").
		WithArgs(string(models.PublishCancelled), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.MarkPublishCancelled(context.Background(), id))

	// A second cancel, or cancelling a finished task, touches no rows.
	mock.ExpectExec("UPDATE publishing_logs").
		WithArgs(string(models.PublishCancelled), id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.MarkPublishCancelled(context.Background(), id), ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublishSuccessRecordsPostRef(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE publishing_logs").
		WithArgs(string(models.PublishSuccess), "post-123", "https://instagram.com/post-123", at, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkPublishSuccess(context.Background(), id, "post-123", "https://instagram.com/post-123", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasOpenPublishTask(t *testing.T) {
	s, mock := newMockStore(t)
	contentID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(contentID, accountID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	open, err := s.HasOpenPublishTask(context.Background(), contentID, accountID)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestGetPlatformAccountNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM platform_accounts").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "platform", "account_name", "access_token", "token_expires_at", "active"}))

	_, err := s.GetPlatformAccount(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}
