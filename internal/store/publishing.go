package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

const publishTaskColumns = `
	id, content_id, platform_account_id, status,
	COALESCE(platform_post_id, ''), COALESCE(platform_post_url, ''),
	COALESCE(error_message, ''), attempts, scheduled_at, published_at, created_at
`

func scanPublishTask(scan func(dest ...interface{}) error) (*models.PublishTask, error) {
	var t models.PublishTask
	err := scan(
		&t.ID, &t.ContentID, &t.PlatformAccountID, &t.Status,
		&t.PlatformPostID, &t.PlatformPostURL, &t.ErrorMessage,
		&t.Attempts, &t.ScheduledAt, &t.PublishedAt, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan publish task: %w", err)
	}
	return &t, nil
}

// CreatePublishTask inserts a pending publish task row. A new row is always
// created, also on manual retry, so terminal history is preserved.
func (s *Store) CreatePublishTask(ctx context.Context, contentID, accountID uuid.UUID, scheduledAt *time.Time) (*models.PublishTask, error) {
	id := uuid.New()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO publishing_logs (id, content_id, platform_account_id, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+publishTaskColumns+`
	`, id, contentID, accountID, models.PublishPending, scheduledAt)
	return scanPublishTask(row.Scan)
}

// GetPublishTask loads one publish task by id.
func (s *Store) GetPublishTask(ctx context.Context, id uuid.UUID) (*models.PublishTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+publishTaskColumns+` FROM publishing_logs WHERE id = $1
	`, id)
	return scanPublishTask(row.Scan)
}

// HasOpenPublishTask reports whether a non-terminal task already exists for
// the (content, account) pair. Used to keep periodic scans idempotent.
func (s *Store) HasOpenPublishTask(ctx context.Context, contentID, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM publishing_logs
			WHERE content_id = $1 AND platform_account_id = $2 AND status IN ('pending', 'running')
		)
	`, contentID, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open publish task: %w", err)
	}
	return exists, nil
}

// MarkPublishRunning flips the task to running and records the attempt.
func (s *Store) MarkPublishRunning(ctx context.Context, id uuid.UUID, attempt int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publishing_logs SET status = $1, attempts = $2 WHERE id = $3
	`, models.PublishRunning, attempt, id)
	if err != nil {
		return fmt.Errorf("mark publish running: %w", err)
	}
	return nil
}

// MarkPublishSuccess records a successful platform publish.
func (s *Store) MarkPublishSuccess(ctx context.Context, id uuid.UUID, postID, postURL string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publishing_logs
		SET status = $1, platform_post_id = $2, platform_post_url = $3, published_at = $4
		WHERE id = $5
	`, models.PublishSuccess, postID, postURL, at, id)
	if err != nil {
		return fmt.Errorf("mark publish success: %w", err)
	}
	return nil
}

// MarkPublishFailed records a terminal failure.
func (s *Store) MarkPublishFailed(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publishing_logs SET status = $1, error_message = $2 WHERE id = $3
	`, models.PublishFailed, message, id)
	if err != nil {
		return fmt.Errorf("mark publish failed: %w", err)
	}
	return nil
}

// MarkPublishCancelled records a cooperative cancellation. Only non-terminal
// tasks can be cancelled.
func (s *Store) MarkPublishCancelled(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE publishing_logs SET status = $1
		WHERE id = $2 AND status IN ('pending', 'running')
	`, models.PublishCancelled, id)
	if err != nil {
		return fmt.Errorf("mark publish cancelled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// PublishTasksForContent returns all publish rows for a content item, newest
// first.
func (s *Store) PublishTasksForContent(ctx context.Context, contentID uuid.UUID) ([]models.PublishTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+publishTaskColumns+`
		FROM publishing_logs WHERE content_id = $1 ORDER BY created_at DESC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("query publish tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.PublishTask
	for rows.Next() {
		t, err := scanPublishTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// GetPlatformAccount loads a platform account by id.
func (s *Store) GetPlatformAccount(ctx context.Context, id uuid.UUID) (*models.PlatformAccount, error) {
	var a models.PlatformAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, platform, account_name, access_token, token_expires_at, active
		FROM platform_accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.ClientID, &a.Platform, &a.AccountName, &a.AccessToken, &a.TokenExpiresAt, &a.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan platform account: %w", err)
	}
	return &a, nil
}

// ActiveAccountsForPlatforms returns the client's active accounts on the
// given platforms.
func (s *Store) ActiveAccountsForPlatforms(ctx context.Context, clientID uuid.UUID, platforms []string) ([]models.PlatformAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, platform, account_name, access_token, token_expires_at, active
		FROM platform_accounts
		WHERE client_id = $1 AND active AND platform = ANY($2)
	`, clientID, pq.Array(platforms))
	if err != nil {
		return nil, fmt.Errorf("query platform accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.PlatformAccount
	for rows.Next() {
		var a models.PlatformAccount
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Platform, &a.AccountName, &a.AccessToken, &a.TokenExpiresAt, &a.Active); err != nil {
			return nil, fmt.Errorf("scan platform account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListActiveAccounts returns every active platform account.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]models.PlatformAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, platform, account_name, access_token, token_expires_at, active
		FROM platform_accounts WHERE active
	`)
	if err != nil {
		return nil, fmt.Errorf("query active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.PlatformAccount
	for rows.Next() {
		var a models.PlatformAccount
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Platform, &a.AccountName, &a.AccessToken, &a.TokenExpiresAt, &a.Active); err != nil {
			return nil, fmt.Errorf("scan platform account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListExpiringAccounts returns active accounts whose token expires before
// the given deadline.
func (s *Store) ListExpiringAccounts(ctx context.Context, before time.Time) ([]models.PlatformAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, platform, account_name, access_token, token_expires_at, active
		FROM platform_accounts
		WHERE active AND token_expires_at IS NOT NULL AND token_expires_at <= $1
	`, before)
	if err != nil {
		return nil, fmt.Errorf("query expiring accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.PlatformAccount
	for rows.Next() {
		var a models.PlatformAccount
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Platform, &a.AccountName, &a.AccessToken, &a.TokenExpiresAt, &a.Active); err != nil {
			return nil, fmt.Errorf("scan platform account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccountToken stores a refreshed access token.
func (s *Store) UpdateAccountToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE platform_accounts SET access_token = $1, token_expires_at = $2 WHERE id = $3
	`, token, expiresAt, id)
	if err != nil {
		return fmt.Errorf("update account token: %w", err)
	}
	return nil
}
