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

const contentColumns = `
	id, client_id, title, COALESCE(body, ''), status, target_platforms,
	scheduled_at, published_at, approved_at, approved_by, created_by,
	archived_at, created_at, updated_at
`

func scanContent(row *sql.Row) (*models.ContentItem, error) {
	var c models.ContentItem
	err := row.Scan(
		&c.ID, &c.ClientID, &c.Title, &c.Body, &c.Status,
		pq.Array(&c.TargetPlatforms),
		&c.ScheduledAt, &c.PublishedAt, &c.ApprovedAt, &c.ApprovedBy,
		&c.CreatedBy, &c.ArchivedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}
	return &c, nil
}

// GetContent loads a content item by id.
func (s *Store) GetContent(ctx context.Context, id uuid.UUID) (*models.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`
	return scanContent(s.db.QueryRowContext(ctx, query, id))
}

// TransitionParams describes one workflow transition to persist.
type TransitionParams struct {
	ContentID  uuid.UUID
	FromStatus models.ContentStatus
	ToStatus   models.ContentStatus
	ReviewerID uuid.UUID
	Comment    string
	IsUrgent   bool
	Now        time.Time
}

// ApplyTransition persists the status change and its audit record as one
// transaction. The status update is guarded on FromStatus so a concurrent
// transition rolls the whole unit back with ErrStatusConflict.
func (s *Store) ApplyTransition(ctx context.Context, p TransitionParams) (*models.ContentItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	update := `
		UPDATE contents
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	args := []interface{}{p.ToStatus, p.Now, p.ContentID, p.FromStatus}
	if p.ToStatus == models.ContentApproved {
		update = `
		UPDATE contents
		SET status = $1, updated_at = $2, approved_at = $2, approved_by = $5
		WHERE id = $3 AND status = $4
	`
		args = append(args, p.ReviewerID)
	}

	result, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return nil, fmt.Errorf("update content status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrStatusConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_approvals (id, content_id, from_status, to_status, reviewer_id, comment, is_urgent, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, uuid.New(), p.ContentID, p.FromStatus, p.ToStatus, p.ReviewerID, p.Comment, p.IsUrgent, p.Now)
	if err != nil {
		return nil, fmt.Errorf("insert approval record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	return s.GetContent(ctx, p.ContentID)
}

// MarkContentPublished flips the content to published. published_at is set
// only once, on the first platform success.
func (s *Store) MarkContentPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contents
		SET status = $1, published_at = COALESCE(published_at, $2), updated_at = $2
		WHERE id = $3
	`, models.ContentPublished, at, id)
	if err != nil {
		return fmt.Errorf("mark content published: %w", err)
	}
	return nil
}

// ApprovalsForContent returns the audit trail for a content item, oldest
// first.
func (s *Store) ApprovalsForContent(ctx context.Context, contentID uuid.UUID) ([]models.ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, from_status, to_status, reviewer_id, COALESCE(comment, ''), is_urgent, created_at
		FROM content_approvals
		WHERE content_id = $1
		ORDER BY created_at ASC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var records []models.ApprovalRecord
	for rows.Next() {
		var r models.ApprovalRecord
		if err := rows.Scan(&r.ID, &r.ContentID, &r.FromStatus, &r.ToStatus, &r.ReviewerID, &r.Comment, &r.IsUrgent, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListScheduledApproved returns approved content whose scheduled time has
// passed and which has no publish activity yet.
func (s *Store) ListScheduledApproved(ctx context.Context, now time.Time) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM contents c
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM publishing_logs pl
			WHERE pl.content_id = c.id AND pl.status IN ('pending', 'running', 'success')
		  )
	`, models.ContentApproved, now)
	if err != nil {
		return nil, fmt.Errorf("query scheduled approved: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var c models.ContentItem
		if err := rows.Scan(
			&c.ID, &c.ClientID, &c.Title, &c.Body, &c.Status,
			pq.Array(&c.TargetPlatforms),
			&c.ScheduledAt, &c.PublishedAt, &c.ApprovedAt, &c.ApprovedBy,
			&c.CreatedBy, &c.ArchivedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
