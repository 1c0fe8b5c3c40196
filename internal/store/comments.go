package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// GetComment loads one synced comment by id.
func (s *Store) GetComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var c models.Comment
	var sentiment sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, content_id, platform, external_id,
		       COALESCE(parent_external_id, ''), author, body, sentiment, created_at
		FROM comments WHERE id = $1
	`, id).Scan(&c.ID, &c.ClientID, &c.ContentID, &c.Platform, &c.ExternalID,
		&c.ParentExternalID, &c.Author, &c.Body, &sentiment, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	c.Sentiment = models.CommentSentiment(sentiment.String)
	return &c, nil
}

// InsertCommentIfNew inserts a synced comment, reporting whether the row was
// new. Duplicate (platform, external_id) pairs are ignored so the periodic
// sync tolerates at-least-once trigger fires.
func (s *Store) InsertCommentIfNew(ctx context.Context, c *models.Comment) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, client_id, content_id, platform, external_id, parent_external_id, author, body, sentiment)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''))
		ON CONFLICT (platform, external_id) DO NOTHING
	`, c.ID, c.ClientID, c.ContentID, c.Platform, c.ExternalID, c.ParentExternalID, c.Author, c.Body, string(c.Sentiment))
	if err != nil {
		return false, fmt.Errorf("insert comment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetCommentSentiment stores the downstream classification for a comment.
func (s *Store) SetCommentSentiment(ctx context.Context, id uuid.UUID, sentiment models.CommentSentiment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET sentiment = $1 WHERE id = $2
	`, sentiment, id)
	if err != nil {
		return fmt.Errorf("set comment sentiment: %w", err)
	}
	return nil
}
