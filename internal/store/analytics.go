package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// InsertAccountMetrics appends one engagement snapshot.
func (s *Store) InsertAccountMetrics(ctx context.Context, m *models.AccountMetrics) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_metrics (id, platform_account_id, followers, impressions, engagements, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.PlatformAccountID, m.Followers, m.Impressions, m.Engagements, m.CollectedAt)
	if err != nil {
		return fmt.Errorf("insert account metrics: %w", err)
	}
	return nil
}

// MetricsSummaryForClient aggregates yesterday's-window metrics across a
// client's accounts.
func (s *Store) MetricsSummaryForClient(ctx context.Context, clientID uuid.UUID, from, to time.Time) (followers, impressions, engagements int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(m.followers), 0), COALESCE(SUM(m.impressions), 0), COALESCE(SUM(m.engagements), 0)
		FROM account_metrics m
		JOIN platform_accounts a ON a.id = m.platform_account_id
		WHERE a.client_id = $1 AND m.collected_at >= $2 AND m.collected_at < $3
	`, clientID, from, to).Scan(&followers, &impressions, &engagements)
	if err != nil {
		err = fmt.Errorf("summarize metrics: %w", err)
	}
	return
}

// UpsertDailyReport stores the generated report, replacing an earlier run for
// the same day.
func (s *Store) UpsertDailyReport(ctx context.Context, clientID uuid.UUID, date time.Time, body json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_reports (id, client_id, report_date, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, report_date) DO UPDATE SET body = EXCLUDED.body
	`, uuid.New(), clientID, date, body)
	if err != nil {
		return fmt.Errorf("upsert daily report: %w", err)
	}
	return nil
}

// UpsertContentEmbedding stores the search embedding for a content item.
func (s *Store) UpsertContentEmbedding(ctx context.Context, contentID uuid.UUID, embedding []float32, at time.Time) error {
	vector := make([]float64, len(embedding))
	for i, v := range embedding {
		vector[i] = float64(v)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_embeddings (content_id, embedding, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at
	`, contentID, pq.Array(vector), at)
	if err != nil {
		return fmt.Errorf("upsert content embedding: %w", err)
	}
	return nil
}

// ClientIDsWithActiveAccounts returns distinct client ids that have at least
// one active platform account. Used to fan out daily report generation.
func (s *Store) ClientIDsWithActiveAccounts(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT client_id FROM platform_accounts WHERE active
	`)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan client id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
