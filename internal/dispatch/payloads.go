package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Task payloads. Kept next to the kind constants so the producer and the
// handler agree on the wire shape.

// PublishPayload drives one publish_to_platform execution. The durable
// publishing_logs row already exists when the task is enqueued.
type PublishPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// SentimentPayload asks for sentiment classification of one comment.
type SentimentPayload struct {
	CommentID uuid.UUID `json:"comment_id"`
}

// ReplyDraftPayload asks for a drafted reply to one comment.
type ReplyDraftPayload struct {
	CommentID uuid.UUID `json:"comment_id"`
}

// CopyPayload asks for generated post copy for a content item.
type CopyPayload struct {
	ContentID   uuid.UUID `json:"content_id"`
	Brief       string    `json:"brief"`
	RequestedBy uuid.UUID `json:"requested_by"`
}

// CommentSyncPayload pulls new comments for one platform account.
type CommentSyncPayload struct {
	AccountID uuid.UUID `json:"account_id"`
}

// TokenRefreshPayload refreshes the access token of one platform account.
type TokenRefreshPayload struct {
	AccountID uuid.UUID `json:"account_id"`
}

// KPIPayload collects engagement metrics for one platform account.
type KPIPayload struct {
	AccountID uuid.UUID `json:"account_id"`
}

// ReportPayload builds the daily report for one client.
type ReportPayload struct {
	ClientID uuid.UUID `json:"client_id"`
	Date     time.Time `json:"date"`
}

// EmbeddingPayload refreshes the search embedding of one content item.
type EmbeddingPayload struct {
	ContentID uuid.UUID `json:"content_id"`
}
