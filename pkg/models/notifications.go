package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of a notification event pushed to operators.
type EventType string

const (
	EventNotification    EventType = "notification"
	EventCrisisAlert     EventType = "crisis_alert"
	EventPublishResult   EventType = "publish_result"
	EventApprovalRequest EventType = "approval_request"
	EventNewComment      EventType = "new_comment"
	EventChatStream      EventType = "chat_stream"
)

// EventPriority orders delivery when a connection has a local send backlog.
type EventPriority string

const (
	PriorityLow      EventPriority = "low"
	PriorityNormal   EventPriority = "normal"
	PriorityHigh     EventPriority = "high"
	PriorityCritical EventPriority = "critical"
)

// Expedited reports whether events of this priority should jump the
// per-connection send backlog: crisis alerts and urgent approval requests
// ride the priority channel.
func (p EventPriority) Expedited() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// NotificationEvent is the durable notification row. The row is the source
// of truth that survives connection loss; live delivery is best-effort on
// top of it.
type NotificationEvent struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      EventType       `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  EventPriority   `json:"priority"`
	IsRead    bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CommentSentiment is the downstream classification of an ingested comment.
type CommentSentiment string

const (
	SentimentPositive CommentSentiment = "positive"
	SentimentNeutral  CommentSentiment = "neutral"
	SentimentNegative CommentSentiment = "negative"
	SentimentCrisis   CommentSentiment = "crisis"
)

// Comment is a comment synced from an external platform. Thread structure is
// an id index plus a parent reference, not an object graph.
type Comment struct {
	ID               uuid.UUID        `json:"id"`
	ClientID         uuid.UUID        `json:"client_id"`
	ContentID        *uuid.UUID       `json:"content_id,omitempty"`
	Platform         Platform         `json:"platform"`
	ExternalID       string           `json:"external_id"`
	ParentExternalID string           `json:"parent_external_id,omitempty"`
	Author           string           `json:"author"`
	Body             string           `json:"body"`
	Sentiment        CommentSentiment `json:"sentiment,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
