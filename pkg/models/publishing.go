package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies an external social platform.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
)

// PublishStatus is the durable state of one publish attempt chain.
type PublishStatus string

const (
	PublishPending   PublishStatus = "pending"
	PublishRunning   PublishStatus = "running"
	PublishSuccess   PublishStatus = "success"
	PublishFailed    PublishStatus = "failed"
	PublishCancelled PublishStatus = "cancelled"
)

// PublishTask is the durable record for publishing one content item to one
// platform account. A manual retry after terminal failure creates a new row
// so the failure history is preserved.
type PublishTask struct {
	ID                uuid.UUID     `json:"id"`
	ContentID         uuid.UUID     `json:"content_id"`
	PlatformAccountID uuid.UUID     `json:"platform_account_id"`
	Status            PublishStatus `json:"status"`
	PlatformPostID    string        `json:"platform_post_id,omitempty"`
	PlatformPostURL   string        `json:"platform_post_url,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	Attempts          int           `json:"attempts"`
	ScheduledAt       *time.Time    `json:"scheduled_at,omitempty"`
	PublishedAt       *time.Time    `json:"published_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// PlatformAccount is a connected third-party account a client publishes to.
type PlatformAccount struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	Platform       Platform   `json:"platform"`
	AccountName    string     `json:"account_name"`
	AccessToken    string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Active         bool       `json:"active"`
}
