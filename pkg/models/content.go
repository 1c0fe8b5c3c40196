package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentStatus is the workflow state of a content item.
type ContentStatus string

const (
	ContentDraft        ContentStatus = "draft"
	ContentReview       ContentStatus = "review"
	ContentClientReview ContentStatus = "client_review"
	ContentApproved     ContentStatus = "approved"
	ContentPublished    ContentStatus = "published"
	ContentRejected     ContentStatus = "rejected"
)

// ContentItem is a piece of content moving through the approval workflow.
// Status is mutated only by the workflow engine; published is set only by
// the dispatcher when the first platform publish succeeds.
type ContentItem struct {
	ID              uuid.UUID     `json:"id"`
	ClientID        uuid.UUID     `json:"client_id"`
	Title           string        `json:"title"`
	Body            string        `json:"body,omitempty"`
	Status          ContentStatus `json:"status"`
	TargetPlatforms []string      `json:"target_platforms"`
	ScheduledAt     *time.Time    `json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time    `json:"published_at,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy      *uuid.UUID    `json:"approved_by,omitempty"`
	CreatedBy       uuid.UUID     `json:"created_by"`
	ArchivedAt      *time.Time    `json:"archived_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ApprovalRecord is one immutable audit entry per workflow transition.
type ApprovalRecord struct {
	ID         uuid.UUID     `json:"id"`
	ContentID  uuid.UUID     `json:"content_id"`
	FromStatus ContentStatus `json:"from_status"`
	ToStatus   ContentStatus `json:"to_status"`
	ReviewerID uuid.UUID     `json:"reviewer_id"`
	Comment    string        `json:"comment,omitempty"`
	IsUrgent   bool          `json:"is_urgent"`
	CreatedAt  time.Time     `json:"created_at"`
}
