package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AccountMetrics is one hourly engagement snapshot for a platform account.
type AccountMetrics struct {
	ID                uuid.UUID `json:"id"`
	PlatformAccountID uuid.UUID `json:"platform_account_id"`
	Followers         int64     `json:"followers"`
	Impressions       int64     `json:"impressions"`
	Engagements       int64     `json:"engagements"`
	CollectedAt       time.Time `json:"collected_at"`
}

// DailyReport is the generated per-client daily summary.
type DailyReport struct {
	ID         uuid.UUID       `json:"id"`
	ClientID   uuid.UUID       `json:"client_id"`
	ReportDate time.Time       `json:"report_date"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  time.Time       `json:"created_at"`
}
