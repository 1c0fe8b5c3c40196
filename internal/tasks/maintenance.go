package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// tokenLifetime is the assumed validity of a freshly refreshed token. Meta
// long-lived tokens last about 60 days; refreshing daily keeps a wide margin
// for every platform.
const tokenLifetime = 60 * 24 * time.Hour

// TokenRefreshHandler refreshes one account's access token before it
// expires.
type TokenRefreshHandler struct {
	deps Deps
}

func NewTokenRefreshHandler(deps Deps) *TokenRefreshHandler {
	return &TokenRefreshHandler{deps: deps}
}

func (h *TokenRefreshHandler) Kind() dispatch.Kind {
	return dispatch.KindTokenRefresh
}

func (h *TokenRefreshHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.TokenRefreshPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode token refresh payload: %w", err)
	}

	account, err := h.deps.Store.GetPlatformAccount(ctx, payload.AccountID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load account: %w", err))
	}
	publisher, ok := h.deps.Publishers[account.Platform]
	if !ok {
		return fmt.Errorf("no publisher for platform %s", account.Platform)
	}

	token, err := publisher.RefreshToken(ctx, *account)
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	expiresAt := time.Now().Add(tokenLifetime)
	if err := h.deps.Store.UpdateAccountToken(ctx, account.ID, token, expiresAt); err != nil {
		return dispatch.Retryable(err)
	}

	h.deps.Logger.WithFields(logging.Fields{
		"account_id": account.ID,
		"platform":   account.Platform,
		"expires_at": expiresAt,
	}).Info("Access token refreshed")
	return nil
}

// KPIHandler collects one engagement snapshot for a platform account.
type KPIHandler struct {
	deps Deps
}

func NewKPIHandler(deps Deps) *KPIHandler {
	return &KPIHandler{deps: deps}
}

func (h *KPIHandler) Kind() dispatch.Kind {
	return dispatch.KindKPICollection
}

func (h *KPIHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.KPIPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode kpi payload: %w", err)
	}

	account, err := h.deps.Store.GetPlatformAccount(ctx, payload.AccountID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load account: %w", err))
	}
	fetcher, ok := h.deps.Insights[account.Platform]
	if !ok {
		return fmt.Errorf("no insights fetcher for platform %s", account.Platform)
	}

	insights, err := fetcher.FetchInsights(ctx, *account)
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	return h.deps.Store.InsertAccountMetrics(ctx, &models.AccountMetrics{
		PlatformAccountID: account.ID,
		Followers:         insights.Followers,
		Impressions:       insights.Impressions,
		Engagements:       insights.Engagements,
		CollectedAt:       time.Now().UTC(),
	})
}

// ReportHandler builds the daily summary for one client and notifies the
// client's users.
type ReportHandler struct {
	deps Deps
}

func NewReportHandler(deps Deps) *ReportHandler {
	return &ReportHandler{deps: deps}
}

func (h *ReportHandler) Kind() dispatch.Kind {
	return dispatch.KindReportGeneration
}

func (h *ReportHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.ReportPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode report payload: %w", err)
	}

	day := payload.Date.Truncate(24 * time.Hour)
	followers, impressions, engagements, err := h.deps.Store.MetricsSummaryForClient(ctx, payload.ClientID, day, day.Add(24*time.Hour))
	if err != nil {
		return dispatch.Retryable(err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"date":        day.Format("2006-01-02"),
		"followers":   followers,
		"impressions": impressions,
		"engagements": engagements,
	})
	if err != nil {
		return fmt.Errorf("marshal report body: %w", err)
	}
	if err := h.deps.Store.UpsertDailyReport(ctx, payload.ClientID, day, body); err != nil {
		return dispatch.Retryable(err)
	}

	recipients, err := h.deps.Store.UsersForClient(ctx, payload.ClientID,
		models.RoleClient, models.RoleManager)
	if err != nil {
		h.deps.Logger.WithError(err).Warn("Cannot load report recipients")
		return nil
	}
	return h.deps.Events.NotifyAll(ctx, recipients, models.NotificationEvent{
		Type:     models.EventNotification,
		Title:    "Daily report ready",
		Message:  fmt.Sprintf("Your report for %s is ready", day.Format("2006-01-02")),
		Payload:  body,
		Priority: models.PriorityLow,
	})
}
