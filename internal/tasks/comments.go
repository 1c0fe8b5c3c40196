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

// commentLookback is how far back each sync pulls. Wider than the sync
// interval so a missed run loses nothing; the unique external id keeps
// re-pulls idempotent.
const commentLookback = 15 * time.Minute

// CommentSyncHandler pulls new comments for one platform account, stores
// them, notifies the client's team and queues sentiment analysis.
type CommentSyncHandler struct {
	deps Deps
}

func NewCommentSyncHandler(deps Deps) *CommentSyncHandler {
	return &CommentSyncHandler{deps: deps}
}

func (h *CommentSyncHandler) Kind() dispatch.Kind {
	return dispatch.KindCommentSync
}

func (h *CommentSyncHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.CommentSyncPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode comment sync payload: %w", err)
	}

	account, err := h.deps.Store.GetPlatformAccount(ctx, payload.AccountID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load account: %w", err))
	}
	fetcher, ok := h.deps.Fetchers[account.Platform]
	if !ok {
		return fmt.Errorf("no comment fetcher for platform %s", account.Platform)
	}

	comments, err := fetcher.FetchComments(ctx, *account, time.Now().Add(-commentLookback))
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	recipients, err := h.deps.Store.UsersForClient(ctx, account.ClientID, models.RoleOperator, models.RoleManager)
	if err != nil {
		h.deps.Logger.WithError(err).Warn("Cannot load comment notification recipients")
	}

	inserted := 0
	for i := range comments {
		isNew, err := h.deps.Store.InsertCommentIfNew(ctx, &comments[i])
		if err != nil {
			return dispatch.Retryable(err)
		}
		if !isNew {
			continue
		}
		inserted++

		if _, err := h.deps.Enqueuer.Enqueue(dispatch.KindSentimentAnalysis, dispatch.SentimentPayload{CommentID: comments[i].ID}); err != nil {
			h.deps.Logger.WithError(err).Warn("Failed to enqueue sentiment analysis")
		}

		detail, _ := json.Marshal(comments[i])
		if err := h.deps.Events.NotifyAll(ctx, recipients, models.NotificationEvent{
			Type:     models.EventNewComment,
			Title:    "New comment",
			Message:  fmt.Sprintf("%s commented on %s", comments[i].Author, account.Platform),
			Payload:  detail,
			Priority: models.PriorityNormal,
		}); err != nil {
			h.deps.Logger.WithError(err).Warn("Failed to emit new comment event")
		}
	}

	if inserted > 0 {
		h.deps.Logger.WithFields(logging.Fields{
			"account_id": account.ID,
			"platform":   account.Platform,
			"count":      inserted,
		}).Info("Synced new comments")
	}
	return nil
}

// SentimentHandler classifies one comment and escalates crises.
type SentimentHandler struct {
	deps Deps
}

func NewSentimentHandler(deps Deps) *SentimentHandler {
	return &SentimentHandler{deps: deps}
}

func (h *SentimentHandler) Kind() dispatch.Kind {
	return dispatch.KindSentimentAnalysis
}

func (h *SentimentHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.SentimentPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode sentiment payload: %w", err)
	}

	comment, err := h.deps.Store.GetComment(ctx, payload.CommentID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load comment: %w", err))
	}
	if comment.Sentiment != "" {
		return nil
	}

	sentiment, err := h.deps.AI.Sentiment(ctx, comment.Body)
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	if err := h.deps.Store.SetCommentSentiment(ctx, comment.ID, sentiment); err != nil {
		return dispatch.Retryable(err)
	}

	if sentiment == models.SentimentCrisis {
		h.escalate(ctx, comment)
		if _, err := h.deps.Enqueuer.Enqueue(dispatch.KindReplyDraft, dispatch.ReplyDraftPayload{CommentID: comment.ID}); err != nil {
			h.deps.Logger.WithError(err).Warn("Failed to enqueue reply draft")
		}
	}
	return nil
}

// escalate fires a critical crisis alert at the whole client team plus the
// admins.
func (h *SentimentHandler) escalate(ctx context.Context, comment *models.Comment) {
	recipients, err := h.deps.Store.UsersForClient(ctx, comment.ClientID,
		models.RoleOperator, models.RoleManager, models.RoleClient)
	if err != nil {
		h.deps.Logger.WithError(err).Warn("Cannot load crisis alert recipients")
	}
	admins, err := h.deps.Store.AdminUserIDs(ctx)
	if err != nil {
		h.deps.Logger.WithError(err).Warn("Cannot load admins for crisis alert")
	}
	recipients = append(recipients, admins...)
	if len(recipients) == 0 {
		return
	}

	detail, _ := json.Marshal(comment)
	if err := h.deps.Events.NotifyAll(ctx, recipients, models.NotificationEvent{
		Type:     models.EventCrisisAlert,
		Title:    "Crisis comment detected",
		Message:  fmt.Sprintf("Crisis-level comment by %s on %s", comment.Author, comment.Platform),
		Payload:  detail,
		Priority: models.PriorityCritical,
	}); err != nil {
		h.deps.Logger.WithError(err).Error("Failed to emit crisis alert")
	}

	h.deps.Logger.WithFields(logging.Fields{
		"comment_id": comment.ID,
		"client_id":  comment.ClientID,
		"platform":   comment.Platform,
	}).Warn("Crisis comment escalated")
}
