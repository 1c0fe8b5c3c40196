package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// PublishHandler executes one platform publish attempt. The durable row
// tracks attempts across retries; content flips to published on the first
// platform success.
type PublishHandler struct {
	deps Deps
}

func NewPublishHandler(deps Deps) *PublishHandler {
	return &PublishHandler{deps: deps}
}

func (h *PublishHandler) Kind() dispatch.Kind {
	return dispatch.KindPublishToPlatform
}

func (h *PublishHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.PublishPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode publish payload: %w", err)
	}

	task, err := h.deps.Store.GetPublishTask(ctx, payload.TaskID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load publish task: %w", err))
	}
	if task.Status == models.PublishCancelled || task.Status == models.PublishSuccess {
		return nil
	}

	content, err := h.deps.Store.GetContent(ctx, task.ContentID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load content: %w", err))
	}
	account, err := h.deps.Store.GetPlatformAccount(ctx, task.PlatformAccountID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load account: %w", err))
	}

	publisher, ok := h.deps.Publishers[account.Platform]
	if !ok {
		return fmt.Errorf("no publisher for platform %s", account.Platform)
	}

	if err := h.deps.Store.MarkPublishRunning(ctx, task.ID, env.Attempt+1); err != nil {
		return dispatch.Retryable(err)
	}

	ref, err := publisher.Publish(ctx, *account, *content)

	// Cancel flag is checked after the external call returns. A late cancel
	// wins either way: the result is discarded and the row marked cancelled.
	// The post may already be live on the platform; the orphaned reference
	// is logged for operator cleanup.
	if env.Cancelled() {
		if err == nil {
			h.deps.Logger.WithFields(logging.Fields{
				"task_id": task.ID,
				"post_id": ref.PostID,
				"url":     ref.URL,
			}).Warn("Publish cancelled after the post went out, discarding result")
		}
		if markErr := h.deps.Store.MarkPublishCancelled(ctx, task.ID); markErr != nil {
			h.deps.Logger.WithError(markErr).Warn("Failed to mark publish cancelled")
		}
		return nil
	}

	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	now := time.Now().UTC()
	if err := h.deps.Store.MarkPublishSuccess(ctx, task.ID, ref.PostID, ref.URL, now); err != nil {
		h.deps.Logger.WithError(err).WithField("task_id", task.ID).Error("Publish succeeded but row update failed")
	}
	if err := h.deps.Store.MarkContentPublished(ctx, content.ID, now); err != nil {
		h.deps.Logger.WithError(err).WithField("content_id", content.ID).Error("Failed to mark content published")
	}

	h.emitResult(ctx, content, account, &publishResult{
		TaskID:   task.ID,
		Success:  true,
		PostURL:  ref.URL,
		Platform: account.Platform,
	})

	h.deps.Logger.WithFields(logging.Fields{
		"content_id": content.ID,
		"platform":   account.Platform,
		"post_id":    ref.PostID,
	}).Info("Content published")
	return nil
}

// OnFatal records the terminal failure and tells the author and the admins.
func (h *PublishHandler) OnFatal(ctx context.Context, env *dispatch.TaskEnvelope, cause error) {
	var payload dispatch.PublishPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		h.deps.Logger.WithError(err).Error("Cannot decode payload of failed publish task")
		return
	}

	if err := h.deps.Store.MarkPublishFailed(ctx, payload.TaskID, cause.Error()); err != nil {
		h.deps.Logger.WithError(err).WithField("task_id", payload.TaskID).Error("Failed to mark publish failed")
	}

	task, err := h.deps.Store.GetPublishTask(ctx, payload.TaskID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("Cannot load failed publish task")
		return
	}
	content, err := h.deps.Store.GetContent(ctx, task.ContentID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("Cannot load content of failed publish task")
		return
	}
	account, err := h.deps.Store.GetPlatformAccount(ctx, task.PlatformAccountID)
	if err != nil {
		h.deps.Logger.WithError(err).Error("Cannot load account of failed publish task")
		return
	}

	h.emitResult(ctx, content, account, &publishResult{
		TaskID:   task.ID,
		Success:  false,
		Error:    cause.Error(),
		Platform: account.Platform,
	})

	admins, err := h.deps.Store.AdminUserIDs(ctx)
	if err != nil {
		h.deps.Logger.WithError(err).Warn("Cannot load admins for publish failure notice")
		return
	}
	detail, _ := json.Marshal(map[string]interface{}{
		"content_id": content.ID,
		"task_id":    task.ID,
		"platform":   account.Platform,
		"error":      cause.Error(),
	})
	if err := h.deps.Events.NotifyAll(ctx, admins, models.NotificationEvent{
		Type:     models.EventNotification,
		Title:    "Publish retries exhausted",
		Message:  fmt.Sprintf("%q could not be published to %s", content.Title, account.Platform),
		Payload:  detail,
		Priority: models.PriorityHigh,
	}); err != nil {
		h.deps.Logger.WithError(err).Warn("Failed to notify admins of publish failure")
	}
}

type publishResult struct {
	TaskID   uuid.UUID       `json:"task_id"`
	Platform models.Platform `json:"platform"`
	Success  bool            `json:"success"`
	PostURL  string          `json:"post_url,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (h *PublishHandler) emitResult(ctx context.Context, content *models.ContentItem, account *models.PlatformAccount, result *publishResult) {
	payload, _ := json.Marshal(result)

	priority := models.PriorityNormal
	title := "Post published"
	message := fmt.Sprintf("%q is live on %s", content.Title, account.Platform)
	if !result.Success {
		priority = models.PriorityHigh
		title = "Publish failed"
		message = fmt.Sprintf("%q failed to publish to %s", content.Title, account.Platform)
	}

	if err := h.deps.Events.Notify(ctx, &models.NotificationEvent{
		UserID:   content.CreatedBy,
		Type:     models.EventPublishResult,
		Title:    title,
		Message:  message,
		Payload:  payload,
		Priority: priority,
	}); err != nil {
		h.deps.Logger.WithError(err).Warn("Failed to emit publish result")
	}
}
