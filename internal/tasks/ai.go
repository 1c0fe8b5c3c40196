package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// CopyHandler generates post copy from a brief and streams the result back
// to the requester.
type CopyHandler struct {
	deps Deps
}

func NewCopyHandler(deps Deps) *CopyHandler {
	return &CopyHandler{deps: deps}
}

func (h *CopyHandler) Kind() dispatch.Kind {
	return dispatch.KindCopyGeneration
}

func (h *CopyHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.CopyPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode copy payload: %w", err)
	}

	copyText, err := h.deps.AI.GenerateCopy(ctx, payload.Brief)
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"content_id": payload.ContentID,
		"copy":       copyText,
	})
	return h.deps.Events.Notify(ctx, &models.NotificationEvent{
		UserID:   payload.RequestedBy,
		Type:     models.EventChatStream,
		Title:    "Copy draft ready",
		Message:  copyText,
		Payload:  detail,
		Priority: models.PriorityNormal,
	})
}

// ReplyDraftHandler drafts a reply to a comment and hands it to the client's
// team for review. Drafts are never posted automatically.
type ReplyDraftHandler struct {
	deps Deps
}

func NewReplyDraftHandler(deps Deps) *ReplyDraftHandler {
	return &ReplyDraftHandler{deps: deps}
}

func (h *ReplyDraftHandler) Kind() dispatch.Kind {
	return dispatch.KindReplyDraft
}

func (h *ReplyDraftHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.ReplyDraftPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode reply draft payload: %w", err)
	}

	comment, err := h.deps.Store.GetComment(ctx, payload.CommentID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load comment: %w", err))
	}

	draft, err := h.deps.AI.DraftReply(ctx, comment.Body)
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	recipients, err := h.deps.Store.UsersForClient(ctx, comment.ClientID, models.RoleOperator, models.RoleManager)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load recipients: %w", err))
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"comment_id": comment.ID,
		"platform":   comment.Platform,
		"draft":      draft,
	})
	return h.deps.Events.NotifyAll(ctx, recipients, models.NotificationEvent{
		Type:     models.EventNotification,
		Title:    "Reply draft ready",
		Message:  fmt.Sprintf("Draft reply to %s: %s", comment.Author, draft),
		Payload:  detail,
		Priority: models.PriorityNormal,
	})
}

// EmbeddingHandler refreshes the search embedding of a content item.
type EmbeddingHandler struct {
	deps Deps
}

func NewEmbeddingHandler(deps Deps) *EmbeddingHandler {
	return &EmbeddingHandler{deps: deps}
}

func (h *EmbeddingHandler) Kind() dispatch.Kind {
	return dispatch.KindEmbeddingUpdate
}

func (h *EmbeddingHandler) Handle(ctx context.Context, env *dispatch.TaskEnvelope) error {
	var payload dispatch.EmbeddingPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode embedding payload: %w", err)
	}

	content, err := h.deps.Store.GetContent(ctx, payload.ContentID)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("load content: %w", err))
	}

	text := content.Title
	if content.Body != "" {
		text += "\n" + content.Body
	}
	vector, err := h.deps.AI.Embedding(ctx, text)
	if err != nil {
		if platform.IsRetryable(err) {
			return dispatch.Retryable(err)
		}
		return err
	}

	if err := h.deps.Store.UpsertContentEmbedding(ctx, content.ID, vector, time.Now().UTC()); err != nil {
		return dispatch.Retryable(err)
	}
	return nil
}
