// Package workflow moves content items through the approval pipeline and
// fires the side effects each transition owes: approval requests, rejection
// notices and publish tasks.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/store"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

var (
	// ErrInvalidTransition means from -> to is not a workflow edge.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrForbidden means the actor's role (or client scope) does not permit
	// the requested transition.
	ErrForbidden = errors.New("transition not permitted for role")
	// ErrUrgentNotAllowed means the urgent flag was set on an edge that
	// cannot carry it.
	ErrUrgentNotAllowed = errors.New("urgent flag not allowed on this transition")
)

// ContentStore is the durable state the engine reads and writes.
type ContentStore interface {
	GetContent(ctx context.Context, id uuid.UUID) (*models.ContentItem, error)
	ApplyTransition(ctx context.Context, p store.TransitionParams) (*models.ContentItem, error)
	ActiveAccountsForPlatforms(ctx context.Context, clientID uuid.UUID, platforms []string) ([]models.PlatformAccount, error)
	HasOpenPublishTask(ctx context.Context, contentID, accountID uuid.UUID) (bool, error)
	CreatePublishTask(ctx context.Context, contentID, accountID uuid.UUID, scheduledAt *time.Time) (*models.PublishTask, error)
	UsersForClient(ctx context.Context, clientID uuid.UUID, roles ...models.Role) ([]uuid.UUID, error)
}

// EventSink delivers notification events.
type EventSink interface {
	Notify(ctx context.Context, ev *models.NotificationEvent) error
	NotifyAll(ctx context.Context, userIDs []uuid.UUID, template models.NotificationEvent) error
}

// TaskEnqueuer hands work to the background dispatcher.
type TaskEnqueuer interface {
	Enqueue(kind dispatch.Kind, payload interface{}) (uuid.UUID, error)
	EnqueueWithID(id uuid.UUID, kind dispatch.Kind, payload interface{}) error
}

// Engine validates and applies workflow transitions.
type Engine struct {
	store  ContentStore
	events EventSink
	tasks  TaskEnqueuer
	logger logging.Logger
}

func NewEngine(st ContentStore, events EventSink, tasks TaskEnqueuer, logger logging.Logger) *Engine {
	return &Engine{
		store:  st,
		events: events,
		tasks:  tasks,
		logger: logger,
	}
}

// TransitionRequest is one status change attempt by an actor.
type TransitionRequest struct {
	ContentID uuid.UUID
	To        models.ContentStatus
	Comment   string
	IsUrgent  bool
}

// Transition applies the requested status change. The durable update and its
// audit record commit atomically; notifications and publish tasks fire after
// the commit and are best-effort.
func (e *Engine) Transition(ctx context.Context, actor models.Actor, req TransitionRequest) (*models.ContentItem, error) {
	content, err := e.store.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}

	// Client reviewers only see their own client's content.
	if actor.Role == models.RoleClient {
		if actor.ClientID == nil || *actor.ClientID != content.ClientID {
			return nil, ErrForbidden
		}
	}

	if !ValidEdge(content.Status, req.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, content.Status, req.To)
	}
	if req.IsUrgent && !UrgentAllowed(content.Status, req.To) {
		return nil, ErrUrgentNotAllowed
	}
	if !Allowed(actor.Role, content.Status, req.To) {
		return nil, ErrForbidden
	}

	updated, err := e.store.ApplyTransition(ctx, store.TransitionParams{
		ContentID:  req.ContentID,
		FromStatus: content.Status,
		ToStatus:   req.To,
		ReviewerID: actor.UserID,
		Comment:    req.Comment,
		IsUrgent:   req.IsUrgent,
		Now:        time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	e.afterTransition(ctx, actor, content.Status, updated, req)
	return updated, nil
}

func (e *Engine) afterTransition(ctx context.Context, actor models.Actor, from models.ContentStatus, content *models.ContentItem, req TransitionRequest) {
	log := e.logger.WithFields(logging.Fields{
		"content_id": content.ID,
		"from":       from,
		"to":         content.Status,
	})

	switch content.Status {
	case models.ContentReview, models.ContentClientReview:
		if err := e.requestApproval(ctx, content, req.IsUrgent); err != nil {
			log.WithError(err).Warn("Failed to send approval request")
		}
	case models.ContentRejected:
		if err := e.notifyRejection(ctx, actor, content, req.Comment); err != nil {
			log.WithError(err).Warn("Failed to send rejection notice")
		}
	case models.ContentApproved:
		// Scheduled content waits for the periodic scan; immediate content
		// publishes now.
		if content.ScheduledAt == nil || !content.ScheduledAt.After(time.Now()) {
			if err := e.EnqueuePublishTasks(ctx, content); err != nil {
				log.WithError(err).Error("Failed to enqueue publish tasks")
			}
		}
		// The approved text is final; refresh its search embedding.
		if _, err := e.tasks.Enqueue(dispatch.KindEmbeddingUpdate, dispatch.EmbeddingPayload{ContentID: content.ID}); err != nil {
			log.WithError(err).Warn("Failed to enqueue embedding update")
		}
	}
}

func (e *Engine) requestApproval(ctx context.Context, content *models.ContentItem, urgent bool) error {
	recipients, err := e.store.UsersForClient(ctx, content.ClientID, ReviewersFor(content.Status)...)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	priority := models.PriorityNormal
	if urgent {
		priority = models.PriorityHigh
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"content_id": content.ID,
		"status":     content.Status,
		"urgent":     urgent,
	})
	return e.events.NotifyAll(ctx, recipients, models.NotificationEvent{
		Type:     models.EventApprovalRequest,
		Title:    "Approval requested",
		Message:  fmt.Sprintf("%q is waiting for your review", content.Title),
		Payload:  payload,
		Priority: priority,
	})
}

func (e *Engine) notifyRejection(ctx context.Context, actor models.Actor, content *models.ContentItem, comment string) error {
	message := fmt.Sprintf("%q was rejected", content.Title)
	if comment != "" {
		message += ": " + comment
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"content_id":  content.ID,
		"rejected_by": actor.UserID,
	})
	return e.events.Notify(ctx, &models.NotificationEvent{
		UserID:   content.CreatedBy,
		Type:     models.EventNotification,
		Title:    "Content rejected",
		Message:  message,
		Payload:  payload,
		Priority: models.PriorityHigh,
	})
}

// EnqueuePublishTasks creates one durable publish task per active target
// account and hands each to the dispatcher. Accounts with a publish already
// in flight are skipped so periodic scans stay idempotent.
func (e *Engine) EnqueuePublishTasks(ctx context.Context, content *models.ContentItem) error {
	accounts, err := e.store.ActiveAccountsForPlatforms(ctx, content.ClientID, content.TargetPlatforms)
	if err != nil {
		return fmt.Errorf("load target accounts: %w", err)
	}
	if len(accounts) == 0 {
		e.logger.WithField("content_id", content.ID).Warn("Approved content has no active target accounts")
		return nil
	}

	for _, account := range accounts {
		open, err := e.store.HasOpenPublishTask(ctx, content.ID, account.ID)
		if err != nil {
			return err
		}
		if open {
			continue
		}

		task, err := e.store.CreatePublishTask(ctx, content.ID, account.ID, content.ScheduledAt)
		if err != nil {
			return fmt.Errorf("create publish task: %w", err)
		}
		// The envelope shares the durable row's id so a cancel request can
		// address both.
		if err := e.tasks.EnqueueWithID(task.ID, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: task.ID}); err != nil {
			return fmt.Errorf("enqueue publish task: %w", err)
		}

		e.logger.WithFields(logging.Fields{
			"content_id": content.ID,
			"account_id": account.ID,
			"platform":   account.Platform,
			"task_id":    task.ID,
		}).Info("Publish task enqueued")
	}
	return nil
}
