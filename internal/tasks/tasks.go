// Package tasks implements the background task handlers behind the
// dispatcher: platform publishing, comment ingestion, AI work and the
// periodic maintenance scans.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// Store is the slice of the durable store the handlers touch, satisfied by
// *store.Store.
type Store interface {
	GetPublishTask(ctx context.Context, id uuid.UUID) (*models.PublishTask, error)
	MarkPublishRunning(ctx context.Context, id uuid.UUID, attempt int) error
	MarkPublishSuccess(ctx context.Context, id uuid.UUID, postID, postURL string, at time.Time) error
	MarkPublishFailed(ctx context.Context, id uuid.UUID, message string) error
	MarkPublishCancelled(ctx context.Context, id uuid.UUID) error

	GetContent(ctx context.Context, id uuid.UUID) (*models.ContentItem, error)
	MarkContentPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	ListScheduledApproved(ctx context.Context, now time.Time) ([]models.ContentItem, error)

	GetPlatformAccount(ctx context.Context, id uuid.UUID) (*models.PlatformAccount, error)
	ListActiveAccounts(ctx context.Context) ([]models.PlatformAccount, error)
	ListExpiringAccounts(ctx context.Context, before time.Time) ([]models.PlatformAccount, error)
	UpdateAccountToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error

	GetComment(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	InsertCommentIfNew(ctx context.Context, c *models.Comment) (bool, error)
	SetCommentSentiment(ctx context.Context, id uuid.UUID, sentiment models.CommentSentiment) error

	UsersForClient(ctx context.Context, clientID uuid.UUID, roles ...models.Role) ([]uuid.UUID, error)
	AdminUserIDs(ctx context.Context) ([]uuid.UUID, error)

	InsertAccountMetrics(ctx context.Context, m *models.AccountMetrics) error
	MetricsSummaryForClient(ctx context.Context, clientID uuid.UUID, from, to time.Time) (followers, impressions, engagements int64, err error)
	UpsertDailyReport(ctx context.Context, clientID uuid.UUID, date time.Time, body json.RawMessage) error
	UpsertContentEmbedding(ctx context.Context, contentID uuid.UUID, embedding []float32, at time.Time) error
	ClientIDsWithActiveAccounts(ctx context.Context) ([]uuid.UUID, error)
}

// EventSink delivers notification events.
type EventSink interface {
	Notify(ctx context.Context, ev *models.NotificationEvent) error
	NotifyAll(ctx context.Context, userIDs []uuid.UUID, template models.NotificationEvent) error
}

// AIProvider is the slice of the AI client the handlers use.
type AIProvider interface {
	Sentiment(ctx context.Context, text string) (models.CommentSentiment, error)
	GenerateCopy(ctx context.Context, brief string) (string, error)
	DraftReply(ctx context.Context, comment string) (string, error)
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// TaskEnqueuer hands follow-up work back to the dispatcher.
type TaskEnqueuer interface {
	Enqueue(kind dispatch.Kind, payload interface{}) (uuid.UUID, error)
}

// Deps is everything the handlers share.
type Deps struct {
	Store      Store
	Events     EventSink
	Enqueuer   TaskEnqueuer
	Publishers map[models.Platform]platform.Publisher
	Fetchers   map[models.Platform]platform.CommentFetcher
	Insights   map[models.Platform]platform.InsightsFetcher
	AI         AIProvider
	Logger     logging.Logger
}

// Registrar accepts handlers, satisfied by the dispatcher.
type Registrar interface {
	Register(h dispatch.Handler)
}

// RegisterAll wires every task handler into the dispatcher.
func RegisterAll(r Registrar, deps Deps) {
	r.Register(NewPublishHandler(deps))
	r.Register(NewCommentSyncHandler(deps))
	r.Register(NewSentimentHandler(deps))
	r.Register(NewCopyHandler(deps))
	r.Register(NewReplyDraftHandler(deps))
	r.Register(NewTokenRefreshHandler(deps))
	r.Register(NewKPIHandler(deps))
	r.Register(NewReportHandler(deps))
	r.Register(NewEmbeddingHandler(deps))
}
