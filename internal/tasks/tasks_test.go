package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

var errNotFound = errors.New("not found")

// fakeStore backs the handlers in memory. The embedded interface panics on
// anything a test did not expect to be called.
type fakeStore struct {
	Store

	mu         sync.Mutex
	tasks      map[uuid.UUID]*models.PublishTask
	contents   map[uuid.UUID]*models.ContentItem
	accounts   map[uuid.UUID]*models.PlatformAccount
	comments   map[uuid.UUID]*models.Comment
	team       []uuid.UUID
	admins     []uuid.UUID
	duplicates map[string]bool

	published []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      make(map[uuid.UUID]*models.PublishTask),
		contents:   make(map[uuid.UUID]*models.ContentItem),
		accounts:   make(map[uuid.UUID]*models.PlatformAccount),
		comments:   make(map[uuid.UUID]*models.Comment),
		duplicates: make(map[string]bool),
	}
}

func (s *fakeStore) GetPublishTask(_ context.Context, id uuid.UUID) (*models.PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *fakeStore) MarkPublishRunning(_ context.Context, id uuid.UUID, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = models.PublishRunning
	s.tasks[id].Attempts = attempt
	return nil
}

func (s *fakeStore) MarkPublishSuccess(_ context.Context, id uuid.UUID, postID, postURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = models.PublishSuccess
	s.tasks[id].PlatformPostID = postID
	s.tasks[id].PlatformPostURL = postURL
	s.tasks[id].PublishedAt = &at
	return nil
}

func (s *fakeStore) MarkPublishFailed(_ context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = models.PublishFailed
	s.tasks[id].ErrorMessage = message
	return nil
}

func (s *fakeStore) MarkPublishCancelled(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id].Status = models.PublishCancelled
	return nil
}

func (s *fakeStore) GetContent(_ context.Context, id uuid.UUID) (*models.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.contents[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *content
	return &cp, nil
}

func (s *fakeStore) MarkContentPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[id].Status = models.ContentPublished
	s.contents[id].PublishedAt = &at
	s.published = append(s.published, id)
	return nil
}

func (s *fakeStore) GetPlatformAccount(_ context.Context, id uuid.UUID) (*models.PlatformAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *fakeStore) GetComment(_ context.Context, id uuid.UUID) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *comment
	return &cp, nil
}

func (s *fakeStore) InsertCommentIfNew(_ context.Context, c *models.Comment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicates[c.ExternalID] {
		return false, nil
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	s.comments[c.ID] = &cp
	s.duplicates[c.ExternalID] = true
	return true, nil
}

func (s *fakeStore) SetCommentSentiment(_ context.Context, id uuid.UUID, sentiment models.CommentSentiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[id]
	if !ok {
		return errNotFound
	}
	comment.Sentiment = sentiment
	return nil
}

func (s *fakeStore) UsersForClient(_ context.Context, _ uuid.UUID, _ ...models.Role) ([]uuid.UUID, error) {
	return s.team, nil
}

func (s *fakeStore) AdminUserIDs(_ context.Context) ([]uuid.UUID, error) {
	return s.admins, nil
}

// fakeSink records deliveries instead of fanning out.
type fakeSink struct {
	mu     sync.Mutex
	direct []models.NotificationEvent
	fanout []fanoutCall
}

type fanoutCall struct {
	recipients []uuid.UUID
	event      models.NotificationEvent
}

func (s *fakeSink) Notify(_ context.Context, ev *models.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct = append(s.direct, *ev)
	return nil
}

func (s *fakeSink) NotifyAll(_ context.Context, userIDs []uuid.UUID, template models.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fanout = append(s.fanout, fanoutCall{recipients: userIDs, event: template})
	return nil
}

// fakeEnqueuer records follow-up work.
type fakeEnqueuer struct {
	mu    sync.Mutex
	kinds []dispatch.Kind
}

func (e *fakeEnqueuer) Enqueue(kind dispatch.Kind, _ interface{}) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, kind)
	return uuid.New(), nil
}

func (e *fakeEnqueuer) enqueued(kind dispatch.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, k := range e.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

// fakePublisher runs a test-supplied publish function.
type fakePublisher struct {
	name    models.Platform
	publish func(ctx context.Context, account models.PlatformAccount, content models.ContentItem) (platform.PostRef, error)
}

func (p *fakePublisher) Platform() models.Platform { return p.name }

func (p *fakePublisher) Publish(ctx context.Context, account models.PlatformAccount, content models.ContentItem) (platform.PostRef, error) {
	return p.publish(ctx, account, content)
}

func (p *fakePublisher) RefreshToken(context.Context, models.PlatformAccount) (string, error) {
	return "", errors.New("not supported")
}

// fakeAI returns canned answers.
type fakeAI struct {
	sentiment models.CommentSentiment
	err       error
	calls     int
}

func (a *fakeAI) Sentiment(context.Context, string) (models.CommentSentiment, error) {
	a.calls++
	return a.sentiment, a.err
}

func (a *fakeAI) GenerateCopy(context.Context, string) (string, error) {
	return "generated copy", a.err
}

func (a *fakeAI) DraftReply(context.Context, string) (string, error) {
	return "drafted reply", a.err
}

func (a *fakeAI) Embedding(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, a.err
}

func newEnvelope(t *testing.T, kind dispatch.Kind, payload interface{}) *dispatch.TaskEnvelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &dispatch.TaskEnvelope{ID: uuid.New(), Kind: kind, Lane: dispatch.LaneFor(kind), Payload: raw}
}

func newTestDeps(st *fakeStore) (Deps, *fakeSink, *fakeEnqueuer) {
	sink := &fakeSink{}
	enq := &fakeEnqueuer{}
	deps := Deps{
		Store:      st,
		Events:     sink,
		Enqueuer:   enq,
		Publishers: make(map[models.Platform]platform.Publisher),
		Fetchers:   make(map[models.Platform]platform.CommentFetcher),
		Insights:   make(map[models.Platform]platform.InsightsFetcher),
		AI:         &fakeAI{},
		Logger:     logging.NewLogger(),
	}
	return deps, sink, enq
}
