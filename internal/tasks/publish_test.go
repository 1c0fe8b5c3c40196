package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

type publishFixture struct {
	store   *fakeStore
	sink    *fakeSink
	handler *PublishHandler
	task    *models.PublishTask
	content *models.ContentItem
	author  uuid.UUID
}

func newPublishFixture(t *testing.T, pl models.Platform, publish func(ctx context.Context, account models.PlatformAccount, content models.ContentItem) (platform.PostRef, error)) *publishFixture {
	t.Helper()

	st := newFakeStore()
	author := uuid.New()
	clientID := uuid.New()

	content := &models.ContentItem{
		ID:        uuid.New(),
		ClientID:  clientID,
		Title:     "Spring campaign",
		Status:    models.ContentApproved,
		CreatedBy: author,
	}
	account := &models.PlatformAccount{
		ID:       uuid.New(),
		ClientID: clientID,
		Platform: pl,
		Active:   true,
	}
	task := &models.PublishTask{
		ID:                uuid.New(),
		ContentID:         content.ID,
		PlatformAccountID: account.ID,
		Status:            models.PublishPending,
	}
	st.contents[content.ID] = content
	st.accounts[account.ID] = account
	st.tasks[task.ID] = task
	st.admins = []uuid.UUID{uuid.New()}

	deps, sink, _ := newTestDeps(st)
	deps.Publishers[pl] = &fakePublisher{name: pl, publish: publish}

	return &publishFixture{
		store:   st,
		sink:    sink,
		handler: NewPublishHandler(deps),
		task:    task,
		content: content,
		author:  author,
	}
}

func TestPublishHandlerSuccess(t *testing.T) {
	f := newPublishFixture(t, models.PlatformInstagram, func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
		return platform.PostRef{PostID: "ig-1", URL: "https://instagram.com/p/ig-1"}, nil
	})
	env := newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})

	require.NoError(t, f.handler.Handle(context.Background(), env))

	task := f.store.tasks[f.task.ID]
	assert.Equal(t, models.PublishSuccess, task.Status)
	assert.Equal(t, "ig-1", task.PlatformPostID)
	assert.Equal(t, models.ContentPublished, f.store.contents[f.content.ID].Status)

	require.Len(t, f.sink.direct, 1, "author gets exactly one result event")
	ev := f.sink.direct[0]
	assert.Equal(t, f.author, ev.UserID)
	assert.Equal(t, models.EventPublishResult, ev.Type)
	assert.Equal(t, models.PriorityNormal, ev.Priority)
}

func TestPublishHandlerLateCancelDiscardsResult(t *testing.T) {
	// The cancel lands while the external call is in flight and the post
	// still goes out. The handler must discard the result at its safe
	// point: the row ends cancelled, not success, and no event is emitted.
	var env *dispatch.TaskEnvelope
	f := newPublishFixture(t, models.PlatformInstagram, func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
		env.Cancel()
		return platform.PostRef{PostID: "ig-2", URL: "https://instagram.com/p/ig-2"}, nil
	})
	env = newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})

	require.NoError(t, f.handler.Handle(context.Background(), env))

	assert.Equal(t, models.PublishCancelled, f.store.tasks[f.task.ID].Status)
	assert.Equal(t, models.ContentApproved, f.store.contents[f.content.ID].Status, "content must not flip to published")
	assert.Empty(t, f.store.published)
	assert.Empty(t, f.sink.direct, "no result event for a cancelled task")
}

func TestPublishHandlerLateCancelOnFailure(t *testing.T) {
	var env *dispatch.TaskEnvelope
	f := newPublishFixture(t, models.PlatformInstagram, func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
		env.Cancel()
		return platform.PostRef{}, errors.New("remote down")
	})
	env = newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})

	require.NoError(t, f.handler.Handle(context.Background(), env), "a cancelled failure is not retried")
	assert.Equal(t, models.PublishCancelled, f.store.tasks[f.task.ID].Status)
}

func TestPublishHandlerSkipsTerminalTask(t *testing.T) {
	called := false
	f := newPublishFixture(t, models.PlatformInstagram, func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
		called = true
		return platform.PostRef{}, nil
	})
	f.store.tasks[f.task.ID].Status = models.PublishCancelled
	env := newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})

	require.NoError(t, f.handler.Handle(context.Background(), env))
	assert.False(t, called, "terminal task must not reach the platform")
}

func TestPublishHandlerClassifiesPlatformErrors(t *testing.T) {
	remoteErr := &platform.StatusError{Service: "instagram", Code: 503}
	f := newPublishFixture(t, models.PlatformInstagram, func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
		return platform.PostRef{}, remoteErr
	})
	env := newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})

	err := f.handler.Handle(context.Background(), env)
	require.Error(t, err)
	assert.True(t, dispatch.IsRetryable(err), "5xx must be retried")

	remoteErr.Code = 400
	env = newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})
	err = f.handler.Handle(context.Background(), env)
	require.Error(t, err)
	assert.False(t, dispatch.IsRetryable(err), "4xx is fatal")
}

func TestPublishHandlerOnFatalNotifiesOnce(t *testing.T) {
	f := newPublishFixture(t, models.PlatformInstagram, nil)
	env := newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})
	cause := errors.New("instagram: status 400")

	f.handler.OnFatal(context.Background(), env, cause)

	task := f.store.tasks[f.task.ID]
	assert.Equal(t, models.PublishFailed, task.Status)
	assert.Equal(t, cause.Error(), task.ErrorMessage)

	require.Len(t, f.sink.direct, 1, "author gets exactly one error event")
	ev := f.sink.direct[0]
	assert.Equal(t, f.author, ev.UserID)
	assert.Equal(t, models.EventPublishResult, ev.Type)
	assert.Equal(t, models.PriorityHigh, ev.Priority)

	require.Len(t, f.sink.fanout, 1, "admins are told once")
	assert.Equal(t, f.store.admins, f.sink.fanout[0].recipients)
	assert.Equal(t, models.EventNotification, f.sink.fanout[0].event.Type)
}

func TestPublishTasksIndependentPerAccount(t *testing.T) {
	f := newPublishFixture(t, models.PlatformInstagram, func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
		return platform.PostRef{}, &platform.StatusError{Service: "instagram", Code: 400}
	})

	// Second account on another platform, same content item.
	ytAccount := &models.PlatformAccount{
		ID:       uuid.New(),
		ClientID: f.content.ClientID,
		Platform: models.PlatformYouTube,
		Active:   true,
	}
	ytTask := &models.PublishTask{
		ID:                uuid.New(),
		ContentID:         f.content.ID,
		PlatformAccountID: ytAccount.ID,
		Status:            models.PublishPending,
	}
	f.store.accounts[ytAccount.ID] = ytAccount
	f.store.tasks[ytTask.ID] = ytTask
	f.handler.deps.Publishers[models.PlatformYouTube] = &fakePublisher{
		name: models.PlatformYouTube,
		publish: func(context.Context, models.PlatformAccount, models.ContentItem) (platform.PostRef, error) {
			return platform.PostRef{PostID: "yt-1", URL: "https://youtu.be/yt-1"}, nil
		},
	}

	igEnv := newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: f.task.ID})
	ytEnv := newEnvelope(t, dispatch.KindPublishToPlatform, dispatch.PublishPayload{TaskID: ytTask.ID})

	require.Error(t, f.handler.Handle(context.Background(), igEnv))
	require.NoError(t, f.handler.Handle(context.Background(), ytEnv))

	// One platform failing never blocks the other; the first success flips
	// the content.
	assert.Equal(t, models.PublishSuccess, f.store.tasks[ytTask.ID].Status)
	assert.NotEqual(t, models.PublishSuccess, f.store.tasks[f.task.ID].Status)
	assert.Equal(t, models.ContentPublished, f.store.contents[f.content.ID].Status)
}
