package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

type memoryStore struct {
	events []models.NotificationEvent
	unread map[uuid.UUID]int64
}

func (m *memoryStore) InsertNotification(_ context.Context, ev *models.NotificationEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	m.events = append(m.events, *ev)
	if m.unread == nil {
		m.unread = make(map[uuid.UUID]int64)
	}
	m.unread[ev.UserID]++
	return nil
}

func (m *memoryStore) UnreadCount(_ context.Context, userID uuid.UUID) (int64, error) {
	return m.unread[userID], nil
}

func newTestNotifier(t *testing.T) (*Notifier, *memoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &memoryStore{}
	hub := NewHub(DefaultConfig(), logging.NewLogger())
	return NewNotifier(store, client, hub, logging.NewLogger()), store, mr
}

func TestNotifyPersistsForOfflineUser(t *testing.T) {
	n, store, _ := newTestNotifier(t)
	userID := uuid.New()

	err := n.Notify(context.Background(), &models.NotificationEvent{
		UserID:   userID,
		Type:     models.EventPublishResult,
		Title:    "Post published",
		Priority: models.PriorityNormal,
	})
	require.NoError(t, err)

	// No live connection exists; the durable row is the delivery guarantee.
	require.Len(t, store.events, 1)
	assert.Equal(t, userID, store.events[0].UserID)

	count, err := n.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestNotifyAllFansOut(t *testing.T) {
	n, store, _ := newTestNotifier(t)
	recipients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	err := n.NotifyAll(context.Background(), recipients, models.NotificationEvent{
		Type:     models.EventCrisisAlert,
		Title:    "Crisis",
		Priority: models.PriorityCritical,
	})
	require.NoError(t, err)

	require.Len(t, store.events, 3)
	seen := map[uuid.UUID]bool{}
	for _, ev := range store.events {
		seen[ev.UserID] = true
		assert.NotEqual(t, uuid.Nil, ev.ID, "each copy gets its own id")
	}
	for _, id := range recipients {
		assert.True(t, seen[id])
	}
}

func TestUnreadCountFallsBackToStore(t *testing.T) {
	n, _, mr := newTestNotifier(t)
	userID := uuid.New()

	require.NoError(t, n.Notify(context.Background(), &models.NotificationEvent{
		UserID:   userID,
		Type:     models.EventNotification,
		Priority: models.PriorityNormal,
	}))

	// Simulate a redis flush; the durable store still knows the count.
	mr.FlushAll()

	count, err := n.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// The counter is repopulated for the fast path.
	got, err := mr.Get("unread:user:" + userID.String())
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestMarkReadDecrementsCounter(t *testing.T) {
	n, _, mr := newTestNotifier(t)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, n.Notify(context.Background(), &models.NotificationEvent{
			UserID:   userID,
			Type:     models.EventNotification,
			Priority: models.PriorityNormal,
		}))
	}

	n.MarkRead(context.Background(), userID)
	got, err := mr.Get("unread:user:" + userID.String())
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	n.ClearUnread(context.Background(), userID)
	assert.False(t, mr.Exists("unread:user:"+userID.String()))
}

func TestPresenceExpires(t *testing.T) {
	n, _, mr := newTestNotifier(t)
	userID := uuid.New()

	n.RefreshPresence(context.Background(), userID)
	assert.True(t, n.IsOnline(context.Background(), userID))

	mr.FastForward(91 * time.Second)
	assert.False(t, n.IsOnline(context.Background(), userID))
}

func TestRelaySkipsOwnOrigin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &memoryStore{}
	hub := NewHub(DefaultConfig(), logging.NewLogger())
	n := NewNotifier(store, client, hub, logging.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.RunRelay(ctx) }()

	// Give the subscriber a moment to attach, then publish locally. The
	// local instance already delivered the event, so the relay copy must be
	// ignored instead of double-delivered.
	time.Sleep(50 * time.Millisecond)
	userID := uuid.New()
	require.NoError(t, n.Notify(ctx, &models.NotificationEvent{
		UserID:   userID,
		Type:     models.EventNotification,
		Priority: models.PriorityNormal,
	}))

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, store.events, 1, "relay must not re-persist or double-deliver")
}

func TestMarkReadOnEvictedCounterNeverGoesNegative(t *testing.T) {
	n, store, _ := newTestNotifier(t)
	userID := uuid.New()
	store.unread = map[uuid.UUID]int64{userID: 2}

	// The fast counter was evicted; a bare decrement would leave -1 behind
	// and UnreadCount would report it. The decrement must instead drop the
	// key so the next read rebuilds from the durable store.
	n.MarkRead(context.Background(), userID)

	count, err := n.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
