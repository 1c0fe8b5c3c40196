package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
	redispkg "github.com/ahfmawlrl/sns-solution/pkg/redis"
)

const (
	relayChannel = "events:notify"
	presenceTTL  = 90 * time.Second
)

// NotificationStore persists notification events durably.
type NotificationStore interface {
	InsertNotification(ctx context.Context, ev *models.NotificationEvent) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// relayEnvelope carries an event across instances. Origin lets the
// publishing instance skip its own relay copy, which it already delivered
// locally.
type relayEnvelope struct {
	Origin string                   `json:"origin"`
	Event  models.NotificationEvent `json:"event"`
}

// Notifier is the single entry point for emitting notification events. It
// persists the durable row first, then delivers best-effort to live
// connections on every instance.
type Notifier struct {
	store      NotificationStore
	redis      goredis.UniversalClient
	relay      *redispkg.TypedPubSub[relayEnvelope]
	hub        *Hub
	instanceID string
	logger     logging.Logger
}

func NewNotifier(store NotificationStore, redis goredis.UniversalClient, hub *Hub, logger logging.Logger) *Notifier {
	n := &Notifier{
		store:      store,
		redis:      redis,
		relay:      redispkg.NewTypedPubSub[relayEnvelope](redis),
		hub:        hub,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
	hub.OnHeartbeat(func(userID uuid.UUID) {
		n.RefreshPresence(context.Background(), userID)
	})
	return n
}

func unreadKey(userID uuid.UUID) string {
	return "unread:user:" + userID.String()
}

func presenceKey(userID uuid.UUID) string {
	return "presence:user:" + userID.String()
}

// Notify persists the event, bumps the unread counter and delivers to live
// connections locally and, via the broadcast channel, on other instances.
// Only the durable persist can fail the call; delivery is best-effort.
func (n *Notifier) Notify(ctx context.Context, ev *models.NotificationEvent) error {
	if err := n.store.InsertNotification(ctx, ev); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if err := n.redis.Incr(ctx, unreadKey(ev.UserID)).Err(); err != nil {
		n.logger.WithError(err).Warn("Failed to bump unread counter")
	}

	n.hub.Deliver(ev)

	if err := n.relay.Publish(ctx, relayChannel, relayEnvelope{Origin: n.instanceID, Event: *ev}); err != nil {
		n.logger.WithError(err).Warn("Failed to publish event relay")
	}

	return nil
}

// NotifyAll emits one copy of the event per recipient.
func (n *Notifier) NotifyAll(ctx context.Context, userIDs []uuid.UUID, template models.NotificationEvent) error {
	for _, userID := range userIDs {
		ev := template
		ev.ID = uuid.Nil
		ev.UserID = userID
		if err := n.Notify(ctx, &ev); err != nil {
			return err
		}
	}
	return nil
}

// RunRelay consumes the cross-instance broadcast channel, delivering events
// to connections this process owns. It blocks until ctx is cancelled.
func (n *Notifier) RunRelay(ctx context.Context) error {
	n.relay.OnDecodeError(func(channel string, err error) {
		n.logger.WithError(err).WithField("channel", channel).Warn("Dropping undecodable relay message")
	})
	return n.relay.Subscribe(ctx, relayChannel, func(env relayEnvelope) {
		if env.Origin == n.instanceID {
			return
		}
		n.hub.Deliver(&env.Event)
	})
}

// RefreshPresence marks the user online with a short TTL, refreshed on every
// heartbeat.
func (n *Notifier) RefreshPresence(ctx context.Context, userID uuid.UUID) {
	if err := n.redis.Set(ctx, presenceKey(userID), 1, presenceTTL).Err(); err != nil {
		n.logger.WithError(err).Warn("Failed to refresh presence key")
	}
}

// IsOnline reports whether the user has a live presence key on any instance.
func (n *Notifier) IsOnline(ctx context.Context, userID uuid.UUID) bool {
	exists, err := n.redis.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// UnreadCount returns the fast counter, falling back to the durable store
// when the counter is missing.
func (n *Notifier) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := n.redis.Get(ctx, unreadKey(userID)).Int64()
	if err == nil {
		return count, nil
	}
	if err != goredis.Nil {
		n.logger.WithError(err).Warn("Unread counter unavailable, falling back to store")
	}

	count, err = n.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	// Repopulate so subsequent reads stay on the fast path.
	if setErr := n.redis.Set(ctx, unreadKey(userID), count, 0).Err(); setErr != nil {
		n.logger.WithError(setErr).Warn("Failed to repopulate unread counter")
	}
	return count, nil
}

// MarkRead decrements the fast counter after the durable flag flip. A
// missing or already-zero counter would go negative on a bare decrement, so
// the key is dropped instead and the next read rebuilds from the store.
func (n *Notifier) MarkRead(ctx context.Context, userID uuid.UUID) {
	left, err := n.redis.Decr(ctx, unreadKey(userID)).Result()
	if err != nil {
		n.logger.WithError(err).Warn("Failed to decrement unread counter")
		return
	}
	if left < 0 {
		if err := n.redis.Del(ctx, unreadKey(userID)).Err(); err != nil {
			n.logger.WithError(err).Warn("Failed to reset negative unread counter")
		}
	}
}

// ClearUnread resets the fast counter after a mark-all-read.
func (n *Notifier) ClearUnread(ctx context.Context, userID uuid.UUID) {
	if err := n.redis.Del(ctx, unreadKey(userID)).Err(); err != nil {
		n.logger.WithError(err).Warn("Failed to clear unread counter")
	}
}
