// Package fanout delivers notification events to live operator connections
// and persists them for offline recipients.
package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// Close codes distinguishing why the server dropped a connection, so the
// client can decide between silent reconnect and forced re-authentication.
const (
	CloseUnauthorized = 4001 // credential invalid or expired: re-authenticate
)

// Message is the typed envelope sent to clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Config tunes connection liveness. The defaults match the client contract:
// a ping every 30s, drop after 90s of silence.
type Config struct {
	HeartbeatTimeout time.Duration
	WriteWait        time.Duration
	SendBuffer       int
}

func DefaultConfig() Config {
	return Config{
		HeartbeatTimeout: 90 * time.Second,
		WriteWait:        10 * time.Second,
		SendBuffer:       64,
	}
}

// Hub maintains the per-user registry of open connections on this process.
type Hub struct {
	cfg        Config
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	conns      map[uuid.UUID]map[*Client]struct{}
	mu         sync.RWMutex
	logger     logging.Logger

	// onHeartbeat is invoked on every inbound client message, used to
	// refresh the user's presence key.
	onHeartbeat func(userID uuid.UUID)
}

func NewHub(cfg Config, logger logging.Logger) *Hub {
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = DefaultConfig().HeartbeatTimeout
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = DefaultConfig().WriteWait
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	return &Hub{
		cfg:        cfg,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		conns:      make(map[uuid.UUID]map[*Client]struct{}),
		logger:     logger,
	}
}

// OnHeartbeat registers the presence-refresh callback.
func (h *Hub) OnHeartbeat(fn func(userID uuid.UUID)) {
	h.onHeartbeat = fn
}

// Run starts the hub's registration loop. It returns when ctx is cancelled,
// closing every open connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.conns[client.userID] == nil {
				h.conns[client.userID] = make(map[*Client]struct{})
			}
			h.conns[client.userID][client] = struct{}{}
			total := h.total()
			h.mu.Unlock()
			h.logger.WithFields(logging.Fields{
				"user_id":    client.userID,
				"conn_count": total,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[client.userID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					if len(set) == 0 {
						delete(h.conns, client.userID)
					}
					close(client.send)
					close(client.priority)
				}
			}
			total := h.total()
			h.mu.Unlock()
			h.logger.WithFields(logging.Fields{
				"user_id":    client.userID,
				"conn_count": total,
			}).Info("Client disconnected")

		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.conns {
				for client := range set {
					close(client.send)
					close(client.priority)
				}
			}
			h.conns = make(map[uuid.UUID]map[*Client]struct{})
			h.mu.Unlock()
			close(h.done)
			return
		}
	}
}

// drop unregisters a client, giving up once the hub has shut down so a late
// disconnect cannot block its reader goroutine forever.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver pushes an event to every open connection owned by the recipient on
// this process and returns how many connections it was queued to. Expedited
// events jump the per-connection backlog. A full buffer on one connection
// never affects the others.
func (h *Hub) Deliver(ev *models.NotificationEvent) int {
	raw, err := json.Marshal(Message{Type: string(ev.Type), Payload: ev})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal event")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.conns[ev.UserID] {
		ch := client.send
		if ev.Priority.Expedited() {
			ch = client.priority
		}
		select {
		case ch <- raw:
			delivered++
		default:
			h.logger.WithFields(logging.Fields{
				"user_id": ev.UserID,
				"type":    ev.Type,
			}).Warn("Send buffer full, dropping event for connection")
		}
	}
	return delivered
}

// ConnectionsFor reports how many open connections a user has on this
// process.
func (h *Hub) ConnectionsFor(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Connections reports every open connection on this process.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total()
}

// total must be called with the mutex held.
func (h *Hub) total() int {
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}
