package fanout

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ahfmawlrl/sns-solution/pkg/auth"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

const maxMessageSize = 512

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one open WebSocket connection owned by a user.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   uuid.UUID
	send     chan []byte
	priority chan []byte
	logger   logging.Entry
}

// inboundMessage is the only client→server message shape: a liveness ping.
type inboundMessage struct {
	Type string `json:"type"`
}

// ServeWS returns the WebSocket handshake handler. The credential is
// verified after the upgrade so the client receives a distinguishing close
// code instead of a bare HTTP error.
func (h *Hub) ServeWS(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
			return
		}

		claims, err := auth.ValidateJWT(c.Query("token"), secret)
		if err != nil {
			h.closeWith(conn, CloseUnauthorized, "invalid or expired token")
			return
		}
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			h.closeWith(conn, CloseUnauthorized, "invalid user id in token")
			return
		}

		client := &Client{
			hub:      h,
			conn:     conn,
			userID:   userID,
			send:     make(chan []byte, h.cfg.SendBuffer),
			priority: make(chan []byte, h.cfg.SendBuffer),
			logger:   h.logger.WithField("user_id", userID.String()),
		}

		select {
		case h.register <- client:
		case <-h.done:
			h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (h *Hub) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.cfg.WriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// readPump enforces the heartbeat contract: any inbound frame resets the
// read deadline; silence past the deadline closes the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.HeartbeatTimeout))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				c.logger.Info("Heartbeat timeout, closing connection")
				c.hub.closeWith(c.conn, websocket.CloseNormalClosure, "idle timeout")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.HeartbeatTimeout))
		if c.hub.onHeartbeat != nil {
			c.hub.onHeartbeat(c.userID)
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.WithError(err).Warn("Invalid client message")
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(Message{Type: "pong"})
			select {
			case c.priority <- pong:
			default:
			}
		}
	}
}

// writePump drains the priority channel ahead of the normal backlog.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		var raw []byte
		var ok bool

		select {
		case raw, ok = <-c.priority:
		default:
			select {
			case raw, ok = <-c.priority:
			case raw, ok = <-c.send:
			}
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
		if !ok {
			// Hub shutdown closed the channels.
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}
