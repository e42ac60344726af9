package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/apperr"
	"github.com/campushive/backend/internal/auth"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Client is a single live connection. One session at a time. sessionID
// is written on the read goroutine and read by hub-driven disconnects,
// so it sits behind its own mutex.
type Client struct {
	id     string
	joiner Joiner

	mu        sync.Mutex
	sessionID uuid.UUID

	hub    *Hub
	co     *Coordinator
	conn   *websocket.Conn
	send   chan WSMessage
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func (c *Client) session() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSession(id uuid.UUID) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// ConnID returns the connection's unique ID.
func (c *Client) ConnID() string { return c.id }

// User returns the authenticated user behind this connection.
func (c *Client) User() uuid.UUID { return c.joiner.UserID }

// Send enqueues a message for delivery; a full buffer drops the message
// rather than blocking the caller.
func (c *Client) Send(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// ForceDisconnect delivers a force-disconnect event and then closes the
// connection once pending messages are flushed.
func (c *Client) ForceDisconnect(reason string) {
	c.Send(EventForceDisconnect, DisconnectPayload{SessionID: c.session(), Reason: reason})
	c.once.Do(func() { close(c.done) })
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// credential comes from the token query parameter, since browsers cannot
// set an Authorization header on a WebSocket upgrade.
func ServeWs(hub *Hub, co *Coordinator, authority *auth.Authority, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		joiner, ok := resolveJoiner(c, authority)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:     uuid.New().String(),
			joiner: joiner,
			hub:    hub,
			co:     co,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			done:   make(chan struct{}),
			logger: logger,
		}
		go client.writePump()
		client.readPump()
	}
}

func resolveJoiner(c *gin.Context, authority *auth.Authority) (Joiner, bool) {
	token := c.Query("token")
	if token == "" {
		return Joiner{}, false
	}
	identity, err := authority.Resolve(c.Request.Context(), token)
	if err != nil {
		return Joiner{}, false
	}
	return Joiner{UserID: identity.UserID, UserName: identity.Name, Role: identity.Role}, true
}

func (c *Client) readPump() {
	defer func() {
		if sid := c.session(); sid != uuid.Nil {
			c.co.HandleDisconnect(sid, c, c.joiner)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(msg)
	}
}

func (c *Client) ack(event string, err error) {
	a := Ack{Event: event, OK: err == nil}
	if err != nil {
		a.Error = err.Error()
	}
	c.Send(EventAck, a)
}

type sessionRef struct {
	SessionID string `json:"session_id"`
}

func (c *Client) dispatch(msg WSMessage) {
	ctx := context.Background()

	switch msg.Event {
	case EventJoinSession:
		var ref sessionRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			c.ack(msg.Event, err)
			return
		}
		sessionID, err := uuid.Parse(ref.SessionID)
		if err != nil {
			c.ack(msg.Event, err)
			return
		}
		if current := c.session(); current == sessionID {
			c.ack(msg.Event, nil) // idempotent re-join on the same connection
			return
		} else if current != uuid.Nil {
			// same connection, different session: detach first
			_ = c.co.Leave(ctx, current, c, c.joiner)
			c.setSession(uuid.Nil)
		}
		if _, err := c.co.Join(ctx, sessionID, c.joiner, c); err != nil {
			c.ack(msg.Event, err)
			return
		}
		c.setSession(sessionID)
		c.ack(msg.Event, nil)

	case EventLeaveSession:
		current := c.session()
		if current == uuid.Nil {
			c.ack(msg.Event, nil)
			return
		}
		err := c.co.Leave(ctx, current, c, c.joiner)
		if err == nil {
			c.setSession(uuid.Nil)
		}
		c.ack(msg.Event, err)

	case EventCloseSession:
		var ref sessionRef
		sessionID := c.session()
		if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &ref) == nil && ref.SessionID != "" {
			if id, err := uuid.Parse(ref.SessionID); err == nil {
				sessionID = id
			}
		}
		_, err := c.co.CloseSession(ctx, sessionID, c.joiner.UserID, c.joiner.Role)
		c.ack(msg.Event, err)

	case EventRemoveParticipant:
		var req struct {
			SessionID string `json:"session_id"`
			UserID    string `json:"user_id"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.ack(msg.Event, err)
			return
		}
		sessionID := c.session()
		if req.SessionID != "" {
			if id, err := uuid.Parse(req.SessionID); err == nil {
				sessionID = id
			}
		}
		targetID, err := uuid.Parse(req.UserID)
		if err != nil {
			c.ack(msg.Event, err)
			return
		}
		c.ack(msg.Event, c.co.RemoveParticipant(ctx, sessionID, targetID, c.joiner.UserID, c.joiner.Role))

	case EventCheckStatus:
		var ref sessionRef
		sessionID := c.session()
		if len(msg.Data) > 0 && json.Unmarshal(msg.Data, &ref) == nil && ref.SessionID != "" {
			if id, err := uuid.Parse(ref.SessionID); err == nil {
				sessionID = id
			}
		}
		_, _, err := c.co.CheckStatus(ctx, sessionID)
		c.ack(msg.Event, err)

	case EventRaiseHand:
		sessionID := c.session()
		if sessionID == uuid.Nil {
			c.ack(msg.Event, apperr.Conflict("no session joined"))
			return
		}
		var req struct {
			IsRaised bool `json:"is_raised"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.ack(msg.Event, err)
			return
		}
		c.co.RaiseHand(sessionID, c.joiner.UserID, req.IsRaised)
		c.ack(msg.Event, nil)

	case EventReaction:
		sessionID := c.session()
		if sessionID == uuid.Nil {
			c.ack(msg.Event, apperr.Conflict("no session joined"))
			return
		}
		c.co.Reaction(sessionID, c.joiner, msg.Data)

	case EventHeartbeat:
		c.ack(msg.Event, nil)

	default:
		// ignore
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// flush pending messages, then close
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteJSON(msg); err != nil {
						return
					}
				default:
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected"))
					return
				}
			}
		}
	}
}
