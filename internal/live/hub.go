package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is one live connection as the hub sees it. Implemented by
// *Client; tests substitute fakes.
type Conn interface {
	ConnID() string
	User() uuid.UUID
	Send(event string, payload interface{})
	ForceDisconnect(reason string)
}

// Publisher publishes a room event for other instances.
type Publisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to a session's channel and invokes handler for
// events published by other instances.
type Subscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Presence records where a user's live connection currently is.
type Presence struct {
	ConnID    string
	SessionID uuid.UUID
	JoinedAt  time.Time
}

// Hub holds the process-local room state: sessionID -> connections,
// userID -> connection, and the volatile hand-raised flags. All maps are
// guarded by one mutex which is never held across I/O; sends go through
// buffered per-connection channels.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[string]Conn
	users map[uuid.UUID]Presence
	hands map[uuid.UUID]map[uuid.UUID]bool
	subs  map[uuid.UUID]func()

	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates a live connection hub. pub/sub may be nil for a
// single-instance deployment.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]Conn),
		users:  make(map[uuid.UUID]Presence),
		hands:  make(map[uuid.UUID]map[uuid.UUID]bool),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register adds a connection to a session's room and records the user's
// presence. The first member of a room starts the cross-instance
// subscription; the subscribe round-trip runs outside the hub lock so a
// slow broker cannot stall other rooms.
func (h *Hub) Register(sessionID uuid.UUID, c Conn) {
	h.mu.Lock()
	first := h.rooms[sessionID] == nil
	if first {
		h.rooms[sessionID] = make(map[string]Conn)
	}
	h.rooms[sessionID][c.ConnID()] = c
	h.users[c.User()] = Presence{ConnID: c.ConnID(), SessionID: sessionID, JoinedAt: time.Now()}
	h.mu.Unlock()

	if first && h.sub != nil {
		cancel, err := h.sub.SubscribeSession(sessionID, func(event string, payload []byte) {
			h.broadcastLocal(sessionID, event, json.RawMessage(payload))
		})
		if err != nil {
			h.logger.Warn("session subscribe failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		} else {
			h.mu.Lock()
			_, alive := h.rooms[sessionID]
			if alive {
				h.subs[sessionID] = cancel
			}
			h.mu.Unlock()
			// the room emptied while we were subscribing
			if !alive {
				cancel()
			}
		}
	}
	h.logger.Debug("connection joined room",
		zap.String("conn_id", c.ConnID()), zap.String("session_id", sessionID.String()))
}

// Unregister removes a connection from a room and drops the user's
// presence entry when it still points at this connection. The last
// member leaving cancels the cross-instance subscription.
func (h *Hub) Unregister(sessionID uuid.UUID, connID string, userID uuid.UUID) {
	h.mu.Lock()
	if m, ok := h.rooms[sessionID]; ok {
		delete(m, connID)
		if len(m) == 0 {
			delete(h.rooms, sessionID)
			if cancel, ok := h.subs[sessionID]; ok {
				cancel()
				delete(h.subs, sessionID)
			}
		}
	}
	if p, ok := h.users[userID]; ok && p.ConnID == connID {
		delete(h.users, userID)
	}
	h.mu.Unlock()
	h.logger.Debug("connection left room",
		zap.String("conn_id", connID), zap.String("session_id", sessionID.String()))
}

// UserPresence returns where a user's tracked connection currently is.
func (h *Hub) UserPresence(userID uuid.UUID) (Presence, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.users[userID]
	return p, ok
}

// RoomCount returns the number of live connections in a session's room.
func (h *Hub) RoomCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Broadcast sends an event to every local room member and publishes it
// for other instances.
func (h *Hub) Broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(sessionID, event, json.RawMessage(data))
	if h.pub != nil {
		_ = h.pub.PublishSessionEvent(sessionID, event, data)
	}
}

func (h *Hub) broadcastLocal(sessionID uuid.UUID, event string, payload interface{}) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Send(event, payload)
	}
}

// SendTo sends an event to a single connection in a room.
func (h *Hub) SendTo(sessionID uuid.UUID, connID, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.rooms[sessionID][connID]
	h.mu.RUnlock()
	if ok {
		c.Send(event, payload)
	}
}

// SendToOthers sends an event to every room member except one connection.
func (h *Hub) SendToOthers(sessionID uuid.UUID, exceptConnID, event string, payload interface{}) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[sessionID]))
	for id, c := range h.rooms[sessionID] {
		if id != exceptConnID {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Send(event, payload)
	}
}

// SetHand flips the volatile hand-raised flag for a user in a session.
func (h *Hub) SetHand(sessionID, userID uuid.UUID, raised bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if raised {
		if h.hands[sessionID] == nil {
			h.hands[sessionID] = make(map[uuid.UUID]bool)
		}
		h.hands[sessionID][userID] = true
		return
	}
	delete(h.hands[sessionID], userID)
	if len(h.hands[sessionID]) == 0 {
		delete(h.hands, sessionID)
	}
}

// HandsRaised returns a copy of the session's raised hands.
func (h *Hub) HandsRaised(sessionID uuid.UUID) map[uuid.UUID]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[uuid.UUID]bool, len(h.hands[sessionID]))
	for u := range h.hands[sessionID] {
		out[u] = true
	}
	return out
}

// DisconnectAll force-disconnects every room member and discards all
// room bookkeeping for the session.
func (h *Hub) DisconnectAll(sessionID uuid.UUID, reason string) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		conns = append(conns, c)
		if p, ok := h.users[c.User()]; ok && p.SessionID == sessionID {
			delete(h.users, c.User())
		}
	}
	delete(h.rooms, sessionID)
	delete(h.hands, sessionID)
	if cancel, ok := h.subs[sessionID]; ok {
		cancel()
		delete(h.subs, sessionID)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.ForceDisconnect(reason)
	}
}

// DisconnectConn force-disconnects a single room member and removes it
// from the hub's bookkeeping.
func (h *Hub) DisconnectConn(sessionID uuid.UUID, connID string, reason string) {
	h.mu.Lock()
	c, ok := h.rooms[sessionID][connID]
	if ok {
		delete(h.rooms[sessionID], connID)
		if len(h.rooms[sessionID]) == 0 {
			delete(h.rooms, sessionID)
			if cancel, subOK := h.subs[sessionID]; subOK {
				cancel()
				delete(h.subs, sessionID)
			}
		}
		if p, pOK := h.users[c.User()]; pOK && p.ConnID == connID {
			delete(h.users, c.User())
		}
	}
	h.mu.Unlock()
	if ok {
		c.ForceDisconnect(reason)
	}
}
