package live

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/campushive/backend/internal/models"
)

// Client -> server events.
const (
	EventJoinSession       = "join-session"
	EventLeaveSession      = "leave-session"
	EventCloseSession      = "close-session"
	EventRemoveParticipant = "admin-remove-participant"
	EventCheckStatus       = "check-session-status"
	EventRaiseHand         = "raise-hand"
	EventReaction          = "reaction"
	EventHeartbeat         = "heartbeat"
)

// Server -> client events.
const (
	EventAck               = "ack"
	EventParticipantList   = "participant-list-updated"
	EventSessionStatus     = "session-status-updated"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventSessionClosed     = "session-closed"
	EventUserReaction      = "user-reaction"
	EventForceDisconnect   = "force-disconnect"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack is the per-request acknowledgement sent back to a requester.
// Errors surface here only, never as room broadcasts.
type Ack struct {
	Event string `json:"event"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ParticipantView is a participant row enriched with the volatile
// hand-raised flag for roster broadcasts.
type ParticipantView struct {
	models.Participant
	HandRaised bool `json:"hand_raised"`
}

// RosterPayload is the data of a participant-list-updated broadcast.
type RosterPayload struct {
	SessionID    uuid.UUID         `json:"session_id"`
	Participants []ParticipantView `json:"participants"`
}

// StatusPayload is the data of a session-status-updated broadcast.
type StatusPayload struct {
	SessionID uuid.UUID            `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Session   *models.Session      `json:"session,omitempty"`
}

// MemberPayload announces one participant joining or leaving.
type MemberPayload struct {
	SessionID uuid.UUID   `json:"session_id"`
	UserID    uuid.UUID   `json:"user_id"`
	UserName  string      `json:"user_name"`
	Role      models.Role `json:"role"`
}

// ReactionPayload is fanned out verbatim to every room connection.
type ReactionPayload struct {
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	UserName  string          `json:"user_name"`
	Role      models.Role     `json:"role"`
	Reaction  json.RawMessage `json:"reaction"`
}

// ClosedPayload is the data of a session-closed broadcast.
type ClosedPayload struct {
	SessionID uuid.UUID          `json:"session_id"`
	Reason    models.CloseReason `json:"reason"`
}

// DisconnectPayload tells one connection to go away and why.
type DisconnectPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason"`
}
