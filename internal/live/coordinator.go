package live

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/apperr"
	"github.com/campushive/backend/internal/models"
)

// Lifecycle is the session state-machine surface the coordinator drives.
// Implemented by sessions.Service.
type Lifecycle interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Initiate(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error)
	CheckAndUpdateStatus(ctx context.Context, sessionID uuid.UUID) (*models.Session, bool, error)
	CloseManually(ctx context.Context, sessionID, userID uuid.UUID, role models.Role) (*models.Session, error)
	UpdateParticipantCount(ctx context.Context, sessionID uuid.UUID, count int) error
	ListOpenExpired(ctx context.Context) ([]models.Session, error)
}

// Registry is the participant presence surface the coordinator drives.
// Implemented by participants.Repository.
type Registry interface {
	AddOrRejoin(ctx context.Context, sessionID, userID uuid.UUID, role models.Role, userName string) (*models.Participant, error)
	Remove(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	GetActive(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	ActiveCount(ctx context.Context, sessionID uuid.UUID) (int, error)
	CleanupSession(ctx context.Context, sessionID uuid.UUID) (int, error)
	PurgeInactiveDuplicates(ctx context.Context, sessionID, userID uuid.UUID) error
}

// Joiner identifies who is joining a session.
type Joiner struct {
	UserID   uuid.UUID
	UserName string
	Role     models.Role
}

// Coordinator manages live membership: it validates joins, keeps the
// registry and the hub in agreement, and fans out state changes to
// rooms. All persistence goes through the lifecycle and registry
// collaborators; broadcasts are issued only after the triggering write
// returned.
type Coordinator struct {
	hub       *Hub
	lifecycle Lifecycle
	registry  Registry
	logger    *zap.Logger
}

// NewCoordinator creates a live session coordinator.
func NewCoordinator(hub *Hub, lifecycle Lifecycle, registry Registry, logger *zap.Logger) *Coordinator {
	return &Coordinator{hub: hub, lifecycle: lifecycle, registry: registry, logger: logger}
}

// Join runs the join pipeline for a connection: validate the session,
// supersede any membership in another session, purge stale rows, upsert
// presence, register the connection, try to initiate an upcoming
// session, then broadcast the refreshed roster and status.
func (co *Coordinator) Join(ctx context.Context, sessionID uuid.UUID, joiner Joiner, conn Conn) (*models.Session, error) {
	session, err := co.lifecycle.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, apperr.Conflict("session %s is closed", sessionID)
	}

	co.supersedeOtherSession(ctx, sessionID, joiner.UserID)

	// best-effort; a failure here never blocks the join
	if err := co.registry.PurgeInactiveDuplicates(ctx, sessionID, joiner.UserID); err != nil {
		co.logger.Warn("duplicate purge failed",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", joiner.UserID.String()), zap.Error(err))
	}

	if _, err := co.registry.AddOrRejoin(ctx, sessionID, joiner.UserID, joiner.Role, joiner.UserName); err != nil {
		return nil, err
	}

	co.hub.Register(sessionID, conn)

	if session.Status == models.StatusUpcoming && session.InitiatorUserID == nil {
		updated, err := co.lifecycle.Initiate(ctx, sessionID, joiner.UserID)
		switch {
		case err == nil:
			session = updated
		case errors.Is(err, apperr.ErrConflict):
			// lost the initiate race; refresh and move on
			if current, gerr := co.lifecycle.GetByID(ctx, sessionID); gerr == nil {
				session = current
			}
		default:
			co.logger.Warn("initiate failed",
				zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}

	co.refreshParticipantCount(ctx, sessionID)
	co.BroadcastRoster(sessionID)
	co.hub.Broadcast(sessionID, EventSessionStatus, StatusPayload{
		SessionID: sessionID, Status: session.Status, Session: session,
	})
	co.hub.SendToOthers(sessionID, conn.ConnID(), EventParticipantJoined, MemberPayload{
		SessionID: sessionID, UserID: joiner.UserID, UserName: joiner.UserName, Role: joiner.Role,
	})

	co.logger.Info("participant joined",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", joiner.UserID.String()))
	return session, nil
}

// supersedeOtherSession drops a user's live membership in a different
// session before they join a new one. The stale connection is told to
// disconnect, never closed server-side. Every step is best-effort.
func (co *Coordinator) supersedeOtherSession(ctx context.Context, newSessionID, userID uuid.UUID) {
	prev, ok := co.hub.UserPresence(userID)
	if !ok || prev.SessionID == newSessionID {
		return
	}
	if _, err := co.registry.Remove(ctx, prev.SessionID, userID); err != nil &&
		!errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrNotFound) {
		co.logger.Warn("superseded membership removal failed",
			zap.String("session_id", prev.SessionID.String()),
			zap.String("user_id", userID.String()), zap.Error(err))
	}
	co.hub.SetHand(prev.SessionID, userID, false)
	co.hub.SendTo(prev.SessionID, prev.ConnID, EventForceDisconnect, DisconnectPayload{
		SessionID: prev.SessionID, Reason: "superseded by a newer connection",
	})
	co.hub.Unregister(prev.SessionID, prev.ConnID, userID)
	co.refreshParticipantCount(ctx, prev.SessionID)
	co.BroadcastRoster(prev.SessionID)
	co.logger.Info("superseded prior session membership",
		zap.String("old_session_id", prev.SessionID.String()),
		zap.String("user_id", userID.String()))
}

// Leave handles an explicit leave request from a connection.
func (co *Coordinator) Leave(ctx context.Context, sessionID uuid.UUID, conn Conn, joiner Joiner) error {
	return co.detach(ctx, sessionID, conn.ConnID(), joiner, "leave")
}

// HandleDisconnect runs the leave cleanup for a connection that dropped
// without an explicit leave. Always best-effort: a second disconnect for
// the same user must not error.
func (co *Coordinator) HandleDisconnect(sessionID uuid.UUID, conn Conn, joiner Joiner) {
	ctx := context.Background()
	if err := co.detach(ctx, sessionID, conn.ConnID(), joiner, "disconnect"); err != nil {
		co.logger.Warn("disconnect cleanup",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", joiner.UserID.String()), zap.Error(err))
	}
}

func (co *Coordinator) detach(ctx context.Context, sessionID uuid.UUID, connID string, joiner Joiner, cause string) error {
	// a newer connection owns this membership; drop only the stale one
	if p, ok := co.hub.UserPresence(joiner.UserID); ok && p.SessionID == sessionID && p.ConnID != connID {
		co.hub.Unregister(sessionID, connID, joiner.UserID)
		co.logger.Debug("stale connection detached",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", joiner.UserID.String()),
			zap.String("conn_id", connID))
		return nil
	}
	if _, err := co.registry.Remove(ctx, sessionID, joiner.UserID); err != nil {
		if !errors.Is(err, apperr.ErrConflict) && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		co.logger.Debug("participant already inactive on "+cause,
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", joiner.UserID.String()))
	}
	co.hub.SetHand(sessionID, joiner.UserID, false)
	co.hub.Unregister(sessionID, connID, joiner.UserID)
	co.refreshParticipantCount(ctx, sessionID)
	co.BroadcastRoster(sessionID)
	co.hub.Broadcast(sessionID, EventParticipantLeft, MemberPayload{
		SessionID: sessionID, UserID: joiner.UserID, UserName: joiner.UserName, Role: joiner.Role,
	})
	co.logger.Info("participant left",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", joiner.UserID.String()),
		zap.String("cause", cause))
	return nil
}

// CloseSession closes a session on a moderator's behalf, deactivates
// every participant and force-disconnects the room.
func (co *Coordinator) CloseSession(ctx context.Context, sessionID, moderatorID uuid.UUID, role models.Role) (*models.Session, error) {
	session, err := co.lifecycle.CloseManually(ctx, sessionID, moderatorID, role)
	if err != nil {
		return nil, err
	}
	co.finishClosure(ctx, sessionID, models.CloseReasonManualClosure)
	return session, nil
}

// finishClosure runs the shared post-closure sequence: bulk-inactivate
// participants, zero the counter, announce, disconnect, drop room state.
func (co *Coordinator) finishClosure(ctx context.Context, sessionID uuid.UUID, reason models.CloseReason) {
	if _, err := co.registry.CleanupSession(ctx, sessionID); err != nil {
		co.logger.Error("participant cleanup failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
	}
	if err := co.lifecycle.UpdateParticipantCount(ctx, sessionID, 0); err != nil {
		co.logger.Warn("participant count reset failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
	}
	co.hub.Broadcast(sessionID, EventSessionClosed, ClosedPayload{SessionID: sessionID, Reason: reason})
	co.hub.DisconnectAll(sessionID, "session closed")
	co.logger.Info("session room closed",
		zap.String("session_id", sessionID.String()), zap.String("reason", string(reason)))
}

// RemoveParticipant forcibly removes one participant on a moderator's
// behalf. Only the target connection is disconnected.
func (co *Coordinator) RemoveParticipant(ctx context.Context, sessionID, targetUserID, moderatorID uuid.UUID, role models.Role) error {
	if !role.CanModerate() {
		return apperr.Authorization("role %q cannot remove participants", role)
	}
	session, err := co.lifecycle.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if role == models.RoleInstructor && session.CreatorID != moderatorID {
		return apperr.Authorization("instructors may only moderate sessions they created")
	}
	if _, err := co.registry.Remove(ctx, sessionID, targetUserID); err != nil {
		return err
	}
	co.hub.SetHand(sessionID, targetUserID, false)
	co.refreshParticipantCount(ctx, sessionID)
	if p, ok := co.hub.UserPresence(targetUserID); ok && p.SessionID == sessionID {
		co.hub.DisconnectConn(sessionID, p.ConnID, "removed by moderator")
	}
	co.BroadcastRoster(sessionID)
	co.hub.Broadcast(sessionID, EventParticipantLeft, MemberPayload{SessionID: sessionID, UserID: targetUserID})
	co.logger.Info("participant removed by moderator",
		zap.String("session_id", sessionID.String()),
		zap.String("target", targetUserID.String()),
		zap.String("moderator", moderatorID.String()))
	return nil
}

// RaiseHand flips the volatile hand flag and re-broadcasts the roster.
func (co *Coordinator) RaiseHand(sessionID, userID uuid.UUID, raised bool) {
	co.hub.SetHand(sessionID, userID, raised)
	co.BroadcastRoster(sessionID)
}

// Reaction fans an ephemeral reaction out to the whole room. No
// persistence and no role restriction.
func (co *Coordinator) Reaction(sessionID uuid.UUID, from Joiner, reaction json.RawMessage) {
	co.hub.Broadcast(sessionID, EventUserReaction, ReactionPayload{
		SessionID: sessionID,
		UserID:    from.UserID,
		UserName:  from.UserName,
		Role:      from.Role,
		Reaction:  reaction,
	})
}

// CheckStatus recomputes the time-driven status. A transition to closed
// runs the same cleanup sequence as a manual closure; a transition to
// active is announced to the room.
func (co *Coordinator) CheckStatus(ctx context.Context, sessionID uuid.UUID) (*models.Session, bool, error) {
	session, changed, err := co.lifecycle.CheckAndUpdateStatus(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		switch session.Status {
		case models.StatusClosed:
			co.finishClosure(ctx, sessionID, models.CloseReasonTimeExpired)
		case models.StatusActive:
			co.hub.Broadcast(sessionID, EventSessionStatus, StatusPayload{
				SessionID: sessionID, Status: session.Status, Session: session,
			})
		}
	}
	return session, changed, nil
}

// Disband discards a session's room after the session record is gone
// (privileged delete). Participants were removed by the cascade.
func (co *Coordinator) Disband(sessionID uuid.UUID) {
	co.hub.Broadcast(sessionID, EventSessionClosed, ClosedPayload{SessionID: sessionID, Reason: models.CloseReasonManualClosure})
	co.hub.DisconnectAll(sessionID, "session deleted")
}

// Sweep drives every expired non-closed session through auto-closure.
// Runs independently of any connected client.
func (co *Coordinator) Sweep(ctx context.Context) {
	expired, err := co.lifecycle.ListOpenExpired(ctx)
	if err != nil {
		co.logger.Error("sweep query failed", zap.Error(err))
		return
	}
	for _, s := range expired {
		if _, _, err := co.CheckStatus(ctx, s.ID); err != nil {
			co.logger.Error("sweep close failed",
				zap.String("session_id", s.ID.String()), zap.Error(err))
		}
	}
}

// BroadcastRoster pushes the refreshed participant list, including hand
// flags, to the whole room.
func (co *Coordinator) BroadcastRoster(sessionID uuid.UUID) {
	active, err := co.registry.GetActive(context.Background(), sessionID)
	if err != nil {
		co.logger.Warn("roster load failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	hands := co.hub.HandsRaised(sessionID)
	views := make([]ParticipantView, 0, len(active))
	for _, p := range active {
		views = append(views, ParticipantView{Participant: p, HandRaised: hands[p.UserID]})
	}
	co.hub.Broadcast(sessionID, EventParticipantList, RosterPayload{SessionID: sessionID, Participants: views})
}

func (co *Coordinator) refreshParticipantCount(ctx context.Context, sessionID uuid.UUID) {
	count, err := co.registry.ActiveCount(ctx, sessionID)
	if err != nil {
		co.logger.Warn("active count failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return
	}
	if err := co.lifecycle.UpdateParticipantCount(ctx, sessionID, count); err != nil {
		co.logger.Warn("participant count update failed",
			zap.String("session_id", sessionID.String()), zap.Error(err))
	}
}
