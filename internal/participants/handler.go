package participants

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/apperr"
	"github.com/campushive/backend/internal/middleware"
	"github.com/campushive/backend/internal/models"
	"github.com/campushive/backend/internal/sessions"
	"github.com/campushive/backend/pkg/response"
)

// RosterNotifier pushes a refreshed participant list to a session's live
// room after a REST-side membership change.
type RosterNotifier interface {
	BroadcastRoster(sessionID uuid.UUID)
}

// Handler handles participant HTTP endpoints.
type Handler struct {
	repo     *Repository
	sessions *sessions.Service
	notifier RosterNotifier
	logger   *zap.Logger
}

// NewHandler creates a participant handler.
func NewHandler(repo *Repository, sessions *sessions.Service, notifier RosterNotifier, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, sessions: sessions, notifier: notifier, logger: logger}
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// Register handles POST /sessions/:id/participants. Pre-registers (or
// rejoins) the caller; the live join upsert is idempotent with this one,
// so either path may run first.
func (h *Handler) Register(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	session, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if session.IsClosed() {
		response.FromError(c, apperr.Conflict("session %s is closed", sessionID))
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role := c.MustGet(middleware.ContextUserRole).(models.Role)
	userName := c.GetString(middleware.ContextUserName)

	p, err := h.repo.AddOrRejoin(c.Request.Context(), sessionID, userID, role, userName)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if count, err := h.repo.ActiveCount(c.Request.Context(), sessionID); err == nil {
		_ = h.sessions.UpdateParticipantCount(c.Request.Context(), sessionID, count)
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoster(sessionID)
	}
	response.Created(c, p)
}

// Leave handles POST /sessions/:id/participants/leave (explicit leave).
func (h *Handler) Leave(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	p, err := h.repo.Remove(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if count, err := h.repo.ActiveCount(c.Request.Context(), sessionID); err == nil {
		_ = h.sessions.UpdateParticipantCount(c.Request.Context(), sessionID, count)
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoster(sessionID)
	}
	response.OK(c, p)
}

// ListActive handles GET /sessions/:id/participants/active.
func (h *Handler) ListActive(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	list, err := h.repo.GetActive(c.Request.Context(), sessionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /sessions/:id/participants.
func (h *Handler) ListAll(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	list, err := h.repo.GetAll(c.Request.Context(), sessionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Stats handles GET /sessions/:id/participants/stats.
func (h *Handler) Stats(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	stats, err := h.repo.Stats(c.Request.Context(), sessionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, stats)
}

// MediaRequest is the body for PATCH /sessions/:id/participants/media.
type MediaRequest struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

// UpdateMedia handles PATCH /sessions/:id/participants/media (self).
func (h *Handler) UpdateMedia(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	p, err := h.repo.UpdateMediaStatus(c.Request.Context(), sessionID, userID, req.AudioEnabled, req.VideoEnabled)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if h.notifier != nil {
		h.notifier.BroadcastRoster(sessionID)
	}
	response.OK(c, p)
}
