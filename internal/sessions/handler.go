package sessions

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/middleware"
	"github.com/campushive/backend/internal/models"
	"github.com/campushive/backend/pkg/response"
)

// Live is the coordinator surface the REST close, refresh and delete
// endpoints drive, so closures also disconnect connected clients.
type Live interface {
	CloseSession(ctx context.Context, sessionID, moderatorID uuid.UUID, role models.Role) (*models.Session, error)
	CheckStatus(ctx context.Context, sessionID uuid.UUID) (*models.Session, bool, error)
	Disband(sessionID uuid.UUID)
}

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	CourseID        string `json:"course_id" binding:"required"`
	Subject         string `json:"subject" binding:"required"`
	Description     string `json:"description"`
	SessionType     string `json:"session_type"`
	StartTime       string `json:"start_time" binding:"required"`
	EndTime         string `json:"end_time" binding:"required"`
	MaxParticipants int    `json:"max_participants"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	svc    *Service
	live   Live
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, live Live, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, live: live, logger: logger}
}

func callerIdentity(c *gin.Context) (uuid.UUID, models.Role) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role := c.MustGet(middleware.ContextUserRole).(models.Role)
	return userID, role
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /sessions (instructor and above).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		response.BadRequest(c, "invalid start_time")
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		response.BadRequest(c, "invalid end_time")
		return
	}
	userID, role := callerIdentity(c)
	session, err := h.svc.Create(c.Request.Context(), CreateInput{
		CourseID:        req.CourseID,
		Subject:         req.Subject,
		Description:     req.Description,
		SessionType:     models.SessionType(req.SessionType),
		StartTime:       startTime,
		EndTime:         endTime,
		MaxParticipants: req.MaxParticipants,
	}, userID, role)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, session)
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	session, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, session)
}

// ListByCourse handles GET /courses/:courseId/sessions.
// Without ?status= it returns active and upcoming sessions.
func (h *Handler) ListByCourse(c *gin.Context) {
	list, err := h.svc.ListByCourse(c.Request.Context(), c.Param("courseId"),
		models.SessionStatus(c.Query("status")))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// ListUpcomingByCourse handles GET /courses/:courseId/sessions/upcoming.
func (h *Handler) ListUpcomingByCourse(c *gin.Context) {
	list, err := h.svc.ListUpcomingByCourse(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// ListOpen handles GET /sessions/active (all non-closed sessions).
func (h *Handler) ListOpen(c *gin.Context) {
	list, err := h.svc.ListOpen(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

// Initiate handles POST /sessions/:id/initiate. A ConflictError means
// someone else initiated first; callers treat that as non-fatal.
func (h *Handler) Initiate(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID, _ := callerIdentity(c)
	session, err := h.svc.Initiate(c.Request.Context(), id, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, session)
}

// Close handles POST /sessions/:id/close (manual closure by a moderator).
// Goes through the coordinator so connected clients get disconnected.
func (h *Handler) Close(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	userID, role := callerIdentity(c)
	session, err := h.live.CloseSession(c.Request.Context(), id, userID, role)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, session)
}

// CheckStatus handles POST /sessions/:id/check-status. Recomputes the
// time-driven status; an expiry closure also disconnects the room.
func (h *Handler) CheckStatus(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	session, changed, err := h.live.CheckStatus(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"session": session, "changed": changed})
}

// Delete handles DELETE /sessions/:id (admin and above).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	h.live.Disband(id)
	response.NoContent(c)
}
