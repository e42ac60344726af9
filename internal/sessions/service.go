package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/apperr"
	"github.com/campushive/backend/internal/models"
)

// Store is the persistence surface the lifecycle service drives. All
// conditional writes return nil when their guard matched no row, which
// the service maps to ConflictError.
type Store interface {
	Insert(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListByCourse(ctx context.Context, courseID string, statuses []models.SessionStatus) ([]models.Session, error)
	ListUpcomingByCourse(ctx context.Context, courseID string, after time.Time) ([]models.Session, error)
	ListOpen(ctx context.Context) ([]models.Session, error)
	ListOpenExpired(ctx context.Context, now time.Time) ([]models.Session, error)
	SetInitiator(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Session, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Close(ctx context.Context, id uuid.UUID, closedBy *uuid.UUID, closedByRole *models.Role, reason models.CloseReason, at time.Time) (*models.Session, error)
	SetParticipantCount(ctx context.Context, id uuid.UUID, count int) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// CreateInput is the data needed to schedule a session.
type CreateInput struct {
	CourseID        string
	Subject         string
	Description     string
	SessionType     models.SessionType
	StartTime       time.Time
	EndTime         time.Time
	MaxParticipants int
}

// Service implements the session lifecycle: creation, the
// upcoming -> active -> closed state machine and closure authorization.
type Service struct {
	store      Store
	defaultCap int
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a session lifecycle service. defaultCap is the soft
// participant cap applied when a creator does not set one.
func NewService(store Store, defaultCap int, logger *zap.Logger) *Service {
	if defaultCap <= 0 {
		defaultCap = models.DefaultMaxParticipants
	}
	return &Service{store: store, defaultCap: defaultCap, logger: logger, now: time.Now}
}

// Create schedules a new session with status upcoming. Only instructors
// and above may create sessions.
func (s *Service) Create(ctx context.Context, in CreateInput, creatorID uuid.UUID, creatorRole models.Role) (*models.Session, error) {
	if !creatorRole.CanModerate() {
		return nil, apperr.Authorization("role %q cannot create sessions", creatorRole)
	}
	if in.CourseID == "" {
		return nil, apperr.Validation("course_id is required")
	}
	if in.Subject == "" {
		return nil, apperr.Validation("subject is required")
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, apperr.Validation("end_time must be after start_time")
	}
	if in.SessionType == "" {
		in.SessionType = models.SessionTypePeer
	}
	if in.SessionType != models.SessionTypePeer && in.SessionType != models.SessionTypeInstructor {
		return nil, apperr.Validation("invalid session_type %q", in.SessionType)
	}
	if in.MaxParticipants <= 0 {
		in.MaxParticipants = s.defaultCap
	}

	session := &models.Session{
		CourseID:        in.CourseID,
		Subject:         in.Subject,
		Description:     in.Description,
		SessionType:     in.SessionType,
		CreatorID:       creatorID,
		CreatorRole:     creatorRole,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		MaxParticipants: in.MaxParticipants,
	}
	if err := s.store.Insert(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("course_id", session.CourseID),
		zap.Time("start_time", session.StartTime))
	return session, nil
}

// GetByID returns a session or NotFoundError.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.NotFound("session %s not found", id)
	}
	return session, nil
}

// ListByCourse returns a course's sessions. With no status filter it
// returns active and upcoming sessions, newest start time first.
func (s *Service) ListByCourse(ctx context.Context, courseID string, status models.SessionStatus) ([]models.Session, error) {
	statuses := []models.SessionStatus{models.StatusActive, models.StatusUpcoming}
	if status != "" {
		if status != models.StatusUpcoming && status != models.StatusActive && status != models.StatusClosed {
			return nil, apperr.Validation("invalid status filter %q", status)
		}
		statuses = []models.SessionStatus{status}
	}
	return s.store.ListByCourse(ctx, courseID, statuses)
}

// ListUpcomingByCourse returns upcoming sessions that have not started
// yet, soonest first.
func (s *Service) ListUpcomingByCourse(ctx context.Context, courseID string) ([]models.Session, error) {
	return s.store.ListUpcomingByCourse(ctx, courseID, s.now())
}

// ListOpen returns every non-closed session.
func (s *Service) ListOpen(ctx context.Context) ([]models.Session, error) {
	return s.store.ListOpen(ctx)
}

// ListOpenExpired returns non-closed sessions past their end time.
func (s *Service) ListOpenExpired(ctx context.Context) ([]models.Session, error) {
	return s.store.ListOpenExpired(ctx, s.now())
}

// Initiate records userID as the session's initiator and activates it.
// Exactly one caller per session succeeds; the rest get ConflictError,
// which joiners treat as a lost (and expected) race.
func (s *Service) Initiate(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusUpcoming || session.InitiatorUserID != nil {
		return nil, apperr.Conflict("session %s already initiated", sessionID)
	}
	updated, err := s.store.SetInitiator(ctx, sessionID, userID, s.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.Conflict("session %s already initiated", sessionID)
	}
	s.logger.Info("session initiated",
		zap.String("session_id", sessionID.String()),
		zap.String("initiator", userID.String()))
	return updated, nil
}

// CheckAndUpdateStatus recomputes the session's status from wall-clock
// time and persists any transition. Returns the session and whether a
// transition happened. Closed stays closed.
func (s *Service) CheckAndUpdateStatus(ctx context.Context, sessionID uuid.UUID) (*models.Session, bool, error) {
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	target := session.StatusForTime(s.now())
	if target == session.Status {
		return session, false, nil
	}
	switch target {
	case models.StatusActive:
		updated, err := s.store.Activate(ctx, sessionID)
		if err != nil {
			return nil, false, err
		}
		if updated == nil {
			// lost a race with another transition; report current state
			return s.reload(ctx, sessionID)
		}
		return updated, true, nil
	case models.StatusClosed:
		updated, err := s.store.Close(ctx, sessionID, nil, nil, models.CloseReasonTimeExpired, s.now())
		if err != nil {
			return nil, false, err
		}
		if updated == nil {
			return s.reload(ctx, sessionID)
		}
		s.logger.Info("session expired", zap.String("session_id", sessionID.String()))
		return updated, true, nil
	}
	return session, false, nil
}

func (s *Service) reload(ctx context.Context, sessionID uuid.UUID) (*models.Session, bool, error) {
	session, err := s.GetByID(ctx, sessionID)
	return session, false, err
}

// CloseManually closes a session on behalf of a moderator. Instructors
// may close only sessions they created; admins and superadmins may close
// any session.
func (s *Service) CloseManually(ctx context.Context, sessionID, userID uuid.UUID, role models.Role) (*models.Session, error) {
	if !role.CanModerate() {
		return nil, apperr.Authorization("role %q cannot close sessions", role)
	}
	session, err := s.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleInstructor && session.CreatorID != userID {
		return nil, apperr.Authorization("instructors may only close sessions they created")
	}
	if session.IsClosed() {
		return nil, apperr.Conflict("session %s is already closed", sessionID)
	}
	updated, err := s.store.Close(ctx, sessionID, &userID, &role, models.CloseReasonManualClosure, s.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.Conflict("session %s is already closed", sessionID)
	}
	s.logger.Info("session closed manually",
		zap.String("session_id", sessionID.String()),
		zap.String("closed_by", userID.String()),
		zap.String("role", string(role)))
	return updated, nil
}

// UpdateParticipantCount writes the denormalized participant counter.
func (s *Service) UpdateParticipantCount(ctx context.Context, sessionID uuid.UUID, count int) error {
	return s.store.SetParticipantCount(ctx, sessionID, count)
}

// Delete removes a session; the schema cascades participant deletion.
func (s *Service) Delete(ctx context.Context, sessionID uuid.UUID) error {
	deleted, err := s.store.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("session %s not found", sessionID)
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID.String()))
	return nil
}
