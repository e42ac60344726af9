package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a discussion session.
// Transitions are monotonic: upcoming -> active -> closed, or
// upcoming -> closed directly. Closed is terminal.
type SessionStatus string

const (
	StatusUpcoming SessionStatus = "upcoming"
	StatusActive   SessionStatus = "active"
	StatusClosed   SessionStatus = "closed"
)

// SessionType distinguishes peer-led from instructor-led discussions.
type SessionType string

const (
	SessionTypePeer       SessionType = "peer"
	SessionTypeInstructor SessionType = "instructor"
)

// CloseReason records why a session reached closed.
type CloseReason string

const (
	CloseReasonTimeExpired   CloseReason = "time_expired"
	CloseReasonManualClosure CloseReason = "manual_closure"
)

// DefaultMaxParticipants is the soft participant cap for new sessions.
const DefaultMaxParticipants = 50

// Session is a scheduled, time-boxed discussion grouping for a course.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	CourseID         string        `json:"course_id"`
	Subject          string        `json:"subject"`
	Description      string        `json:"description"`
	SessionType      SessionType   `json:"session_type"`
	CreatorID        uuid.UUID     `json:"creator_id"`
	CreatorRole      Role          `json:"creator_role"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Status           SessionStatus `json:"status"`
	InitiatorUserID  *uuid.UUID    `json:"initiator_user_id,omitempty"`
	InitiatedAt      *time.Time    `json:"initiated_at,omitempty"`
	ClosedBy         *uuid.UUID    `json:"closed_by,omitempty"`
	ClosedByRole     *Role         `json:"closed_by_role,omitempty"`
	ClosedAt         *time.Time    `json:"closed_at,omitempty"`
	ClosedReason     *CloseReason  `json:"closed_reason,omitempty"`
	ParticipantCount int           `json:"participant_count"`
	MaxParticipants  int           `json:"max_participants"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsClosed reports whether the session reached its terminal state.
func (s *Session) IsClosed() bool { return s.Status == StatusClosed }

// Full reports whether the advisory participant count reached the cap.
// The cap is soft: joins are not rejected on it.
func (s *Session) Full() bool {
	return s.MaxParticipants > 0 && s.ParticipantCount >= s.MaxParticipants
}

// StatusForTime returns the status the session should hold at t, given
// only its time bounds. The caller still owns monotonicity: a closed
// session never leaves closed.
func (s *Session) StatusForTime(t time.Time) SessionStatus {
	switch {
	case s.Status == StatusClosed || !t.Before(s.EndTime):
		return StatusClosed
	case !t.Before(s.StartTime):
		return StatusActive
	default:
		return StatusUpcoming
	}
}
