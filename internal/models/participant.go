package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a per-user presence record within a session. At most one
// row exists per (session_id, user_id); rejoin cycles reuse it.
type Participant struct {
	ID              uuid.UUID  `json:"id"`
	SessionID       uuid.UUID  `json:"session_id"`
	UserID          uuid.UUID  `json:"user_id"`
	UserName        string     `json:"user_name"`
	Role            Role       `json:"role"`
	Active          bool       `json:"active"`
	JoinTime        time.Time  `json:"join_time"`
	LastLeaveTime   *time.Time `json:"last_leave_time,omitempty"`
	TotalDurationMs int64      `json:"total_duration_ms"`
	AudioEnabled    bool       `json:"audio_enabled"`
	VideoEnabled    bool       `json:"video_enabled"`
	DisconnectCount int        `json:"disconnect_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SessionParticipantStats aggregates presence records for one session.
type SessionParticipantStats struct {
	SessionID         uuid.UUID     `json:"session_id"`
	ActiveCount       int           `json:"active_count"`
	TotalCount        int           `json:"total_count"`
	AverageDurationMs int64         `json:"average_duration_ms"`
	Participants      []Participant `json:"participants"`
}
