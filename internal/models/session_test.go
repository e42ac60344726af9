package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusForTime(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	s := &Session{Status: StatusUpcoming, StartTime: start, EndTime: end}

	assert.Equal(t, StatusUpcoming, s.StatusForTime(start.Add(-time.Minute)))
	assert.Equal(t, StatusActive, s.StatusForTime(start))
	assert.Equal(t, StatusActive, s.StatusForTime(start.Add(30*time.Minute)))
	assert.Equal(t, StatusClosed, s.StatusForTime(end))
	assert.Equal(t, StatusClosed, s.StatusForTime(end.Add(time.Minute)))

	// closed is terminal no matter the clock
	s.Status = StatusClosed
	assert.Equal(t, StatusClosed, s.StatusForTime(start.Add(-time.Minute)))
}

func TestFullIsAdvisory(t *testing.T) {
	s := &Session{MaxParticipants: 2, ParticipantCount: 1}
	assert.False(t, s.Full())
	s.ParticipantCount = 2
	assert.True(t, s.Full())

	// zero cap means uncapped
	s = &Session{MaxParticipants: 0, ParticipantCount: 100}
	assert.False(t, s.Full())
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleSuperadmin.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleInstructor))
	assert.True(t, RoleInstructor.AtLeast(RoleInstructor))
	assert.False(t, RoleStudent.AtLeast(RoleInstructor))
	assert.False(t, Role("ghost").AtLeast(RoleStudent))

	assert.True(t, RoleInstructor.CanModerate())
	assert.False(t, RoleStudent.CanModerate())

	assert.True(t, RoleStudent.Valid())
	assert.False(t, Role("").Valid())
}
