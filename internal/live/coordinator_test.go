package live

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushive/backend/internal/apperr"
	"github.com/campushive/backend/internal/models"
)

// fakeLifecycle mirrors the session service semantics in memory.
type fakeLifecycle struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	now      func() time.Time
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{
		sessions: make(map[uuid.UUID]*models.Session),
		now:      time.Now,
	}
}

func (f *fakeLifecycle) add(creator uuid.UUID, start, end time.Time) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.Session{
		ID:              uuid.New(),
		CourseID:        "course-101",
		Subject:         "channels in practice",
		SessionType:     models.SessionTypePeer,
		CreatorID:       creator,
		CreatorRole:     models.RoleInstructor,
		StartTime:       start,
		EndTime:         end,
		Status:          models.StatusUpcoming,
		MaxParticipants: models.DefaultMaxParticipants,
	}
	f.sessions[s.ID] = s
	return s
}

func (f *fakeLifecycle) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeLifecycle) Initiate(_ context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("session %s not found", sessionID)
	}
	if s.Status != models.StatusUpcoming || s.InitiatorUserID != nil {
		return nil, apperr.Conflict("session %s already initiated", sessionID)
	}
	at := f.now()
	s.Status = models.StatusActive
	s.InitiatorUserID = &userID
	s.InitiatedAt = &at
	cp := *s
	return &cp, nil
}

func (f *fakeLifecycle) CheckAndUpdateStatus(_ context.Context, sessionID uuid.UUID) (*models.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, false, apperr.NotFound("session %s not found", sessionID)
	}
	target := s.StatusForTime(f.now())
	if target == s.Status {
		cp := *s
		return &cp, false, nil
	}
	s.Status = target
	if target == models.StatusClosed {
		at := f.now()
		reason := models.CloseReasonTimeExpired
		s.ClosedAt = &at
		s.ClosedReason = &reason
	}
	cp := *s
	return &cp, true, nil
}

func (f *fakeLifecycle) CloseManually(_ context.Context, sessionID, userID uuid.UUID, role models.Role) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("session %s not found", sessionID)
	}
	if !role.CanModerate() {
		return nil, apperr.Authorization("role %q cannot close sessions", role)
	}
	if role == models.RoleInstructor && s.CreatorID != userID {
		return nil, apperr.Authorization("instructors may only close sessions they created")
	}
	if s.Status == models.StatusClosed {
		return nil, apperr.Conflict("session %s is already closed", sessionID)
	}
	at := f.now()
	reason := models.CloseReasonManualClosure
	s.Status = models.StatusClosed
	s.ClosedBy = &userID
	s.ClosedByRole = &role
	s.ClosedAt = &at
	s.ClosedReason = &reason
	cp := *s
	return &cp, nil
}

func (f *fakeLifecycle) UpdateParticipantCount(_ context.Context, sessionID uuid.UUID, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.ParticipantCount = count
	}
	return nil
}

func (f *fakeLifecycle) ListOpenExpired(_ context.Context) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.Status != models.StatusClosed && !s.EndTime.After(f.now()) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type pairKey struct {
	session uuid.UUID
	user    uuid.UUID
}

// fakeRegistry mirrors the atomic-upsert registry semantics in memory.
type fakeRegistry struct {
	mu      sync.Mutex
	records map[pairKey]*models.Participant
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: make(map[pairKey]*models.Participant)}
}

func (f *fakeRegistry) AddOrRejoin(_ context.Context, sessionID, userID uuid.UUID, role models.Role, userName string) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{sessionID, userID}
	if p, ok := f.records[key]; ok {
		if !p.Active {
			p.Active = true
			p.UserName = userName
			p.Role = role
			p.JoinTime = time.Now()
			p.LastLeaveTime = nil
			p.DisconnectCount++
		}
		cp := *p
		return &cp, nil
	}
	p := &models.Participant{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		UserName:  userName,
		Role:      role,
		Active:    true,
		JoinTime:  time.Now(),
	}
	f.records[key] = p
	cp := *p
	return &cp, nil
}

func (f *fakeRegistry) Remove(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[pairKey{sessionID, userID}]
	if !ok {
		return nil, apperr.NotFound("participant %s not found", userID)
	}
	if !p.Active {
		return nil, apperr.Conflict("participant %s already inactive", userID)
	}
	now := time.Now()
	p.Active = false
	p.LastLeaveTime = &now
	p.TotalDurationMs += now.Sub(p.JoinTime).Milliseconds()
	p.AudioEnabled = false
	p.VideoEnabled = false
	cp := *p
	return &cp, nil
}

func (f *fakeRegistry) GetActive(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for _, p := range f.records {
		if p.SessionID == sessionID && p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRegistry) ActiveCount(_ context.Context, sessionID uuid.UUID) (int, error) {
	list, _ := f.GetActive(context.Background(), sessionID)
	return len(list), nil
}

func (f *fakeRegistry) CleanupSession(_ context.Context, sessionID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	n := 0
	for _, p := range f.records {
		if p.SessionID == sessionID && p.Active {
			p.Active = false
			p.LastLeaveTime = &now
			p.TotalDurationMs += now.Sub(p.JoinTime).Milliseconds()
			p.AudioEnabled = false
			p.VideoEnabled = false
			n++
		}
	}
	return n, nil
}

func (f *fakeRegistry) PurgeInactiveDuplicates(_ context.Context, _, _ uuid.UUID) error {
	return nil
}

func (f *fakeRegistry) get(sessionID, userID uuid.UUID) *models.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.records[pairKey{sessionID, userID}]; ok {
		cp := *p
		return &cp
	}
	return nil
}

type sentEvent struct {
	Event   string
	Payload interface{}
}

// fakeConn records everything sent to it.
type fakeConn struct {
	id   string
	user uuid.UUID

	mu           sync.Mutex
	events       []sentEvent
	disconnected bool
	reason       string
}

func newFakeConn(user uuid.UUID) *fakeConn {
	return &fakeConn{id: uuid.New().String(), user: user}
}

func (c *fakeConn) ConnID() string { return c.id }
func (c *fakeConn) User() uuid.UUID {
	return c.user
}

func (c *fakeConn) Send(event string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
}

func (c *fakeConn) ForceDisconnect(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.reason = reason
}

func (c *fakeConn) received(event string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func newTestCoordinator() (*Coordinator, *fakeLifecycle, *fakeRegistry, *Hub) {
	lifecycle := newFakeLifecycle()
	registry := newFakeRegistry()
	hub := NewHub(zap.NewNop(), nil, nil)
	co := NewCoordinator(hub, lifecycle, registry, zap.NewNop())
	return co, lifecycle, registry, hub
}

func joinerFor(userID uuid.UUID, name string, role models.Role) Joiner {
	return Joiner{UserID: userID, UserName: name, Role: role}
}

func TestJoinActivatesUpcomingSession(t *testing.T) {
	co, lifecycle, registry, hub := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(30*time.Minute))

	userA := uuid.New()
	connA := newFakeConn(userA)
	got, err := co.Join(ctx, s.ID, joinerFor(userA, "Ada", models.RoleStudent), connA)
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, got.Status)
	require.NotNil(t, got.InitiatorUserID)
	assert.Equal(t, userA, *got.InitiatorUserID)
	assert.Equal(t, 1, hub.RoomCount(s.ID))

	p := registry.get(s.ID, userA)
	require.NotNil(t, p)
	assert.True(t, p.Active)

	assert.NotEmpty(t, connA.received(EventParticipantList))
	assert.NotEmpty(t, connA.received(EventSessionStatus))
}

func TestSecondJoinerKeepsInitiator(t *testing.T) {
	co, lifecycle, _, _ := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(30*time.Minute))

	userA, userB := uuid.New(), uuid.New()
	connA, connB := newFakeConn(userA), newFakeConn(userB)

	_, err := co.Join(ctx, s.ID, joinerFor(userA, "Ada", models.RoleStudent), connA)
	require.NoError(t, err)
	got, err := co.Join(ctx, s.ID, joinerFor(userB, "Ben", models.RoleStudent), connB)
	require.NoError(t, err)

	require.NotNil(t, got.InitiatorUserID)
	assert.Equal(t, userA, *got.InitiatorUserID)

	current, err := lifecycle.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.ParticipantCount)

	// the earlier member hears about the newcomer
	assert.NotEmpty(t, connA.received(EventParticipantJoined))
	assert.Empty(t, connB.received(EventParticipantJoined))
}

func TestJoinRejectsClosedOrMissingSession(t *testing.T) {
	co, lifecycle, _, _ := newTestCoordinator()
	ctx := context.Background()

	_, err := co.Join(ctx, uuid.New(), joinerFor(uuid.New(), "Ada", models.RoleStudent), newFakeConn(uuid.New()))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))
	_, err = co.CloseSession(ctx, s.ID, uuid.New(), models.RoleAdmin)
	require.NoError(t, err)

	_, err = co.Join(ctx, s.ID, joinerFor(uuid.New(), "Ada", models.RoleStudent), newFakeConn(uuid.New()))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRepeatJoinSameUserIsIdempotent(t *testing.T) {
	co, lifecycle, registry, _ := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	user := uuid.New()
	_, err := co.Join(ctx, s.ID, joinerFor(user, "Ada", models.RoleStudent), newFakeConn(user))
	require.NoError(t, err)
	_, err = co.Join(ctx, s.ID, joinerFor(user, "Ada", models.RoleStudent), newFakeConn(user))
	require.NoError(t, err, "second join for the same pair must not error")

	count, _ := registry.ActiveCount(ctx, s.ID)
	assert.Equal(t, 1, count, "exactly one active record per (session,user)")
}

func TestJoinSupersedesOtherSessionMembership(t *testing.T) {
	co, lifecycle, registry, _ := newTestCoordinator()
	ctx := context.Background()
	s1 := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))
	s2 := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	user := uuid.New()
	oldConn := newFakeConn(user)
	_, err := co.Join(ctx, s1.ID, joinerFor(user, "Ada", models.RoleStudent), oldConn)
	require.NoError(t, err)

	newConn := newFakeConn(user)
	_, err = co.Join(ctx, s2.ID, joinerFor(user, "Ada", models.RoleStudent), newConn)
	require.NoError(t, err)

	old := registry.get(s1.ID, user)
	require.NotNil(t, old)
	assert.False(t, old.Active, "membership in the first session is dropped")

	current := registry.get(s2.ID, user)
	require.NotNil(t, current)
	assert.True(t, current.Active)

	// the stale connection is told to go, not killed
	assert.NotEmpty(t, oldConn.received(EventForceDisconnect))
	assert.False(t, oldConn.isDisconnected())
}

func TestStaleConnectionDropKeepsNewerSameSessionConnection(t *testing.T) {
	co, lifecycle, registry, hub := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	user := uuid.New()
	joiner := joinerFor(user, "Ada", models.RoleStudent)
	oldConn, newConn := newFakeConn(user), newFakeConn(user)
	_, err := co.Join(ctx, s.ID, joiner, oldConn)
	require.NoError(t, err)
	_, err = co.Join(ctx, s.ID, joiner, newConn)
	require.NoError(t, err)

	// the first connection dropping must not tear down the membership
	// the second connection still holds
	co.HandleDisconnect(s.ID, oldConn, joiner)

	p := registry.get(s.ID, user)
	require.NotNil(t, p)
	assert.True(t, p.Active)
	assert.Equal(t, 1, hub.RoomCount(s.ID))
	current, err := lifecycle.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.ParticipantCount)

	// the live connection dropping still runs the real cleanup
	co.HandleDisconnect(s.ID, newConn, joiner)
	assert.False(t, registry.get(s.ID, user).Active)
	assert.Equal(t, 0, hub.RoomCount(s.ID))
}

func TestDisconnectCleanupIsBestEffort(t *testing.T) {
	co, lifecycle, registry, hub := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	user := uuid.New()
	conn := newFakeConn(user)
	joiner := joinerFor(user, "Ada", models.RoleStudent)
	_, err := co.Join(ctx, s.ID, joiner, conn)
	require.NoError(t, err)

	co.HandleDisconnect(s.ID, conn, joiner)
	p := registry.get(s.ID, user)
	require.NotNil(t, p)
	assert.False(t, p.Active)
	assert.NotNil(t, p.LastLeaveTime)
	assert.Equal(t, 0, hub.RoomCount(s.ID))

	current, err := lifecycle.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.ParticipantCount)

	// a second disconnect for the same connection must be harmless
	co.HandleDisconnect(s.ID, conn, joiner)
}

func TestLeaveAlreadyInactiveDoesNotDoubleCount(t *testing.T) {
	co, lifecycle, registry, _ := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	user := uuid.New()
	conn := newFakeConn(user)
	joiner := joinerFor(user, "Ada", models.RoleStudent)
	_, err := co.Join(ctx, s.ID, joiner, conn)
	require.NoError(t, err)

	require.NoError(t, co.Leave(ctx, s.ID, conn, joiner))
	total := registry.get(s.ID, user).TotalDurationMs

	// explicit leave after the record is already inactive is tolerated
	require.NoError(t, co.Leave(ctx, s.ID, conn, joiner))
	assert.Equal(t, total, registry.get(s.ID, user).TotalDurationMs)
}

func TestCloseSessionDisconnectsRoom(t *testing.T) {
	co, lifecycle, registry, hub := newTestCoordinator()
	ctx := context.Background()
	creator := uuid.New()
	s := lifecycle.add(creator, time.Now(), time.Now().Add(time.Hour))

	userA, userB := uuid.New(), uuid.New()
	connA, connB := newFakeConn(userA), newFakeConn(userB)
	_, err := co.Join(ctx, s.ID, joinerFor(userA, "Ada", models.RoleStudent), connA)
	require.NoError(t, err)
	_, err = co.Join(ctx, s.ID, joinerFor(userB, "Ben", models.RoleStudent), connB)
	require.NoError(t, err)

	// an unrelated instructor cannot close it
	_, err = co.CloseSession(ctx, s.ID, uuid.New(), models.RoleInstructor)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	closed, err := co.CloseSession(ctx, s.ID, creator, models.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	assert.False(t, registry.get(s.ID, userA).Active)
	assert.False(t, registry.get(s.ID, userB).Active)
	assert.True(t, connA.isDisconnected())
	assert.True(t, connB.isDisconnected())
	assert.Equal(t, 0, hub.RoomCount(s.ID))
	assert.NotEmpty(t, connA.received(EventSessionClosed))
}

func TestRemoveParticipantTargetsOnlyOneConnection(t *testing.T) {
	co, lifecycle, registry, _ := newTestCoordinator()
	ctx := context.Background()
	creator := uuid.New()
	s := lifecycle.add(creator, time.Now(), time.Now().Add(time.Hour))

	target, bystander := uuid.New(), uuid.New()
	targetConn, bystanderConn := newFakeConn(target), newFakeConn(bystander)
	_, err := co.Join(ctx, s.ID, joinerFor(target, "Tess", models.RoleStudent), targetConn)
	require.NoError(t, err)
	_, err = co.Join(ctx, s.ID, joinerFor(bystander, "Ben", models.RoleStudent), bystanderConn)
	require.NoError(t, err)

	err = co.RemoveParticipant(ctx, s.ID, target, uuid.New(), models.RoleStudent)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	require.NoError(t, co.RemoveParticipant(ctx, s.ID, target, creator, models.RoleInstructor))
	assert.False(t, registry.get(s.ID, target).Active)
	assert.True(t, targetConn.isDisconnected())
	assert.False(t, bystanderConn.isDisconnected())
	assert.True(t, registry.get(s.ID, bystander).Active)
}

func TestRaiseHandShowsInRoster(t *testing.T) {
	co, lifecycle, _, _ := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	user := uuid.New()
	conn := newFakeConn(user)
	joiner := joinerFor(user, "Ada", models.RoleStudent)
	_, err := co.Join(ctx, s.ID, joiner, conn)
	require.NoError(t, err)

	co.RaiseHand(s.ID, user, true)
	rosters := conn.received(EventParticipantList)
	require.NotEmpty(t, rosters)
	raw, ok := rosters[len(rosters)-1].Payload.(json.RawMessage)
	require.True(t, ok)
	var last RosterPayload
	require.NoError(t, json.Unmarshal(raw, &last))
	require.Len(t, last.Participants, 1)
	assert.True(t, last.Participants[0].HandRaised)

	// disconnect clears the volatile flag
	co.HandleDisconnect(s.ID, conn, joiner)
	assert.Empty(t, co.hub.HandsRaised(s.ID))
}

func TestReactionFansOutToWholeRoom(t *testing.T) {
	co, lifecycle, _, _ := newTestCoordinator()
	ctx := context.Background()
	s := lifecycle.add(uuid.New(), time.Now(), time.Now().Add(time.Hour))

	userA, userB := uuid.New(), uuid.New()
	connA, connB := newFakeConn(userA), newFakeConn(userB)
	_, err := co.Join(ctx, s.ID, joinerFor(userA, "Ada", models.RoleStudent), connA)
	require.NoError(t, err)
	_, err = co.Join(ctx, s.ID, joinerFor(userB, "Ben", models.RoleStudent), connB)
	require.NoError(t, err)

	co.Reaction(s.ID, joinerFor(userA, "Ada", models.RoleStudent), []byte(`{"emoji":"clap"}`))
	assert.NotEmpty(t, connA.received(EventUserReaction), "sender receives their own reaction")
	assert.NotEmpty(t, connB.received(EventUserReaction))
}

func TestCheckStatusExpiryClosesRoom(t *testing.T) {
	co, lifecycle, registry, hub := newTestCoordinator()
	ctx := context.Background()
	base := time.Now()
	s := lifecycle.add(uuid.New(), base.Add(-time.Hour), base.Add(30*time.Minute))

	user := uuid.New()
	conn := newFakeConn(user)
	_, err := co.Join(ctx, s.ID, joinerFor(user, "Ada", models.RoleStudent), conn)
	require.NoError(t, err)

	lifecycle.now = func() time.Time { return base.Add(time.Hour) }
	got, changed, err := co.CheckStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.StatusClosed, got.Status)

	assert.False(t, registry.get(s.ID, user).Active)
	assert.True(t, conn.isDisconnected())
	assert.Equal(t, 0, hub.RoomCount(s.ID))
}

func TestSweepClosesExpiredSessionWithNoClients(t *testing.T) {
	co, lifecycle, _, _ := newTestCoordinator()
	base := time.Now()
	s := lifecycle.add(uuid.New(), base.Add(-2*time.Hour), base.Add(-time.Hour))

	co.Sweep(context.Background())

	current, err := lifecycle.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, current.Status)
	require.NotNil(t, current.ClosedReason)
	assert.Equal(t, models.CloseReasonTimeExpired, *current.ClosedReason)
}

// Full walkthrough: create, activate on first join, second join, abrupt
// disconnect, manual close.
func TestSessionLifecycleScenario(t *testing.T) {
	co, lifecycle, registry, _ := newTestCoordinator()
	ctx := context.Background()
	instructor := uuid.New()
	s := lifecycle.add(instructor, time.Now(), time.Now().Add(30*time.Minute))

	userA, userB := uuid.New(), uuid.New()
	connA, connB := newFakeConn(userA), newFakeConn(userB)
	joinerA := joinerFor(userA, "Ada", models.RoleStudent)
	joinerB := joinerFor(userB, "Ben", models.RoleStudent)

	got, err := co.Join(ctx, s.ID, joinerA, connA)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, userA, *got.InitiatorUserID)

	got, err = co.Join(ctx, s.ID, joinerB, connB)
	require.NoError(t, err)
	assert.Equal(t, userA, *got.InitiatorUserID)
	current, _ := lifecycle.GetByID(ctx, s.ID)
	assert.Equal(t, 2, current.ParticipantCount)

	co.HandleDisconnect(s.ID, connA, joinerA)
	current, _ = lifecycle.GetByID(ctx, s.ID)
	assert.Equal(t, 1, current.ParticipantCount)
	pa := registry.get(s.ID, userA)
	assert.False(t, pa.Active)
	assert.GreaterOrEqual(t, pa.TotalDurationMs, int64(0))

	closed, err := co.CloseSession(ctx, s.ID, instructor, models.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.Equal(t, models.CloseReasonManualClosure, *closed.ClosedReason)
	assert.True(t, connB.isDisconnected())
	assert.False(t, registry.get(s.ID, userB).Active)
}
