package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushive/backend/internal/models"
)

const sessionColumns = `id, course_id, subject, description, session_type, creator_id, creator_role,
	start_time, end_time, status, initiator_user_id, initiated_at,
	closed_by, closed_by_role, closed_at, closed_reason,
	participant_count, max_participants, created_at, updated_at`

// Repository handles session persistence on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.CourseID, &s.Subject, &s.Description, &s.SessionType, &s.CreatorID, &s.CreatorRole,
		&s.StartTime, &s.EndTime, &s.Status, &s.InitiatorUserID, &s.InitiatedAt,
		&s.ClosedBy, &s.ClosedByRole, &s.ClosedAt, &s.ClosedReason,
		&s.ParticipantCount, &s.MaxParticipants, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Insert persists a new session with status upcoming.
func (r *Repository) Insert(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (id, course_id, subject, description, session_type, creator_id, creator_role,
			start_time, end_time, status, max_participants)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, 'upcoming', $9)
		RETURNING id, status, participant_count, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.CourseID, s.Subject, s.Description, s.SessionType, s.CreatorID, s.CreatorRole,
		s.StartTime, s.EndTime, s.MaxParticipants).
		Scan(&s.ID, &s.Status, &s.ParticipantCount, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session by ID, or nil when no such session exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListByCourse returns sessions for a course in the given statuses,
// newest start time first.
func (r *Repository) ListByCourse(ctx context.Context, courseID string, statuses []models.SessionStatus) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE course_id = $1 AND status = ANY($2) ORDER BY start_time DESC`,
		courseID, statuses)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListUpcomingByCourse returns upcoming sessions starting after t,
// soonest first.
func (r *Repository) ListUpcomingByCourse(ctx context.Context, courseID string, after time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE course_id = $1 AND status = 'upcoming' AND start_time > $2 ORDER BY start_time ASC`,
		courseID, after)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListOpen returns every non-closed session.
func (r *Repository) ListOpen(ctx context.Context) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status <> 'closed' ORDER BY start_time DESC`)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListOpenExpired returns non-closed sessions whose end time has passed.
// The sweep drives these through auto-closure.
func (r *Repository) ListOpenExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status <> 'closed' AND end_time <= $1`, now)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// SetInitiator records the first joiner and activates the session. The
// WHERE clause makes it first-writer-wins: a nil result means another
// caller already initiated, or the session left upcoming.
func (r *Repository) SetInitiator(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Session, error) {
	const q = `UPDATE sessions
		SET status = 'active', initiator_user_id = $2, initiated_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'upcoming' AND initiator_user_id IS NULL
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id, userID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Activate transitions upcoming -> active on time grounds. Nil when the
// session is no longer upcoming.
func (r *Repository) Activate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `UPDATE sessions SET status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'upcoming'
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Close marks a session closed exactly once; nil when already closed.
// closedBy/closedByRole stay NULL for time-expired closures.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, closedBy *uuid.UUID, closedByRole *models.Role, reason models.CloseReason, at time.Time) (*models.Session, error) {
	const q = `UPDATE sessions
		SET status = 'closed', closed_by = $2, closed_by_role = $3, closed_at = $4, closed_reason = $5, updated_at = NOW()
		WHERE id = $1 AND status <> 'closed'
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id, closedBy, closedByRole, at, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// SetParticipantCount writes the advisory participant counter.
func (r *Repository) SetParticipantCount(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET participant_count = $2, updated_at = NOW() WHERE id = $1`, id, count)
	return err
}

// Delete removes a session; participants cascade at the schema level.
// Returns false when no row matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
