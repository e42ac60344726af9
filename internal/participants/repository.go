// Package participants is the authoritative registry of per-session
// presence records. Creation goes through a single-statement atomic
// upsert so concurrent joins for the same (session, user) pair can never
// produce duplicate rows.
package participants

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushive/backend/internal/apperr"
	"github.com/campushive/backend/internal/models"
)

const participantColumns = `id, session_id, user_id, user_name, role, active,
	join_time, last_leave_time, total_duration_ms,
	audio_enabled, video_enabled, disconnect_count, created_at, updated_at`

// Repository handles participant persistence on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.UserName, &p.Role, &p.Active,
		&p.JoinTime, &p.LastLeaveTime, &p.TotalDurationMs,
		&p.AudioEnabled, &p.VideoEnabled, &p.DisconnectCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectParticipants(rows pgx.Rows) ([]models.Participant, error) {
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// AddOrRejoin registers presence for (sessionID, userID) in one atomic
// find-and-modify-or-insert. An already-active row is returned unchanged
// (idempotent success). An inactive row flips back to active with a fresh
// join time and an incremented disconnect count; its accumulated duration
// is untouched because the leave that deactivated it already folded the
// interval. A missing row is created fresh.
func (r *Repository) AddOrRejoin(ctx context.Context, sessionID, userID uuid.UUID, role models.Role, userName string) (*models.Participant, error) {
	const q = `INSERT INTO session_participants (id, session_id, user_id, user_name, role, active, join_time)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			user_name        = CASE WHEN session_participants.active THEN session_participants.user_name ELSE EXCLUDED.user_name END,
			role             = CASE WHEN session_participants.active THEN session_participants.role ELSE EXCLUDED.role END,
			active           = TRUE,
			join_time        = CASE WHEN session_participants.active THEN session_participants.join_time ELSE EXCLUDED.join_time END,
			last_leave_time  = CASE WHEN session_participants.active THEN session_participants.last_leave_time ELSE NULL END,
			audio_enabled    = CASE WHEN session_participants.active THEN session_participants.audio_enabled ELSE FALSE END,
			video_enabled    = CASE WHEN session_participants.active THEN session_participants.video_enabled ELSE FALSE END,
			disconnect_count = CASE WHEN session_participants.active THEN session_participants.disconnect_count ELSE session_participants.disconnect_count + 1 END,
			updated_at       = NOW()
		RETURNING ` + participantColumns
	return scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID, userName, role))
}

// Remove deactivates a participant, folding the open interval into
// total_duration_ms and clearing media flags. NotFoundError when no
// record exists, ConflictError when the record is already inactive.
func (r *Repository) Remove(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	const q = `UPDATE session_participants SET
			active            = FALSE,
			last_leave_time   = NOW(),
			total_duration_ms = total_duration_ms + GREATEST(0, (EXTRACT(EPOCH FROM (NOW() - join_time)) * 1000)::BIGINT),
			audio_enabled     = FALSE,
			video_enabled     = FALSE,
			updated_at        = NOW()
		WHERE session_id = $1 AND user_id = $2 AND active
		RETURNING ` + participantColumns
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := r.IsUserInSession(ctx, sessionID, userID)
		if existsErr != nil {
			return nil, existsErr
		}
		if exists {
			return nil, apperr.Conflict("participant %s already inactive in session %s", userID, sessionID)
		}
		return nil, apperr.NotFound("participant %s not found in session %s", userID, sessionID)
	}
	return p, err
}

// GetActive returns the active participants of a session.
func (r *Repository) GetActive(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 AND active ORDER BY join_time ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	return collectParticipants(rows)
}

// GetAll returns every presence record of a session, active or not.
func (r *Repository) GetAll(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 ORDER BY join_time ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	return collectParticipants(rows)
}

// ActiveCount returns the number of active participants.
func (r *Repository) ActiveCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_participants WHERE session_id = $1 AND active`, sessionID).Scan(&count)
	return count, err
}

// UpdateMediaStatus sets the audio/video flags for a participant.
func (r *Repository) UpdateMediaStatus(ctx context.Context, sessionID, userID uuid.UUID, audio, video bool) (*models.Participant, error) {
	const q = `UPDATE session_participants SET audio_enabled = $3, video_enabled = $4, updated_at = NOW()
		WHERE session_id = $1 AND user_id = $2
		RETURNING ` + participantColumns
	p, err := scanParticipant(r.pool.QueryRow(ctx, q, sessionID, userID, audio, video))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("participant %s not found in session %s", userID, sessionID)
	}
	return p, err
}

// IsUserInSession reports whether any record exists for the pair,
// regardless of active state.
func (r *Repository) IsUserInSession(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM session_participants WHERE session_id = $1 AND user_id = $2)`,
		sessionID, userID).Scan(&exists)
	return exists, err
}

// Stats aggregates a session's presence records.
func (r *Repository) Stats(ctx context.Context, sessionID uuid.UUID) (*models.SessionParticipantStats, error) {
	all, err := r.GetAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats := &models.SessionParticipantStats{SessionID: sessionID, Participants: all}
	var totalMs int64
	for _, p := range all {
		stats.TotalCount++
		if p.Active {
			stats.ActiveCount++
		}
		totalMs += p.TotalDurationMs
	}
	if stats.TotalCount > 0 {
		stats.AverageDurationMs = totalMs / int64(stats.TotalCount)
	}
	return stats, nil
}

// CleanupSession bulk-deactivates every active participant of a session,
// folding open intervals and clearing media flags. Used on closure.
// Returns the number of records deactivated.
func (r *Repository) CleanupSession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	const q = `UPDATE session_participants SET
			active            = FALSE,
			last_leave_time   = NOW(),
			total_duration_ms = total_duration_ms + GREATEST(0, (EXTRACT(EPOCH FROM (NOW() - join_time)) * 1000)::BIGINT),
			audio_enabled     = FALSE,
			video_enabled     = FALSE,
			updated_at        = NOW()
		WHERE session_id = $1 AND active`
	tag, err := r.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// PurgeInactiveDuplicates deletes surplus inactive rows for the pair,
// keeping the most recently updated record. The unique index makes new
// duplicates impossible; this clears rows predating it.
func (r *Repository) PurgeInactiveDuplicates(ctx context.Context, sessionID, userID uuid.UUID) error {
	const q = `DELETE FROM session_participants
		WHERE session_id = $1 AND user_id = $2 AND NOT active
		AND id NOT IN (
			SELECT id FROM session_participants
			WHERE session_id = $1 AND user_id = $2
			ORDER BY updated_at DESC LIMIT 1
		)`
	_, err := r.pool.Exec(ctx, q, sessionID, userID)
	return err
}
