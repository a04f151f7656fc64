package postgres

import (
	"context"
	"database/sql"
	"errors"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// CallRepository is a PostgreSQL implementation of repository.CallRepository.
type CallRepository struct {
	db *sql.DB
}

// NewCallRepository creates a new PostgreSQL call repository.
func NewCallRepository(db *sql.DB) *CallRepository {
	return &CallRepository{db: db}
}

const callColumns = `
	id, trip_id, channel, tourist_id, guide_id, tourist_uid, guide_uid,
	status, max_duration_seconds, deadline,
	end_reason, summary, negotiated_price,
	started_at, ended_at
`

// Create persists a new call session.
func (r *CallRepository) Create(ctx context.Context, session *domain.CallSession) error {
	query := `
		INSERT INTO call_sessions (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.TripID,
		session.Channel,
		session.TouristID,
		session.GuideID,
		session.TouristUID,
		session.GuideUID,
		session.Status,
		session.MaxDurationSeconds,
		session.Deadline,
		nullString(string(session.EndReason)),
		nullString(session.Summary),
		nullFloat(session.NegotiatedPrice),
		session.StartedAt,
		nullTime(session.EndedAt),
	)
	return err
}

// GetByID retrieves a call session by ID.
func (r *CallRepository) GetByID(ctx context.Context, id string) (*domain.CallSession, error) {
	query := `SELECT ` + callColumns + ` FROM call_sessions WHERE id = $1`

	session, err := scanCallSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// MarkOngoing flips the session from ringing to ongoing. The status
// guard means a session ended between read and write stays ended.
func (r *CallRepository) MarkOngoing(ctx context.Context, id string) (bool, error) {
	query := `UPDATE call_sessions SET status = 'ongoing' WHERE id = $1 AND status = 'ringing'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// EndIfActive marks the session ended only if it is still ringing or
// ongoing. The status guard makes racing enders lose cleanly.
func (r *CallRepository) EndIfActive(ctx context.Context, session *domain.CallSession) (bool, error) {
	query := `
		UPDATE call_sessions SET
			status = $1,
			end_reason = $2,
			summary = $3,
			negotiated_price = $4,
			ended_at = $5
		WHERE id = $6 AND status IN ('ringing', 'ongoing')
	`

	result, err := r.db.ExecContext(ctx, query,
		session.Status,
		nullString(string(session.EndReason)),
		nullString(session.Summary),
		nullFloat(session.NegotiatedPrice),
		nullTime(session.EndedAt),
		session.ID,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// ListPending returns sessions still ringing or ongoing.
func (r *CallRepository) ListPending(ctx context.Context) ([]*domain.CallSession, error) {
	query := `SELECT ` + callColumns + ` FROM call_sessions WHERE status IN ('ringing', 'ongoing') ORDER BY deadline`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.CallSession
	for rows.Next() {
		session, err := scanCallSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanCallSession(s rowScanner) (*domain.CallSession, error) {
	var session domain.CallSession
	var endReason, summary sql.NullString
	var negotiatedPrice sql.NullFloat64
	var endedAt sql.NullTime

	err := s.Scan(
		&session.ID,
		&session.TripID,
		&session.Channel,
		&session.TouristID,
		&session.GuideID,
		&session.TouristUID,
		&session.GuideUID,
		&session.Status,
		&session.MaxDurationSeconds,
		&session.Deadline,
		&endReason,
		&summary,
		&negotiatedPrice,
		&session.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	session.EndReason = domain.CallEndReason(endReason.String)
	session.Summary = summary.String
	session.NegotiatedPrice = negotiatedPrice.Float64
	if endedAt.Valid {
		session.EndedAt = endedAt.Time
	}

	return &session, nil
}
