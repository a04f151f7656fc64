package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// OutboxRepository is a PostgreSQL implementation of repository.OutboxRepository.
type OutboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new PostgreSQL outbox repository.
func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// FetchUndispatched returns up to limit pending events, oldest first.
func (r *OutboxRepository) FetchUndispatched(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `
		SELECT id, kind, trip_id, event_type, target_user_id, payload, created_at
		FROM outbox_events
		WHERE dispatched_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var ev domain.OutboxEvent
		var targetUserID sql.NullString
		var payload []byte

		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.TripID, &ev.EventType, &targetUserID, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}

		ev.TargetUserID = targetUserID.String
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// MarkDispatched records that an event has been delivered.
func (r *OutboxRepository) MarkDispatched(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET dispatched_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
