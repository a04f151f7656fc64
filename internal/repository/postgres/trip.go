package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	db *sql.DB
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `
	id, tourist_id, selected_guide_id, candidate_guide_ids,
	start_at, total_duration_minutes, province, itinerary,
	meeting_lat, meeting_lng, meeting_address,
	status, negotiated_price, pricing, payment_status, provider_session_id,
	call_history, proposal,
	cancel_reason, cancelled_by, cancelled_at,
	created_at, updated_at, confirmed_at
`

// Create persists a new trip together with its initial outbox events.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip, events []*domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	args, err := tripArgs(trip)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	if err = insertOutboxEvents(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	return scanTrip(r.db.QueryRowContext(ctx, query, id))
}

// GetByCallID retrieves the trip owning the given call record.
func (r *TripRepository) GetByCallID(ctx context.Context, callID string) (*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE call_history @> jsonb_build_array(jsonb_build_object('call_id', $1::text))
	`
	return scanTrip(r.db.QueryRowContext(ctx, query, callID))
}

// GetByProviderSessionID retrieves the trip correlated with a checkout session.
func (r *TripRepository) GetByProviderSessionID(ctx context.Context, sessionID string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE provider_session_id = $1`
	return scanTrip(r.db.QueryRowContext(ctx, query, sessionID))
}

// UpdateIfStatus writes the trip row conditionally on the stored status
// matching expected, appending the outbox events in the same transaction.
func (r *TripRepository) UpdateIfStatus(ctx context.Context, tripID string, expected domain.TripStatus, trip *domain.Trip, events []*domain.OutboxEvent) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		UPDATE trips SET
			selected_guide_id = $1,
			candidate_guide_ids = $2,
			start_at = $3,
			total_duration_minutes = $4,
			itinerary = $5,
			status = $6,
			negotiated_price = $7,
			pricing = $8,
			payment_status = $9,
			provider_session_id = $10,
			call_history = $11,
			proposal = $12,
			cancel_reason = $13,
			cancelled_by = $14,
			cancelled_at = $15,
			updated_at = $16,
			confirmed_at = $17
		WHERE id = $18 AND status = $19
	`

	itinerary, err := json.Marshal(trip.Itinerary)
	if err != nil {
		return false, err
	}
	pricing, err := json.Marshal(trip.Pricing)
	if err != nil {
		return false, err
	}
	callHistory, err := json.Marshal(trip.CallHistory)
	if err != nil {
		return false, err
	}
	var proposal []byte
	if trip.Proposal != nil {
		if proposal, err = json.Marshal(trip.Proposal); err != nil {
			return false, err
		}
	}

	result, err := tx.ExecContext(ctx, query,
		nullString(trip.SelectedGuideID),
		pq.Array(trip.CandidateGuideIDs),
		trip.StartAt,
		trip.TotalDurationMinutes,
		itinerary,
		trip.Status,
		nullFloat(trip.NegotiatedPrice),
		pricing,
		trip.PaymentStatus,
		nullString(trip.ProviderSessionID),
		callHistory,
		nullBytes(proposal),
		nullString(trip.CancelReason),
		nullString(string(trip.CancelledBy)),
		nullTime(trip.CancelledAt),
		trip.UpdatedAt,
		nullTime(trip.ConfirmedAt),
		tripID,
		expected,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		// Distinguish a lost CAS from a missing row.
		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, tripID).Scan(&exists); err != nil {
			return false, err
		}
		_ = tx.Rollback()
		if !exists {
			return false, repository.ErrNotFound
		}
		return false, nil
	}

	if err = insertOutboxEvents(ctx, tx, events); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// UpdateCandidates writes only the cached candidate-guide id list.
func (r *TripRepository) UpdateCandidates(ctx context.Context, tripID string, candidateIDs []string) error {
	query := `UPDATE trips SET candidate_guide_ids = $1, updated_at = now() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, pq.Array(candidateIDs), tripID)
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

// FindOverlapping returns trips for the guide in one of the given statuses
// whose scheduled interval intersects [startAt, endAt).
func (r *TripRepository) FindOverlapping(ctx context.Context, guideID string, startAt, endAt time.Time, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE selected_guide_id = $1
		  AND status = ANY($2)
		  AND start_at < $3
		  AND start_at + make_interval(mins => total_duration_minutes) > $4
		ORDER BY start_at
	`

	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, query, guideID, pq.Array(strs), endAt, startAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrips(rows)
}

// ListByTourist returns the tourist's trips, newest first.
func (r *TripRepository) ListByTourist(ctx context.Context, touristID string) ([]*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE tourist_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, touristID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrips(rows)
}

// insertOutboxEvents appends side-effect events within the caller's transaction.
func insertOutboxEvents(ctx context.Context, tx Querier, events []*domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO outbox_events (id, kind, trip_id, event_type, target_user_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			ev.ID,
			ev.Kind,
			ev.TripID,
			ev.EventType,
			nullString(ev.TargetUserID),
			payload,
			ev.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTripRow(s rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var selectedGuideID, meetingAddress, providerSessionID, cancelReason, cancelledBy sql.NullString
	var candidateIDs pq.StringArray
	var negotiatedPrice sql.NullFloat64
	var itinerary, pricing, callHistory, proposal []byte
	var cancelledAt, confirmedAt sql.NullTime

	err := s.Scan(
		&trip.ID,
		&trip.TouristID,
		&selectedGuideID,
		&candidateIDs,
		&trip.StartAt,
		&trip.TotalDurationMinutes,
		&trip.Province,
		&itinerary,
		&trip.MeetingLat,
		&trip.MeetingLng,
		&meetingAddress,
		&trip.Status,
		&negotiatedPrice,
		&pricing,
		&trip.PaymentStatus,
		&providerSessionID,
		&callHistory,
		&proposal,
		&cancelReason,
		&cancelledBy,
		&cancelledAt,
		&trip.CreatedAt,
		&trip.UpdatedAt,
		&confirmedAt,
	)
	if err != nil {
		return nil, err
	}

	trip.SelectedGuideID = selectedGuideID.String
	trip.CandidateGuideIDs = candidateIDs
	trip.MeetingAddress = meetingAddress.String
	trip.NegotiatedPrice = negotiatedPrice.Float64
	trip.ProviderSessionID = providerSessionID.String
	trip.CancelReason = cancelReason.String
	trip.CancelledBy = domain.ActorRole(cancelledBy.String)
	if cancelledAt.Valid {
		trip.CancelledAt = cancelledAt.Time
	}
	if confirmedAt.Valid {
		trip.ConfirmedAt = confirmedAt.Time
	}

	if len(itinerary) > 0 {
		if err := json.Unmarshal(itinerary, &trip.Itinerary); err != nil {
			return nil, err
		}
	}
	if len(pricing) > 0 {
		if err := json.Unmarshal(pricing, &trip.Pricing); err != nil {
			return nil, err
		}
	}
	if len(callHistory) > 0 {
		if err := json.Unmarshal(callHistory, &trip.CallHistory); err != nil {
			return nil, err
		}
	}
	if len(proposal) > 0 {
		trip.Proposal = &domain.ChangeProposal{}
		if err := json.Unmarshal(proposal, trip.Proposal); err != nil {
			return nil, err
		}
	}

	return &trip, nil
}

func scanTrip(row *sql.Row) (*domain.Trip, error) {
	trip, err := scanTripRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

func scanTrips(rows *sql.Rows) ([]*domain.Trip, error) {
	var trips []*domain.Trip
	for rows.Next() {
		trip, err := scanTripRow(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

func tripArgs(trip *domain.Trip) ([]any, error) {
	itinerary, err := json.Marshal(trip.Itinerary)
	if err != nil {
		return nil, err
	}
	pricing, err := json.Marshal(trip.Pricing)
	if err != nil {
		return nil, err
	}
	callHistory, err := json.Marshal(trip.CallHistory)
	if err != nil {
		return nil, err
	}
	var proposal []byte
	if trip.Proposal != nil {
		if proposal, err = json.Marshal(trip.Proposal); err != nil {
			return nil, err
		}
	}

	return []any{
		trip.ID,
		trip.TouristID,
		nullString(trip.SelectedGuideID),
		pq.Array(trip.CandidateGuideIDs),
		trip.StartAt,
		trip.TotalDurationMinutes,
		trip.Province,
		itinerary,
		trip.MeetingLat,
		trip.MeetingLng,
		nullString(trip.MeetingAddress),
		trip.Status,
		nullFloat(trip.NegotiatedPrice),
		pricing,
		trip.PaymentStatus,
		nullString(trip.ProviderSessionID),
		callHistory,
		nullBytes(proposal),
		nullString(trip.CancelReason),
		nullString(string(trip.CancelledBy)),
		nullTime(trip.CancelledAt),
		trip.CreatedAt,
		trip.UpdatedAt,
		nullTime(trip.ConfirmedAt),
	}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
