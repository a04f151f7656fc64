package repository

import (
	"context"
	"time"

	"guidetrip/internal/domain"
)

// TripRepository defines the persistence operations for trips.
//
// UpdateIfStatus is the single conditional-write primitive: every status
// change in the system goes through it, making the pre-image check and
// the outbox append one atomic unit.
type TripRepository interface {
	// Create persists a new trip together with its initial outbox events.
	Create(ctx context.Context, trip *domain.Trip, events []*domain.OutboxEvent) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetByCallID retrieves the trip owning the given call record.
	GetByCallID(ctx context.Context, callID string) (*domain.Trip, error)

	// GetByProviderSessionID retrieves the trip correlated with a
	// payment-provider checkout session.
	GetByProviderSessionID(ctx context.Context, sessionID string) (*domain.Trip, error)

	// UpdateIfStatus writes the full trip row and appends the given
	// outbox events, but only if the stored status still equals
	// expected. Returns false (and writes nothing) when another writer
	// got there first. ErrNotFound when the trip does not exist.
	UpdateIfStatus(ctx context.Context, tripID string, expected domain.TripStatus, trip *domain.Trip, events []*domain.OutboxEvent) (bool, error)

	// UpdateCandidates writes only the cached candidate-guide id list.
	// Not status-bearing, so no CAS is needed.
	UpdateCandidates(ctx context.Context, tripID string, candidateIDs []string) error

	// FindOverlapping returns trips for the guide in one of the given
	// statuses whose [StartAt, EndAt) interval intersects
	// [startAt, endAt).
	FindOverlapping(ctx context.Context, guideID string, startAt, endAt time.Time, statuses []domain.TripStatus) ([]*domain.Trip, error)

	// ListByTourist returns the tourist's trips, newest first.
	ListByTourist(ctx context.Context, touristID string) ([]*domain.Trip, error)
}
