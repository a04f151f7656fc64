package repository

import (
	"context"

	"guidetrip/internal/domain"
)

// OutboxRepository defines the operations for the side-effect outbox.
// Events are appended by TripRepository within the state-change
// transaction; this interface serves the drainer.
type OutboxRepository interface {
	// FetchUndispatched returns up to limit pending events, oldest first.
	FetchUndispatched(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

	// MarkDispatched records that an event has been delivered.
	MarkDispatched(ctx context.Context, id string) error
}
