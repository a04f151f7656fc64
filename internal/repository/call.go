package repository

import (
	"context"

	"guidetrip/internal/domain"
)

// CallRepository defines the persistence operations for call sessions.
type CallRepository interface {
	// Create persists a new call session.
	Create(ctx context.Context, session *domain.CallSession) error

	// GetByID retrieves a call session by ID.
	GetByID(ctx context.Context, id string) (*domain.CallSession, error)

	// MarkOngoing flips the session from ringing to ongoing. The status
	// guard keeps a concurrent end from being overwritten; false means
	// the session was not ringing anymore.
	MarkOngoing(ctx context.Context, id string) (bool, error)

	// EndIfActive marks the session ended with the given outcome, but
	// only if it is still ringing or ongoing. Returns false when the
	// session was already terminal, which makes racing enders (manual
	// end vs. auto-timeout) safe: the loser becomes a no-op.
	EndIfActive(ctx context.Context, session *domain.CallSession) (bool, error)

	// ListPending returns sessions still ringing or ongoing, used to
	// reschedule auto-end timers after a restart.
	ListPending(ctx context.Context) ([]*domain.CallSession, error)
}
