package repository

import (
	"context"

	"guidetrip/internal/domain"
)

// GuideRepository defines the directory operations for guides.
type GuideRepository interface {
	// GetByID retrieves a guide by ID.
	GetByID(ctx context.Context, id string) (*domain.Guide, error)

	// ListActiveByProvince returns all active guides in a province.
	ListActiveByProvince(ctx context.Context, province string) ([]*domain.Guide, error)

	// IncrementTripCount bumps the guide's lifetime completed-trip counter.
	IncrementTripCount(ctx context.Context, id string) error
}

// UserRepository defines the directory operations for users.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// PlaceRepository defines the catalog operations for places.
type PlaceRepository interface {
	// GetByID retrieves a place by ID.
	GetByID(ctx context.Context, id string) (*domain.Place, error)
}
