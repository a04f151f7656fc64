package postgres

import (
	"context"
	"database/sql"
	"errors"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// PlaceRepository is a PostgreSQL implementation of repository.PlaceRepository.
type PlaceRepository struct {
	db *sql.DB
}

// NewPlaceRepository creates a new PostgreSQL place repository.
func NewPlaceRepository(db *sql.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

// GetByID retrieves a place by ID.
func (r *PlaceRepository) GetByID(ctx context.Context, id string) (*domain.Place, error) {
	query := `SELECT id, name, province, ticket_price, lat, lng FROM places WHERE id = $1`

	var place domain.Place
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&place.ID,
		&place.Name,
		&place.Province,
		&place.TicketPrice,
		&place.Lat,
		&place.Lng,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &place, nil
}
