package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// GuideRepository is a PostgreSQL implementation of repository.GuideRepository.
type GuideRepository struct {
	db *sql.DB
}

// NewGuideRepository creates a new PostgreSQL guide repository.
func NewGuideRepository(db *sql.DB) *GuideRepository {
	return &GuideRepository{db: db}
}

const guideColumns = `
	id, user_id, active, price_per_hour, languages, rating_score,
	province, lat, lng, trip_count
`

// GetByID retrieves a guide by ID.
func (r *GuideRepository) GetByID(ctx context.Context, id string) (*domain.Guide, error) {
	query := `SELECT ` + guideColumns + ` FROM guides WHERE id = $1`

	guide, err := scanGuide(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return guide, nil
}

// ListActiveByProvince returns all active guides in a province.
func (r *GuideRepository) ListActiveByProvince(ctx context.Context, province string) ([]*domain.Guide, error) {
	query := `
		SELECT ` + guideColumns + `
		FROM guides
		WHERE active = true AND province = $1
		ORDER BY rating_score DESC
	`

	rows, err := r.db.QueryContext(ctx, query, province)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guides []*domain.Guide
	for rows.Next() {
		guide, err := scanGuide(rows)
		if err != nil {
			return nil, err
		}
		guides = append(guides, guide)
	}
	return guides, rows.Err()
}

// IncrementTripCount bumps the guide's lifetime completed-trip counter.
func (r *GuideRepository) IncrementTripCount(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE guides SET trip_count = trip_count + 1 WHERE id = $1`, id)
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

func scanGuide(s rowScanner) (*domain.Guide, error) {
	var guide domain.Guide
	var languages pq.StringArray

	err := s.Scan(
		&guide.ID,
		&guide.UserID,
		&guide.Active,
		&guide.PricePerHour,
		&languages,
		&guide.RatingScore,
		&guide.Province,
		&guide.Lat,
		&guide.Lng,
		&guide.TripCount,
	)
	if err != nil {
		return nil, err
	}

	guide.Languages = languages
	return &guide, nil
}
