package service

import (
	"context"
	"math"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

const (
	// kmPerDegree scales flat-degree distances to kilometers. This is
	// a Euclidean approximation, not great-circle math; at the scale
	// the marketplace operates on the error is negligible, and callers
	// depend on the figure staying as-is.
	kmPerDegree = 111.0

	defaultServiceFeeRate = 0.10
)

// PricingService computes price breakdowns and distance estimates.
type PricingService struct {
	placeRepo      repository.PlaceRepository
	serviceFeeRate float64
}

// NewPricingService creates a new PricingService. A non-positive fee
// rate falls back to the default.
func NewPricingService(placeRepo repository.PlaceRepository, serviceFeeRate float64) *PricingService {
	if serviceFeeRate <= 0 {
		serviceFeeRate = defaultServiceFeeRate
	}
	return &PricingService{placeRepo: placeRepo, serviceFeeRate: serviceFeeRate}
}

// HourlyFee computes the implicit guide fee for a trip duration at the
// guide's hourly rate. Used by the direct-accept shortcut when no price
// was negotiated during a call.
func (s *PricingService) HourlyFee(pricePerHour float64, durationMinutes int) float64 {
	return pricePerHour * float64(durationMinutes) / 60.0
}

// Breakdown builds the full price breakdown for a trip: the guide fee
// (negotiated or implicit), ticket costs for itinerary stops flagged as
// ticketed, and the platform service fee.
func (s *PricingService) Breakdown(ctx context.Context, guideFee float64, itinerary []domain.Stop) (domain.PriceBreakdown, error) {
	var ticketCost float64
	for _, stop := range itinerary {
		if !stop.TicketIncluded {
			continue
		}
		place, err := s.placeRepo.GetByID(ctx, stop.PlaceID)
		if err != nil {
			if err == repository.ErrNotFound {
				continue
			}
			return domain.PriceBreakdown{}, err
		}
		ticketCost += place.TicketPrice
	}

	serviceFee := roundMoney((guideFee + ticketCost) * s.serviceFeeRate)

	return domain.PriceBreakdown{
		GuideFee:   roundMoney(guideFee),
		TicketCost: roundMoney(ticketCost),
		ServiceFee: serviceFee,
		Total:      roundMoney(guideFee) + roundMoney(ticketCost) + serviceFee,
	}, nil
}

// DistanceKm estimates the straight-line distance between two points
// using the flat-degree approximation.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat1 - lat2
	dLng := lng1 - lng2
	return math.Sqrt(dLat*dLat+dLng*dLng) * kmPerDegree
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
