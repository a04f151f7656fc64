package service

import (
	"context"
	"time"

	"guidetrip/internal/domain"
)

// ProposeChangeRequest contains a guide's schedule/itinerary change offer.
type ProposeChangeRequest struct {
	StartAt              time.Time
	TotalDurationMinutes int
	Itinerary            []domain.Stop
	Reason               string
}

// ProposeChange stores a pending change proposal on a confirmed trip.
// The status does not move; the CAS guard still protects against the
// trip changing state while the proposal is being attached.
func (s *TripService) ProposeChange(ctx context.Context, tripID, guideID string, req ProposeChangeRequest) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if !req.StartAt.After(time.Now()) {
		return nil, ErrStartTimeNotFuture
	}
	if req.TotalDurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.SelectedGuideID == "" || trip.SelectedGuideID != guideID {
		return nil, ErrForbidden
	}
	if trip.Status != domain.TripStatusConfirmed {
		return nil, &domain.InvalidTransitionError{From: trip.Status, To: domain.TripStatusConfirmed}
	}
	if trip.Proposal != nil {
		return nil, ErrProposalPending
	}

	expected := trip.Status
	trip.Proposal = &domain.ChangeProposal{
		StartAt:              req.StartAt,
		TotalDurationMinutes: req.TotalDurationMinutes,
		Itinerary:            req.Itinerary,
		Reason:               req.Reason,
		ProposedAt:           time.Now(),
	}
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationChangeProposed, trip.TouristID, map[string]any{
			"trip_id":  trip.ID,
			"start_at": req.StartAt,
			"reason":   req.Reason,
		}),
		newAuditEvent(trip.ID, guideID, "change_proposed", map[string]any{"reason": req.Reason}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	return trip, nil
}

// AcceptProposal applies a pending change proposal: the guide's
// availability is re-checked for the new slot and the price breakdown
// is recomputed for the new duration and itinerary.
func (s *TripService) AcceptProposal(ctx context.Context, tripID, touristID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.TouristID != touristID {
		return nil, ErrForbidden
	}
	if trip.Proposal == nil {
		return nil, ErrNoPendingProposal
	}

	proposal := trip.Proposal
	newEnd := proposal.StartAt.Add(time.Duration(proposal.TotalDurationMinutes) * time.Minute)

	overlapping, err := s.tripRepo.FindOverlapping(ctx, trip.SelectedGuideID, proposal.StartAt, newEnd, domain.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	for _, other := range overlapping {
		if other.ID != trip.ID {
			return nil, ErrGuideUnavailable
		}
	}

	guide, err := s.guideRepo.GetByID(ctx, trip.SelectedGuideID)
	if err != nil {
		return nil, err
	}

	itinerary := trip.Itinerary
	if len(proposal.Itinerary) > 0 {
		itinerary = proposal.Itinerary
	}

	guideFee := trip.NegotiatedPrice
	if guideFee == 0 {
		guideFee = s.pricing.HourlyFee(guide.PricePerHour, proposal.TotalDurationMinutes)
	}
	breakdown, err := s.pricing.Breakdown(ctx, guideFee, itinerary)
	if err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.StartAt = proposal.StartAt
	trip.TotalDurationMinutes = proposal.TotalDurationMinutes
	trip.Itinerary = itinerary
	trip.Pricing = breakdown
	trip.Proposal = nil
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationChangeAccepted, guide.UserID, map[string]any{
			"trip_id":  trip.ID,
			"start_at": trip.StartAt,
		}),
		newAuditEvent(trip.ID, touristID, "change_accepted", nil),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"start_at": trip.StartAt}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	return trip, nil
}

// RejectProposal discards a pending change proposal, reverting to the
// previously agreed schedule.
func (s *TripService) RejectProposal(ctx context.Context, tripID, touristID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.TouristID != touristID {
		return nil, ErrForbidden
	}
	if trip.Proposal == nil {
		return nil, ErrNoPendingProposal
	}

	expected := trip.Status
	trip.Proposal = nil
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newAuditEvent(trip.ID, touristID, "change_rejected", nil),
	}
	if recipient := s.counterpartyUserID(ctx, trip, domain.ActorRoleTourist); recipient != "" {
		events = append(events, newNotificationEvent(trip.ID, NotificationChangeRejected, recipient, map[string]any{
			"trip_id": trip.ID,
		}))
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	return trip, nil
}
