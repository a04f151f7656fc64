package service

import (
	"context"
	"log"
	"time"

	"guidetrip/internal/domain"
)

// InitiateCallResponse contains the created (or rejoined) session and
// the tourist's join token.
type InitiateCallResponse struct {
	Trip    *domain.Trip
	Session *domain.CallSession
	Join    *JoinInfo
}

// InitiateCall starts a negotiation call with the selected guide and
// moves the trip to in_call. Calling it again while the trip is
// already in_call re-issues a join token for the live session, so a
// dropped client can reconnect.
func (s *TripService) InitiateCall(ctx context.Context, tripID, touristID string) (*InitiateCallResponse, error) {
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
	if trip.SelectedGuideID == "" {
		return nil, ErrNoSelectedGuide
	}

	// Reconnection path: the trip is already in a call, hand back a
	// token for the live session instead of creating a second one.
	if trip.Status == domain.TripStatusInCall {
		if len(trip.CallHistory) > 0 {
			last := trip.CallHistory[len(trip.CallHistory)-1]
			session, err := s.callService.Get(ctx, last.CallID)
			if err == nil && !session.Terminal() {
				join, err := s.callService.Join(ctx, session.ID, touristID)
				if err != nil {
					return nil, err
				}
				return &InitiateCallResponse{Trip: trip, Session: session, Join: join}, nil
			}
		}
		return nil, ErrConflict
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusInCall); err != nil {
		return nil, err
	}

	guide, err := s.guideRepo.GetByID(ctx, trip.SelectedGuideID)
	if err != nil {
		return nil, err
	}

	// Serialize session creation per trip so two racing initiations
	// cannot each persist a session before the CAS settles the race.
	if s.cacheStore != nil {
		locked, err := s.cacheStore.AcquireTripLock(ctx, trip.ID, tripLockTTL)
		if err == nil && !locked {
			return nil, ErrConflict
		}
		if err == nil {
			defer func() { _ = s.cacheStore.ReleaseTripLock(ctx, trip.ID) }()
		}
	}

	session, err := s.callService.CreateSession(ctx, trip.ID, trip.TouristID, guide.UserID)
	if err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.Status = domain.TripStatusInCall
	trip.UpdatedAt = time.Now()
	trip.CallHistory = append(trip.CallHistory, domain.CallRecord{
		CallID:    session.ID,
		GuideID:   guide.ID,
		StartedAt: session.StartedAt,
	})

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationIncomingCall, guide.UserID, map[string]any{
			"trip_id": trip.ID,
			"call_id": session.ID,
			"channel": session.Channel,
		}),
		newAuditEvent(trip.ID, touristID, "call_initiated", map[string]any{"call_id": session.ID}),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"call_id": session.ID}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		// The trip moved under us; the orphaned session must not keep
		// ringing until its timeout.
		_, _, _ = s.callService.End(ctx, session.ID, domain.CallEndCancelled, "", 0)
		return nil, ErrConflict
	}

	join, err := s.callService.Join(ctx, session.ID, touristID)
	if err != nil {
		return nil, err
	}
	// The tourist's join flipped the session out of ringing.
	session.Status = domain.CallStatusOngoing

	return &InitiateCallResponse{Trip: trip, Session: session, Join: join}, nil
}

// EndCallRequest carries the negotiation outcome of a call.
type EndCallRequest struct {
	EndReason       domain.CallEndReason
	Summary         string
	NegotiatedPrice float64
}

// EndCall terminates a call and advances the owning trip to
// pending_confirmation. Ending a call always advances, even without a
// negotiated price: the guide must still explicitly accept or reject.
func (s *TripService) EndCall(ctx context.Context, callID, userID string, req EndCallRequest) (*domain.Trip, error) {
	if callID == "" {
		return nil, ErrInvalidCallID
	}
	if req.NegotiatedPrice < 0 {
		return nil, ErrInvalidPrice
	}

	session, err := s.callService.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if userID != session.TouristID && userID != session.GuideID {
		return nil, ErrForbidden
	}

	reason := req.EndReason
	if reason == "" {
		reason = domain.CallEndCompleted
	}

	session, ended, err := s.callService.End(ctx, callID, reason, req.Summary, req.NegotiatedPrice)
	if err != nil {
		return nil, err
	}
	if !ended {
		// Already ended by the other party or the timeout; the trip
		// has been (or is being) advanced by the winner.
		return s.tripRepo.GetByID(ctx, session.TripID)
	}

	return s.advanceAfterCall(ctx, session)
}

// HandleCallTimeout is the auto-end timer's entry point. It shares the
// idempotent end path with manual ends, so firing after the session is
// already terminal does nothing.
func (s *TripService) HandleCallTimeout(callID string) {
	ctx := context.Background()

	session, ended, err := s.callService.End(ctx, callID, domain.CallEndTimeout, "", 0)
	if err != nil {
		log.Printf("[CALL] timeout end failed call=%s: %v", callID, err)
		return
	}
	if !ended {
		return
	}

	if _, err := s.advanceAfterCall(ctx, session); err != nil {
		log.Printf("[CALL] timeout trip advance failed call=%s: %v", callID, err)
	}
}

// advanceAfterCall folds the ended session's outcome into the owning
// trip's call history and moves it to pending_confirmation.
func (s *TripService) advanceAfterCall(ctx context.Context, session *domain.CallSession) (*domain.Trip, error) {
	trip, err := s.tripRepo.GetByID(ctx, session.TripID)
	if err != nil {
		return nil, err
	}

	// A call outcome only moves a trip that is still in the call. Once
	// the guide has direct-accepted, the trip must not fall back to
	// pending_confirmation when the old session's timer fires or a
	// party sends a late end.
	if trip.Status != domain.TripStatusInCall {
		return trip, nil
	}

	record := trip.CallRecordByID(session.ID)
	if record != nil {
		record.EndedAt = session.EndedAt
		record.DurationSeconds = int(session.EndedAt.Sub(session.StartedAt).Seconds())
		record.Summary = session.Summary
		record.NegotiatedPrice = session.NegotiatedPrice
	}
	if session.NegotiatedPrice > 0 {
		trip.NegotiatedPrice = session.NegotiatedPrice
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusPendingConfirmation); err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.Status = domain.TripStatusPendingConfirmation
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationCallEnded, session.GuideID, map[string]any{
			"trip_id":          trip.ID,
			"call_id":          session.ID,
			"end_reason":       string(session.EndReason),
			"negotiated_price": session.NegotiatedPrice,
		}),
		newAuditEvent(trip.ID, session.TouristID, "call_ended", map[string]any{
			"call_id":    session.ID,
			"end_reason": string(session.EndReason),
		}),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"call_id": session.ID}),
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

// GuideAccept confirms the negotiation from the guide's side and moves
// the trip to awaiting_payment. Idempotent once the trip has already
// advanced to awaiting_payment or confirmed. From in_call it acts as a
// direct-accept shortcut; when no price was negotiated the guide fee is
// computed implicitly from the trip duration and the guide's hourly rate.
func (s *TripService) GuideAccept(ctx context.Context, tripID, guideID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.SelectedGuideID == "" || trip.SelectedGuideID != guideID {
		return nil, ErrForbidden
	}

	if trip.Status == domain.TripStatusAwaitingPayment || trip.Status == domain.TripStatusConfirmed {
		return trip, nil
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusAwaitingPayment); err != nil {
		return nil, err
	}

	guide, err := s.guideRepo.GetByID(ctx, guideID)
	if err != nil {
		return nil, err
	}

	guideFee := trip.NegotiatedPrice
	if guideFee == 0 {
		guideFee = s.pricing.HourlyFee(guide.PricePerHour, trip.TotalDurationMinutes)
	}

	breakdown, err := s.pricing.Breakdown(ctx, guideFee, trip.Itinerary)
	if err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.NegotiatedPrice = guideFee
	trip.Pricing = breakdown
	trip.Status = domain.TripStatusAwaitingPayment
	trip.PaymentStatus = domain.PaymentStatusPending
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationPaymentRequired, trip.TouristID, map[string]any{
			"trip_id": trip.ID,
			"total":   breakdown.Total,
		}),
		newAuditEvent(trip.ID, guideID, "guide_accepted", map[string]any{"total": breakdown.Total}),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"total": breakdown.Total}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	// The direct-accept shortcut bypasses EndCall, so the session and
	// its auto-end timer are still live. End it now; otherwise the
	// timer later fires against the accepted trip.
	if expected == domain.TripStatusInCall {
		s.endLiveSession(ctx, trip)
	}

	return trip, nil
}

// endLiveSession ends the trip's most recent call session, cancelling
// its auto-end timer. Ending an already-ended session is a no-op.
func (s *TripService) endLiveSession(ctx context.Context, trip *domain.Trip) {
	if len(trip.CallHistory) == 0 {
		return
	}
	last := trip.CallHistory[len(trip.CallHistory)-1]
	if _, _, err := s.callService.End(ctx, last.CallID, domain.CallEndCompleted, "", trip.NegotiatedPrice); err != nil {
		log.Printf("[CALL] session end after direct accept failed call=%s: %v", last.CallID, err)
	}
}

// GuideReject declines the negotiation. The selected guide is cleared
// so the tourist can reopen selection and pick another guide.
func (s *TripService) GuideReject(ctx context.Context, tripID, guideID, reason string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.SelectedGuideID == "" || trip.SelectedGuideID != guideID {
		return nil, ErrForbidden
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusRejected); err != nil {
		return nil, err
	}

	expected := trip.Status
	now := time.Now()
	trip.Status = domain.TripStatusRejected
	trip.SelectedGuideID = ""
	trip.CancelReason = reason
	trip.CancelledBy = domain.ActorRoleGuide
	trip.CancelledAt = now
	trip.UpdatedAt = now

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationTripRejected, trip.TouristID, map[string]any{
			"trip_id": trip.ID,
			"reason":  reason,
		}),
		newAuditEvent(trip.ID, guideID, "guide_rejected", map[string]any{"reason": reason}),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"reason": reason}),
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
