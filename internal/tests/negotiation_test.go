package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"guidetrip/internal/domain"
	"guidetrip/internal/service"
)

func seedAwaitingCallTrip(tripRepo *MockTripRepository, guideRepo *MockGuideRepository) {
	guideRepo.AddGuide(activeGuide("guide-1"))
	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-1",
		TouristID:            "tourist-1",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusAwaitingCall,
		StartAt:              time.Now().Add(72 * time.Hour),
		TotalDurationMinutes: 120,
	})
}

// ──────────────────────────────────────────────
// CALL INITIATION
// ──────────────────────────────────────────────

func TestInitiateCall_MovesTripToInCall(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	result, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Trip.Status != domain.TripStatusInCall {
		t.Errorf("expected in_call, got %s", result.Trip.Status)
	}
	if result.Session.Status != domain.CallStatusOngoing {
		t.Errorf("expected ongoing after tourist join, got %s", result.Session.Status)
	}
	if result.Join.Role != "tourist" {
		t.Errorf("expected tourist role, got %s", result.Join.Role)
	}
	if result.Join.Token == "" {
		t.Error("expected a join token")
	}
	if len(result.Trip.CallHistory) != 1 {
		t.Fatalf("expected 1 call record, got %d", len(result.Trip.CallHistory))
	}
	if result.Trip.CallHistory[0].CallID != result.Session.ID {
		t.Error("call record does not reference the session")
	}

	// The guide gets an incoming-call notification through the outbox.
	notifs := tripRepo.EventsOfKind(domain.OutboxKindNotification)
	if len(notifs) != 1 || notifs[0].EventType != service.NotificationIncomingCall {
		t.Errorf("expected one incoming_call notification, got %d", len(notifs))
	}
}

func TestInitiateCall_RequiresSelectedGuide(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), NewMockGuideRepository(), NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:        "trip-1",
		TouristID: "tourist-1",
		Status:    domain.TripStatusSelectingGuide,
	})

	_, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if !errors.Is(err, service.ErrNoSelectedGuide) {
		t.Errorf("expected ErrNoSelectedGuide, got %v", err)
	}
}

func TestInitiateCall_ReconnectsToLiveSession(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	first, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The second initiation must not create a new session.
	second, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Session.ID != first.Session.ID {
		t.Errorf("expected reconnection to session %s, got %s", first.Session.ID, second.Session.ID)
	}
	if callRepo.CreateCallCount != 1 {
		t.Errorf("expected exactly 1 session created, got %d", callRepo.CreateCallCount)
	}
}

// ──────────────────────────────────────────────
// CALL END
// ──────────────────────────────────────────────

func TestEndCall_AdvancesToPendingConfirmation(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	initiated, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trip, err := tripService.EndCall(context.Background(), initiated.Session.ID, "tourist-1", service.EndCallRequest{
		Summary:         "agreed on full-day tour",
		NegotiatedPrice: 800,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.Status != domain.TripStatusPendingConfirmation {
		t.Errorf("expected pending_confirmation, got %s", trip.Status)
	}
	if trip.NegotiatedPrice != 800 {
		t.Errorf("expected negotiated price 800, got %v", trip.NegotiatedPrice)
	}

	record := trip.CallRecordByID(initiated.Session.ID)
	if record == nil {
		t.Fatal("call record missing")
	}
	if record.Summary != "agreed on full-day tour" || record.NegotiatedPrice != 800 {
		t.Error("call record outcome not folded in")
	}
	if record.EndedAt.IsZero() {
		t.Error("call record has no end time")
	}
}

func TestEndCall_WithoutPriceStillAdvances(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	initiated, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trip, err := tripService.EndCall(context.Background(), initiated.Session.ID, "tourist-1", service.EndCallRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusPendingConfirmation {
		t.Errorf("expected pending_confirmation even without a price, got %s", trip.Status)
	}
	if trip.NegotiatedPrice != 0 {
		t.Errorf("expected no negotiated price, got %v", trip.NegotiatedPrice)
	}
}

func TestEndCall_OnlyCallPartiesMayEnd(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	initiated, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = tripService.EndCall(context.Background(), initiated.Session.ID, "stranger", service.EndCallRequest{})
	if !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

// Manual end first, then the auto-timeout fires: the timeout must be a
// no-op, leaving the manual outcome untouched.
func TestEndCall_TimeoutAfterManualEndIsNoOp(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	initiated, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := tripService.EndCall(context.Background(), initiated.Session.ID, "tourist-1", service.EndCallRequest{
		NegotiatedPrice: 500,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate the timer firing after the manual end.
	tripService.HandleCallTimeout(initiated.Session.ID)

	session := callRepo.GetSession(initiated.Session.ID)
	if session.EndReason != domain.CallEndCompleted {
		t.Errorf("timeout overwrote end reason: %s", session.EndReason)
	}
	if session.NegotiatedPrice != 500 {
		t.Errorf("timeout overwrote negotiated price: %v", session.NegotiatedPrice)
	}

	trip := tripRepo.GetTrip("trip-1")
	if trip.Status != domain.TripStatusPendingConfirmation {
		t.Errorf("expected pending_confirmation, got %s", trip.Status)
	}
	if trip.NegotiatedPrice != 500 {
		t.Errorf("expected price 500 preserved, got %v", trip.NegotiatedPrice)
	}
}

func TestHandleCallTimeout_AdvancesTrip(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	initiated, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tripService.HandleCallTimeout(initiated.Session.ID)

	session := callRepo.GetSession(initiated.Session.ID)
	if session.Status != domain.CallStatusEnded || session.EndReason != domain.CallEndTimeout {
		t.Errorf("expected ended/timeout, got %s/%s", session.Status, session.EndReason)
	}

	trip := tripRepo.GetTrip("trip-1")
	if trip.Status != domain.TripStatusPendingConfirmation {
		t.Errorf("expected pending_confirmation after timeout, got %s", trip.Status)
	}
}

// ──────────────────────────────────────────────
// GUIDE ACCEPT
// ──────────────────────────────────────────────

func TestGuideAccept_UsesNegotiatedPrice(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(activeGuide("guide-1"))
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-1",
		TouristID:            "tourist-1",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusPendingConfirmation,
		NegotiatedPrice:      600,
		TotalDurationMinutes: 120,
	})

	trip, err := tripService.GuideAccept(context.Background(), "trip-1", "guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trip.Status != domain.TripStatusAwaitingPayment {
		t.Errorf("expected awaiting_payment, got %s", trip.Status)
	}
	if trip.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected pending payment, got %s", trip.PaymentStatus)
	}
	if trip.Pricing.GuideFee != 600 {
		t.Errorf("expected guide fee 600, got %v", trip.Pricing.GuideFee)
	}
	// 10% service fee on the guide fee, no tickets.
	if trip.Pricing.ServiceFee != 60 || trip.Pricing.Total != 660 {
		t.Errorf("unexpected breakdown: %+v", trip.Pricing)
	}
}

func TestGuideAccept_ImplicitHourlyFeeAndTickets(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guide := activeGuide("guide-1")
	guide.PricePerHour = 150
	guideRepo.AddGuide(guide)
	placeRepo := NewMockPlaceRepository()
	placeRepo.AddPlace(&domain.Place{ID: "place-1", TicketPrice: 240})
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, placeRepo)

	// No price negotiated during the call: the fee is implicit from
	// duration and the guide's hourly rate.
	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-1",
		TouristID:            "tourist-1",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusPendingConfirmation,
		TotalDurationMinutes: 120,
		Itinerary: []domain.Stop{
			{PlaceID: "place-1", DurationMinutes: 90, TicketIncluded: true},
			{PlaceID: "place-unticketed", DurationMinutes: 30},
		},
	})

	trip, err := tripService.GuideAccept(context.Background(), "trip-1", "guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2h at 150/h = 300 guide fee, 240 tickets, 10% service fee = 54.
	if trip.Pricing.GuideFee != 300 {
		t.Errorf("expected implicit guide fee 300, got %v", trip.Pricing.GuideFee)
	}
	if trip.Pricing.TicketCost != 240 {
		t.Errorf("expected ticket cost 240, got %v", trip.Pricing.TicketCost)
	}
	if trip.Pricing.ServiceFee != 54 {
		t.Errorf("expected service fee 54, got %v", trip.Pricing.ServiceFee)
	}
	if trip.Pricing.Total != 594 {
		t.Errorf("expected total 594, got %v", trip.Pricing.Total)
	}
	if trip.NegotiatedPrice != 300 {
		t.Errorf("expected negotiated price backfilled to 300, got %v", trip.NegotiatedPrice)
	}
}

func TestGuideAccept_IdempotentOnceAdvanced(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(activeGuide("guide-1"))
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-1",
		TouristID:            "tourist-1",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusPendingConfirmation,
		NegotiatedPrice:      400,
		TotalDurationMinutes: 60,
	})

	first, err := tripService.GuideAccept(context.Background(), "trip-1", "guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writes := tripRepo.UpdateIfStatusCallCount

	second, err := tripService.GuideAccept(context.Background(), "trip-1", "guide-1")
	if err != nil {
		t.Fatalf("unexpected error on repeat accept: %v", err)
	}
	if second.Status != first.Status {
		t.Errorf("repeat accept changed status: %s", second.Status)
	}
	if tripRepo.UpdateIfStatusCallCount != writes {
		t.Error("repeat accept performed a write")
	}
}

func TestGuideAccept_DirectAcceptFromInCall(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	if _, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The guide can accept straight from in_call, skipping the
	// pending_confirmation stop.
	trip, err := tripService.GuideAccept(context.Background(), "trip-1", "guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusAwaitingPayment {
		t.Errorf("expected awaiting_payment, got %s", trip.Status)
	}
}

// A direct accept must also close the live session; otherwise its
// auto-end timer later fires against the accepted trip and drags it
// back to pending_confirmation.
func TestGuideAccept_DirectAcceptEndsLiveSession(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())
	seedAwaitingCallTrip(tripRepo, guideRepo)

	initiated, err := tripService.InitiateCall(context.Background(), "trip-1", "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := tripService.GuideAccept(context.Background(), "trip-1", "guide-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session := callRepo.GetSession(initiated.Session.ID)
	if !session.Terminal() {
		t.Errorf("expected session ended after direct accept, got %s", session.Status)
	}
	if session.EndReason != domain.CallEndCompleted {
		t.Errorf("expected completed end reason, got %s", session.EndReason)
	}

	// The timer firing afterwards must not move the accepted trip.
	tripService.HandleCallTimeout(initiated.Session.ID)

	trip := tripRepo.GetTrip("trip-1")
	if trip.Status != domain.TripStatusAwaitingPayment {
		t.Errorf("timeout regressed the accepted trip: %s", trip.Status)
	}
	if trip.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("expected pending payment, got %s", trip.PaymentStatus)
	}
}

// Even with a session somehow still live, a late end must not drag a
// trip that already advanced past in_call back to pending_confirmation.
func TestEndCall_AfterAdvanceLeavesTripAlone(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	callRepo := NewMockCallRepository()
	guideRepo := NewMockGuideRepository()
	tripService, _ := newTripService(tripRepo, callRepo, guideRepo, NewMockPlaceRepository())

	callRepo.AddSession(&domain.CallSession{
		ID:                 "call-1",
		TripID:             "trip-1",
		TouristID:          "tourist-1",
		GuideID:            "user-guide-1",
		Status:             domain.CallStatusOngoing,
		MaxDurationSeconds: 300,
		Deadline:           time.Now().Add(5 * time.Minute),
		StartedAt:          time.Now(),
	})
	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-1",
		TouristID:            "tourist-1",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusAwaitingPayment,
		PaymentStatus:        domain.PaymentStatusPending,
		NegotiatedPrice:      600,
		TotalDurationMinutes: 120,
		StartAt:              time.Now().Add(72 * time.Hour),
		CallHistory:          []domain.CallRecord{{CallID: "call-1", GuideID: "guide-1"}},
	})

	trip, err := tripService.EndCall(context.Background(), "call-1", "tourist-1", service.EndCallRequest{
		NegotiatedPrice: 950,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusAwaitingPayment {
		t.Errorf("late end regressed the trip: %s", trip.Status)
	}
	if trip.NegotiatedPrice != 600 {
		t.Errorf("late end rewrote the price: %v", trip.NegotiatedPrice)
	}
	if !callRepo.GetSession("call-1").Terminal() {
		t.Error("session left live after late end")
	}
}
