package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// PaymentProvider is the port to the external payment service.
type PaymentProvider interface {
	// CreateCheckoutSession opens a checkout for the given amount and
	// returns the provider's session id and a redirect URL. The amount
	// is always computed server-side.
	CreateCheckoutSession(ctx context.Context, tripID string, amount float64, currency string) (sessionID, url string, err error)
}

// MockPaymentProvider is an in-process PaymentProvider for development
// and tests.
type MockPaymentProvider struct{}

// NewMockPaymentProvider creates a new mock provider.
func NewMockPaymentProvider() *MockPaymentProvider {
	return &MockPaymentProvider{}
}

// CreateCheckoutSession returns a synthetic session.
func (p *MockPaymentProvider) CreateCheckoutSession(ctx context.Context, tripID string, amount float64, currency string) (string, string, error) {
	id := "cs_" + uuid.New().String()
	return id, fmt.Sprintf("https://checkout.example/%s", id), nil
}

// WebhookEvent is the parsed shape of one provider delivery.
type WebhookEvent struct {
	Type      string `json:"type"` // "checkout.completed" | "checkout.expired"
	SessionID string `json:"session_id"`
	Metadata  struct {
		TripID string `json:"trip_id"`
	} `json:"metadata"`
}

// WebhookResult reports what the handler did with an event. Processed
// is false for every acknowledged-but-skipped condition (duplicate,
// missing metadata, lost CAS, illegal transition); the HTTP layer
// returns success to the provider in all of those cases.
type WebhookResult struct {
	Processed bool
	Reason    string
}

// PaymentService creates checkout sessions and applies provider events
// to trips, idempotently and strictly gated by the transition table.
type PaymentService struct {
	tripRepo      repository.TripRepository
	provider      PaymentProvider
	webhookSecret []byte
	currency      string
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(tripRepo repository.TripRepository, provider PaymentProvider, webhookSecret, currency string) *PaymentService {
	if currency == "" {
		currency = "EGP"
	}
	return &PaymentService{
		tripRepo:      tripRepo,
		provider:      provider,
		webhookSecret: []byte(webhookSecret),
		currency:      currency,
	}
}

// CreateCheckoutResponse contains the checkout redirect for the tourist.
type CreateCheckoutResponse struct {
	SessionID string
	URL       string
	Amount    float64
}

// CreateCheckout opens a provider checkout session for a trip awaiting
// payment. The charged amount is the server-computed breakdown total,
// never a client-supplied figure.
func (s *PaymentService) CreateCheckout(ctx context.Context, tripID, touristID string) (*CreateCheckoutResponse, error) {
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
	if trip.Status != domain.TripStatusAwaitingPayment {
		return nil, &domain.InvalidTransitionError{From: trip.Status, To: domain.TripStatusConfirmed}
	}
	amount := trip.Pricing.Total
	if amount <= 0 {
		return nil, ErrInvalidPrice
	}

	sessionID, url, err := s.provider.CreateCheckoutSession(ctx, trip.ID, amount, s.currency)
	if err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.ProviderSessionID = sessionID
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newAuditEvent(trip.ID, touristID, "checkout_created", map[string]any{
			"session_id": sessionID,
			"amount":     amount,
		}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	return &CreateCheckoutResponse{SessionID: sessionID, URL: url, Amount: amount}, nil
}

// VerifySignature checks the provider's HMAC-SHA256 signature over the
// raw request body. This is the only webhook failure that maps to a
// non-success response: without authenticity nothing else matters.
func (s *PaymentService) VerifySignature(body []byte, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// HandleWebhook parses and applies one verified provider delivery.
// Deliveries are at-least-once and may arrive out of order; every
// internal skip condition still acknowledges the event so the provider
// does not retry what retrying cannot fix.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte) (*WebhookResult, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("[WEBHOOK] unparseable event, acknowledging: %v", err)
		return &WebhookResult{Reason: "unparseable event"}, nil
	}
	return s.ApplyEvent(ctx, &event)
}

// ApplyEvent applies one parsed provider event.
func (s *PaymentService) ApplyEvent(ctx context.Context, event *WebhookEvent) (*WebhookResult, error) {
	tripID := event.Metadata.TripID
	if tripID == "" {
		log.Printf("[WEBHOOK] event %q without trip metadata, acknowledging", event.Type)
		return &WebhookResult{Reason: "missing trip metadata"}, nil
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		if err == repository.ErrNotFound {
			log.Printf("[WEBHOOK] trip %s not found, acknowledging", tripID)
			return &WebhookResult{Reason: "trip not found"}, nil
		}
		return nil, err
	}

	switch event.Type {
	case "checkout.completed":
		return s.applyCompleted(ctx, trip, event)
	case "checkout.expired", "payment.failed":
		return s.applyFailed(ctx, trip, event)
	default:
		log.Printf("[WEBHOOK] ignoring event type %q for trip %s", event.Type, tripID)
		return &WebhookResult{Reason: "ignored event type"}, nil
	}
}

func (s *PaymentService) applyCompleted(ctx context.Context, trip *domain.Trip, event *WebhookEvent) (*WebhookResult, error) {
	// Primary duplicate-delivery defense.
	if trip.PaymentStatus == domain.PaymentStatusPaid {
		return &WebhookResult{Reason: "already paid"}, nil
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusConfirmed); err != nil {
		// The trip moved somewhere payment can no longer confirm it,
		// e.g. cancelled between checkout and payment. Never force it.
		log.Printf("[WEBHOOK] cannot confirm trip %s from %s, acknowledging", trip.ID, trip.Status)
		return &WebhookResult{Reason: "illegal transition"}, nil
	}

	expected := trip.Status
	now := time.Now()
	trip.Status = domain.TripStatusConfirmed
	trip.PaymentStatus = domain.PaymentStatusPaid
	trip.ConfirmedAt = now
	trip.UpdatedAt = now
	if event.SessionID != "" {
		trip.ProviderSessionID = event.SessionID
	}

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationPaymentReceived, trip.TouristID, map[string]any{
			"trip_id": trip.ID,
			"total":   trip.Pricing.Total,
		}),
		newAuditEvent(trip.ID, "payment-provider", "payment_confirmed", map[string]any{
			"session_id": event.SessionID,
		}),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"payment_status": string(trip.PaymentStatus)}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Lost the CAS; provider redelivery will retry the whole event
		// against the fresh state if it still applies.
		log.Printf("[WEBHOOK] concurrent update on trip %s, acknowledging", trip.ID)
		return &WebhookResult{Reason: "lost cas"}, nil
	}

	log.Printf("[WEBHOOK] trip %s confirmed, payment %s", trip.ID, event.SessionID)
	return &WebhookResult{Processed: true}, nil
}

func (s *PaymentService) applyFailed(ctx context.Context, trip *domain.Trip, event *WebhookEvent) (*WebhookResult, error) {
	if trip.Status != domain.TripStatusAwaitingPayment || trip.PaymentStatus != domain.PaymentStatusPending {
		return &WebhookResult{Reason: "no pending payment"}, nil
	}

	expected := trip.Status
	trip.PaymentStatus = domain.PaymentStatusUnpaid
	trip.ProviderSessionID = ""
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newAuditEvent(trip.ID, "payment-provider", "payment_failed", map[string]any{
			"session_id": event.SessionID,
			"event_type": event.Type,
		}),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return &WebhookResult{Reason: "lost cas"}, nil
	}

	return &WebhookResult{Processed: true}, nil
}
