package service

import (
	"context"
	"log"
)

// Notification event types produced by the orchestrator.
const (
	NotificationGuideSelected   = "guide_selected"
	NotificationIncomingCall    = "incoming_call"
	NotificationCallEnded       = "call_ended"
	NotificationPaymentRequired = "payment_required"
	NotificationPaymentReceived = "payment_received"
	NotificationTripRejected    = "trip_rejected"
	NotificationTripCancelled   = "trip_cancelled"
	NotificationTripCompleted   = "trip_completed"
	NotificationChangeProposed  = "change_proposed"
	NotificationChangeAccepted  = "change_accepted"
	NotificationChangeRejected  = "change_rejected"
)

// NotificationService delivers user notifications. Delivery is
// strictly fire-and-forget from the core's point of view: it is only
// ever invoked from the outbox drainer, never inline with a state
// transition.
type NotificationService struct {
	// In a real deployment this would hold push/SMS/email clients.
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// Notify delivers one notification to a user.
func (s *NotificationService) Notify(ctx context.Context, event, targetUserID string, payload map[string]any) error {
	// Mock delivery: push/SMS/email clients would be called here.
	log.Printf("[NOTIFICATION] event=%s recipient=%s payload=%v", event, targetUserID, payload)
	return nil
}
