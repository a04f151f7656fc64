package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusDraft               TripStatus = "draft"
	TripStatusSelectingGuide      TripStatus = "selecting_guide"
	TripStatusAwaitingCall        TripStatus = "awaiting_call"
	TripStatusInCall              TripStatus = "in_call"
	TripStatusPendingConfirmation TripStatus = "pending_confirmation"
	TripStatusAwaitingPayment     TripStatus = "awaiting_payment"
	TripStatusConfirmed           TripStatus = "confirmed"
	TripStatusInProgress          TripStatus = "in_progress"
	TripStatusCompleted           TripStatus = "completed"
	TripStatusCancelled           TripStatus = "cancelled"
	TripStatusRejected            TripStatus = "rejected"
	TripStatusArchived            TripStatus = "archived"
)

// PaymentStatus represents the payment state of a trip.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ActorRole identifies who performed an action on a trip.
type ActorRole string

const (
	ActorRoleTourist ActorRole = "tourist"
	ActorRoleGuide   ActorRole = "guide"
	ActorRoleAdmin   ActorRole = "admin"
)

// Stop is a single itinerary entry.
type Stop struct {
	PlaceID         string `json:"place_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes,omitempty"`
	TicketIncluded  bool   `json:"ticket_included"`
}

// PriceBreakdown decomposes the negotiated total.
// GuideFee + TicketCost + ServiceFee must equal Total.
type PriceBreakdown struct {
	GuideFee   float64 `json:"guide_fee"`
	TicketCost float64 `json:"ticket_cost"`
	ServiceFee float64 `json:"service_fee"`
	Total      float64 `json:"total"`
}

// CallRecord is a denormalized snapshot of one negotiation call,
// owned by the trip. The live CallSession is authoritative while
// the call is in flight.
type CallRecord struct {
	CallID          string    `json:"call_id"`
	GuideID         string    `json:"guide_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	NegotiatedPrice float64   `json:"negotiated_price,omitempty"`
}

// ChangeProposal is a pending schedule/itinerary change offered by the
// guide after confirmation, awaiting the tourist's decision.
type ChangeProposal struct {
	StartAt              time.Time `json:"start_at"`
	TotalDurationMinutes int       `json:"total_duration_minutes"`
	Itinerary            []Stop    `json:"itinerary,omitempty"`
	Reason               string    `json:"reason,omitempty"`
	ProposedAt           time.Time `json:"proposed_at"`
}

// Trip is the booking aggregate tracking a tourist-guide engagement
// from request to completion. Status is the single source of truth for
// which operations are legal next; every status write is conditional on
// the pre-image status (see repository.TripRepository.UpdateIfStatus).
type Trip struct {
	ID                string
	TouristID         string
	SelectedGuideID   string // empty until a guide is selected; cleared on reject
	CandidateGuideIDs []string

	StartAt              time.Time
	TotalDurationMinutes int

	Province       string
	Itinerary      []Stop
	MeetingLat     float64
	MeetingLng     float64
	MeetingAddress string

	Status          TripStatus
	NegotiatedPrice float64 // zero until a call negotiation sets it
	Pricing         PriceBreakdown
	PaymentStatus   PaymentStatus

	// Correlation id of the payment-provider checkout session.
	ProviderSessionID string

	CallHistory []CallRecord
	Proposal    *ChangeProposal

	CancelReason string
	CancelledBy  ActorRole
	CancelledAt  time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt time.Time
}

// EndAt derives the scheduled end from StartAt and the total duration.
func (t *Trip) EndAt() time.Time {
	return t.StartAt.Add(time.Duration(t.TotalDurationMinutes) * time.Minute)
}

// CallRecordByID returns a pointer to the call record with the given id,
// or nil if the trip has no such record.
func (t *Trip) CallRecordByID(callID string) *CallRecord {
	for i := range t.CallHistory {
		if t.CallHistory[i].CallID == callID {
			return &t.CallHistory[i]
		}
	}
	return nil
}

// ActiveStatuses are the statuses that occupy a guide's schedule.
// Used for overlap checks when selecting a guide or accepting a
// rescheduling proposal.
var ActiveStatuses = []TripStatus{
	TripStatusAwaitingCall,
	TripStatusInCall,
	TripStatusPendingConfirmation,
	TripStatusAwaitingPayment,
	TripStatusConfirmed,
	TripStatusInProgress,
}
