package domain

import "fmt"

// tripTransitions is the declarative table of legal status transitions.
// An absent entry means the status is terminal.
var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusDraft: {
		TripStatusSelectingGuide,
		TripStatusCancelled,
	},
	TripStatusSelectingGuide: {
		TripStatusAwaitingCall,
		TripStatusCancelled,
	},
	TripStatusAwaitingCall: {
		TripStatusInCall,
		TripStatusSelectingGuide, // tourist changes guide
		TripStatusCancelled,
	},
	TripStatusInCall: {
		TripStatusPendingConfirmation,
		TripStatusAwaitingCall,    // retry the call
		TripStatusAwaitingPayment, // direct-accept shortcut
		TripStatusCancelled,
	},
	TripStatusPendingConfirmation: {
		TripStatusAwaitingPayment,
		TripStatusRejected,
		TripStatusAwaitingCall, // renegotiate
		TripStatusCancelled,
	},
	TripStatusAwaitingPayment: {
		TripStatusConfirmed,
		TripStatusPendingConfirmation,
		TripStatusCancelled,
	},
	TripStatusConfirmed: {
		TripStatusInProgress,
		TripStatusCompleted,
		TripStatusCancelled,
	},
	TripStatusInProgress: {
		TripStatusCompleted,
		TripStatusCancelled,
	},
	TripStatusRejected: {
		TripStatusSelectingGuide,
		TripStatusArchived,
	},
	TripStatusCancelled: {
		TripStatusArchived,
	},
	TripStatusCompleted: {
		TripStatusArchived,
	},
	TripStatusArchived: {},
}

// InvalidTransitionError reports an attempt to move a trip along an
// edge that does not exist in the transition table.
type InvalidTransitionError struct {
	From TripStatus
	To   TripStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid trip transition from %q to %q", e.From, e.To)
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to TripStatus) bool {
	for _, next := range tripTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *InvalidTransitionError if the edge
// from -> to is not in the transition table.
func ValidateTransition(from, to TripStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// ValidStatus reports whether s is a member of the declared status set.
func ValidStatus(s TripStatus) bool {
	_, ok := tripTransitions[s]
	return ok
}
