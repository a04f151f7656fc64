package service

import "errors"

var (
	// ErrForbidden is returned when the caller is not a party allowed
	// to perform the operation on the trip or call.
	ErrForbidden = errors.New("actor not allowed for this operation")

	// ErrConflict is returned when a conditional status write lost a
	// race; the caller must reload the trip and decide again.
	ErrConflict = errors.New("trip was modified concurrently, reload and retry")

	// ErrInvalidTripID is returned when trip ID is empty.
	ErrInvalidTripID = errors.New("invalid trip id")

	// ErrInvalidTouristID is returned when tourist ID is empty.
	ErrInvalidTouristID = errors.New("invalid tourist id")

	// ErrInvalidGuideID is returned when guide ID is empty.
	ErrInvalidGuideID = errors.New("invalid guide id")

	// ErrInvalidCallID is returned when call ID is empty.
	ErrInvalidCallID = errors.New("invalid call id")

	// ErrStartTimeNotFuture is returned when a trip's start time is not
	// strictly in the future.
	ErrStartTimeNotFuture = errors.New("trip start time must be in the future")

	// ErrInvalidDuration is returned when a duration is zero or negative.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrMissingProvince is returned when neither a province nor a
	// resolvable place reference was supplied.
	ErrMissingProvince = errors.New("province could not be resolved")

	// ErrGuideNotActive is returned when selecting an inactive guide.
	ErrGuideNotActive = errors.New("guide is not active")

	// ErrGuideUnavailable is returned when the guide already has an
	// overlapping active trip for the requested slot.
	ErrGuideUnavailable = errors.New("guide is not available for this time slot")

	// ErrNoSelectedGuide is returned when an operation requires a
	// selected guide and the trip has none.
	ErrNoSelectedGuide = errors.New("trip has no selected guide")

	// ErrInvalidPrice is returned when a price is negative.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrCancellationTooLate is returned when a cancellation falls
	// inside the minimum lead-time window before the trip start.
	ErrCancellationTooLate = errors.New("cancellation is inside the minimum lead-time window")

	// ErrCallEnded is returned when joining a call that already ended.
	ErrCallEnded = errors.New("call session already ended")

	// ErrNoPendingProposal is returned when accepting or rejecting a
	// change proposal that does not exist.
	ErrNoPendingProposal = errors.New("trip has no pending change proposal")

	// ErrProposalPending is returned when proposing a change while an
	// earlier proposal is still undecided.
	ErrProposalPending = errors.New("trip already has a pending change proposal")

	// ErrMissingSignature is returned when a webhook carries no signature.
	ErrMissingSignature = errors.New("missing webhook signature")

	// ErrBadSignature is returned when webhook signature verification fails.
	ErrBadSignature = errors.New("webhook signature verification failed")
)
