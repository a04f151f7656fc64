package domain

import (
	"errors"
	"testing"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	t.Parallel()

	legal := []struct {
		from, to TripStatus
	}{
		{TripStatusDraft, TripStatusSelectingGuide},
		{TripStatusSelectingGuide, TripStatusAwaitingCall},
		{TripStatusAwaitingCall, TripStatusInCall},
		{TripStatusAwaitingCall, TripStatusSelectingGuide},
		{TripStatusInCall, TripStatusPendingConfirmation},
		{TripStatusInCall, TripStatusAwaitingCall},
		{TripStatusInCall, TripStatusAwaitingPayment},
		{TripStatusPendingConfirmation, TripStatusAwaitingPayment},
		{TripStatusPendingConfirmation, TripStatusRejected},
		{TripStatusPendingConfirmation, TripStatusAwaitingCall},
		{TripStatusAwaitingPayment, TripStatusConfirmed},
		{TripStatusAwaitingPayment, TripStatusPendingConfirmation},
		{TripStatusConfirmed, TripStatusInProgress},
		{TripStatusConfirmed, TripStatusCompleted},
		{TripStatusInProgress, TripStatusCompleted},
		{TripStatusRejected, TripStatusSelectingGuide},
		{TripStatusRejected, TripStatusArchived},
		{TripStatusCancelled, TripStatusArchived},
		{TripStatusCompleted, TripStatusArchived},
	}

	for _, edge := range legal {
		if !CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be legal", edge.from, edge.to)
		}
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	t.Parallel()

	illegal := []struct {
		from, to TripStatus
	}{
		{TripStatusDraft, TripStatusConfirmed},
		{TripStatusSelectingGuide, TripStatusInCall},
		{TripStatusAwaitingCall, TripStatusAwaitingPayment},
		{TripStatusAwaitingPayment, TripStatusCompleted},
		{TripStatusConfirmed, TripStatusSelectingGuide},
		{TripStatusCompleted, TripStatusInProgress},
		{TripStatusCancelled, TripStatusSelectingGuide},
		{TripStatusArchived, TripStatusSelectingGuide},
		{TripStatusRejected, TripStatusAwaitingPayment},
	}

	for _, edge := range illegal {
		if CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be illegal", edge.from, edge.to)
		}
	}
}

func TestCanTransition_CancellableStatuses(t *testing.T) {
	t.Parallel()

	cancellable := []TripStatus{
		TripStatusDraft,
		TripStatusSelectingGuide,
		TripStatusAwaitingCall,
		TripStatusInCall,
		TripStatusPendingConfirmation,
		TripStatusAwaitingPayment,
		TripStatusConfirmed,
		TripStatusInProgress,
	}
	for _, from := range cancellable {
		if !CanTransition(from, TripStatusCancelled) {
			t.Errorf("expected %s to be cancellable", from)
		}
	}

	terminal := []TripStatus{
		TripStatusCompleted,
		TripStatusCancelled,
		TripStatusRejected,
		TripStatusArchived,
	}
	for _, from := range terminal {
		if CanTransition(from, TripStatusCancelled) {
			t.Errorf("expected %s not to be cancellable", from)
		}
	}
}

func TestCanTransition_ArchivedIsTerminal(t *testing.T) {
	t.Parallel()

	for status := range tripTransitions {
		if CanTransition(TripStatusArchived, status) {
			t.Errorf("archived must have no outgoing edges, found -> %s", status)
		}
	}
}

// Every non-draft status must be reachable from draft by walking the
// transition table, otherwise the table has a dead state.
func TestTransitionTable_AllStatusesReachableFromDraft(t *testing.T) {
	t.Parallel()

	seen := map[TripStatus]bool{TripStatusDraft: true}
	queue := []TripStatus{TripStatusDraft}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range tripTransitions[current] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	for status := range tripTransitions {
		if !seen[status] {
			t.Errorf("status %s is unreachable from draft", status)
		}
	}
}

func TestValidateTransition_ReturnsTypedError(t *testing.T) {
	t.Parallel()

	err := ValidateTransition(TripStatusConfirmed, TripStatusSelectingGuide)
	if err == nil {
		t.Fatal("expected error for confirmed -> selecting_guide")
	}

	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if transitionErr.From != TripStatusConfirmed || transitionErr.To != TripStatusSelectingGuide {
		t.Errorf("error carries wrong edge: %s -> %s", transitionErr.From, transitionErr.To)
	}

	if err := ValidateTransition(TripStatusConfirmed, TripStatusInProgress); err != nil {
		t.Errorf("unexpected error for legal edge: %v", err)
	}
}

func TestValidStatus(t *testing.T) {
	t.Parallel()

	if !ValidStatus(TripStatusInCall) {
		t.Error("in_call should be a valid status")
	}
	if ValidStatus(TripStatus("driving")) {
		t.Error("unknown status should be invalid")
	}
}
