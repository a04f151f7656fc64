package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"guidetrip/internal/domain"
	"guidetrip/internal/service"
)

func newCallService(callRepo *MockCallRepository, maxDuration time.Duration) *service.CallService {
	return service.NewCallService(callRepo, service.NewCallTokenIssuer("test-secret"), maxDuration)
}

func TestCreateSession_RingingWithDistinctUIDs(t *testing.T) {
	t.Parallel()

	callRepo := NewMockCallRepository()
	callService := newCallService(callRepo, time.Hour)

	session, err := callService.CreateSession(context.Background(), "trip-1", "tourist-1", "user-guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.Status != domain.CallStatusRinging {
		t.Errorf("expected ringing, got %s", session.Status)
	}
	if session.Channel == "" {
		t.Error("expected a transport channel")
	}
	if session.TouristUID == 0 || session.GuideUID == 0 {
		t.Error("transport uids must be non-zero")
	}
	if session.Deadline.Before(session.StartedAt) {
		t.Error("deadline must be after start")
	}
}

func TestJoin_RoleInferredFromIdentity(t *testing.T) {
	t.Parallel()

	callRepo := NewMockCallRepository()
	callService := newCallService(callRepo, time.Hour)

	session, err := callService.CreateSession(context.Background(), "trip-1", "tourist-1", "user-guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	touristJoin, err := callService.Join(context.Background(), session.ID, "tourist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if touristJoin.Role != "tourist" || touristJoin.UID != session.TouristUID {
		t.Errorf("wrong tourist join: %+v", touristJoin)
	}

	// First join moved the session to ongoing.
	if got := callRepo.GetSession(session.ID).Status; got != domain.CallStatusOngoing {
		t.Errorf("expected ongoing after first join, got %s", got)
	}

	guideJoin, err := callService.Join(context.Background(), session.ID, "user-guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if guideJoin.Role != "guide" || guideJoin.UID != session.GuideUID {
		t.Errorf("wrong guide join: %+v", guideJoin)
	}

	if _, err := callService.Join(context.Background(), session.ID, "stranger"); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden for stranger, got %v", err)
	}
}

func TestJoin_RejectedAfterEnd(t *testing.T) {
	t.Parallel()

	callRepo := NewMockCallRepository()
	callService := newCallService(callRepo, time.Hour)

	session, err := callService.CreateSession(context.Background(), "trip-1", "tourist-1", "user-guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ended, err := callService.End(context.Background(), session.ID, domain.CallEndCompleted, "", 0); err != nil || !ended {
		t.Fatalf("expected clean end, got ended=%v err=%v", ended, err)
	}

	if _, err := callService.Join(context.Background(), session.ID, "tourist-1"); !errors.Is(err, service.ErrCallEnded) {
		t.Errorf("expected ErrCallEnded, got %v", err)
	}
}

// The ringing-to-ongoing flip is status-guarded: an end that commits
// between a joiner's read and its write must stay terminal.
func TestMarkOngoing_LosesAgainstEndedSession(t *testing.T) {
	t.Parallel()

	callRepo := NewMockCallRepository()
	callService := newCallService(callRepo, time.Hour)

	session, err := callService.CreateSession(context.Background(), "trip-1", "tourist-1", "user-guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The end lands first, as if it raced a joiner that had already
	// read the session as ringing.
	if _, ended, err := callService.End(context.Background(), session.ID, domain.CallEndCancelled, "", 0); err != nil || !ended {
		t.Fatalf("expected clean end, got ended=%v err=%v", ended, err)
	}

	flipped, err := callRepo.MarkOngoing(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flipped {
		t.Error("flip won against an ended session")
	}

	stored := callRepo.GetSession(session.ID)
	if !stored.Terminal() {
		t.Errorf("ended session resurrected: %s", stored.Status)
	}
	if stored.EndReason != domain.CallEndCancelled {
		t.Errorf("end reason lost: %s", stored.EndReason)
	}
}

func TestEnd_SecondEnderLoses(t *testing.T) {
	t.Parallel()

	callRepo := NewMockCallRepository()
	callService := newCallService(callRepo, time.Hour)

	session, err := callService.CreateSession(context.Background(), "trip-1", "tourist-1", "user-guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, ended, err := callService.End(context.Background(), session.ID, domain.CallEndCompleted, "deal", 900)
	if err != nil || !ended {
		t.Fatalf("expected first end to win, got ended=%v err=%v", ended, err)
	}
	if first.NegotiatedPrice != 900 {
		t.Errorf("expected price 900, got %v", first.NegotiatedPrice)
	}

	second, ended, err := callService.End(context.Background(), session.ID, domain.CallEndTimeout, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ended {
		t.Error("second ender must lose")
	}
	// The loser observes the winner's outcome, not its own.
	if second.EndReason != domain.CallEndCompleted || second.NegotiatedPrice != 900 {
		t.Errorf("loser saw wrong outcome: %s/%v", second.EndReason, second.NegotiatedPrice)
	}
}

// A session whose deadline passed while the process was down is timed
// out promptly after timer recovery.
func TestRecoverPendingTimers_FiresPastDueSessions(t *testing.T) {
	t.Parallel()

	callRepo := NewMockCallRepository()
	callService := newCallService(callRepo, time.Hour)

	fired := make(chan string, 1)
	callService.SetTimeoutHandler(func(callID string) {
		fired <- callID
	})

	callRepo.AddSession(&domain.CallSession{
		ID:                 "call-stale",
		TripID:             "trip-1",
		TouristID:          "tourist-1",
		GuideID:            "user-guide-1",
		Status:             domain.CallStatusOngoing,
		MaxDurationSeconds: 300,
		Deadline:           time.Now().Add(-time.Minute),
		StartedAt:          time.Now().Add(-6 * time.Minute),
	})

	if err := callService.RecoverPendingTimers(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case callID := <-fired:
		if callID != "call-stale" {
			t.Errorf("expected call-stale, got %s", callID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout handler never fired for past-due session")
	}
}
