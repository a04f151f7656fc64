package service

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

const (
	defaultMaxCallDuration = 300 * time.Second

	// tokenMargin pads the join-token validity past the call deadline
	// so a party joining late in the call does not hold an expired token.
	tokenMargin = 60 * time.Second
)

// CallServiceInterface defines the call negotiation subsystem contract.
type CallServiceInterface interface {
	CreateSession(ctx context.Context, tripID, touristUserID, guideUserID string) (*domain.CallSession, error)
	Get(ctx context.Context, callID string) (*domain.CallSession, error)
	Join(ctx context.Context, callID, userID string) (*JoinInfo, error)
	End(ctx context.Context, callID string, reason domain.CallEndReason, summary string, negotiatedPrice float64) (*domain.CallSession, bool, error)
}

// Ensure CallService implements CallServiceInterface.
var _ CallServiceInterface = (*CallService)(nil)

// CallService manages live call sessions: creation, join tokens, and
// the auto-end timer. Timers are process-local, but every deadline is
// also persisted on the session so RecoverPendingTimers can reschedule
// them after a restart.
type CallService struct {
	callRepo    repository.CallRepository
	tokens      *CallTokenIssuer
	maxDuration time.Duration

	mu        sync.Mutex
	timers    map[string]*time.Timer
	onTimeout func(callID string)
}

// NewCallService creates a new CallService. A non-positive maxDuration
// falls back to the default.
func NewCallService(callRepo repository.CallRepository, tokens *CallTokenIssuer, maxDuration time.Duration) *CallService {
	if maxDuration <= 0 {
		maxDuration = defaultMaxCallDuration
	}
	return &CallService{
		callRepo:    callRepo,
		tokens:      tokens,
		maxDuration: maxDuration,
		timers:      make(map[string]*time.Timer),
	}
}

// SetTimeoutHandler registers the callback invoked when a session's
// auto-end timer fires. Wired to the orchestrator's timeout end-call
// path at startup.
func (s *CallService) SetTimeoutHandler(fn func(callID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTimeout = fn
}

// CreateSession allocates a new ringing session with a fresh channel,
// per-party transport uids and a persisted auto-end deadline.
func (s *CallService) CreateSession(ctx context.Context, tripID, touristUserID, guideUserID string) (*domain.CallSession, error) {
	if touristUserID == "" || guideUserID == "" {
		return nil, ErrInvalidTouristID
	}

	id := uuid.New().String()
	now := time.Now()

	session := &domain.CallSession{
		ID:                 id,
		TripID:             tripID,
		Channel:            fmt.Sprintf("call-%s", id[:8]),
		TouristID:          touristUserID,
		GuideID:            guideUserID,
		TouristUID:         randomUID(),
		GuideUID:           randomUID(),
		Status:             domain.CallStatusRinging,
		MaxDurationSeconds: int(s.maxDuration.Seconds()),
		Deadline:           now.Add(s.maxDuration),
		StartedAt:          now,
	}

	if err := s.callRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.scheduleTimer(session.ID, session.Deadline)

	return session, nil
}

// Get retrieves a call session by ID.
func (s *CallService) Get(ctx context.Context, callID string) (*domain.CallSession, error) {
	if callID == "" {
		return nil, ErrInvalidCallID
	}
	return s.callRepo.GetByID(ctx, callID)
}

// JoinInfo is what a party needs to enter the call transport.
type JoinInfo struct {
	Token   string
	Role    string
	Channel string
	UID     uint32
}

// Join issues a transport token for one party of the call. The role is
// inferred from the caller's identity, never taken from the request.
// The first join moves the session from ringing to ongoing.
func (s *CallService) Join(ctx context.Context, callID, userID string) (*JoinInfo, error) {
	session, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	if session.Terminal() {
		return nil, ErrCallEnded
	}

	var role string
	var uid uint32
	switch userID {
	case session.TouristID:
		role, uid = "tourist", session.TouristUID
	case session.GuideID:
		role, uid = "guide", session.GuideUID
	default:
		return nil, ErrForbidden
	}

	token, err := s.tokens.Issue(session.Channel, uid, role, time.Duration(session.MaxDurationSeconds)*time.Second+tokenMargin)
	if err != nil {
		return nil, err
	}

	if session.Status == domain.CallStatusRinging {
		flipped, err := s.callRepo.MarkOngoing(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if !flipped {
			// Lost the write to either another joiner or an ender.
			stored, err := s.callRepo.GetByID(ctx, session.ID)
			if err != nil {
				return nil, err
			}
			if stored.Terminal() {
				return nil, ErrCallEnded
			}
		}
	}

	return &JoinInfo{Token: token, Role: role, Channel: session.Channel, UID: uid}, nil
}

// End terminates a session with the given outcome. Idempotent: ending
// an already-ended session returns the stored record unchanged and
// reports ended=false, so racing enders (manual end vs. auto-timeout)
// cannot double-apply.
func (s *CallService) End(ctx context.Context, callID string, reason domain.CallEndReason, summary string, negotiatedPrice float64) (*domain.CallSession, bool, error) {
	session, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, false, err
	}

	if session.Terminal() {
		return session, false, nil
	}

	session.Status = domain.CallStatusEnded
	if reason == domain.CallEndCancelled {
		session.Status = domain.CallStatusCancelled
	}
	session.EndReason = reason
	session.Summary = summary
	session.NegotiatedPrice = negotiatedPrice
	session.EndedAt = time.Now()

	won, err := s.callRepo.EndIfActive(ctx, session)
	if err != nil {
		return nil, false, err
	}

	if !won {
		// Another ender got there first; hand back what it wrote.
		stored, err := s.callRepo.GetByID(ctx, callID)
		if err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}

	s.cancelTimer(callID)
	return session, true, nil
}

// RecoverPendingTimers reschedules auto-end timers for sessions that
// were still live when the process last stopped. Past-due sessions are
// timed out immediately.
func (s *CallService) RecoverPendingTimers(ctx context.Context) error {
	sessions, err := s.callRepo.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		s.scheduleTimer(session.ID, session.Deadline)
	}

	if len(sessions) > 0 {
		log.Printf("[CALL] recovered %d pending auto-end timers", len(sessions))
	}
	return nil
}

// scheduleTimer arms the auto-end timer for a session. A deadline in
// the past fires on the next tick.
func (s *CallService) scheduleTimer(callID string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[callID]; ok {
		old.Stop()
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}

	s.timers[callID] = time.AfterFunc(d, func() {
		s.fireTimeout(callID)
	})
}

// cancelTimer de-schedules the auto-end timer for a session that ended
// by another path.
func (s *CallService) cancelTimer(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[callID]; ok {
		t.Stop()
		delete(s.timers, callID)
	}
}

func (s *CallService) fireTimeout(callID string) {
	s.mu.Lock()
	delete(s.timers, callID)
	fn := s.onTimeout
	s.mu.Unlock()

	if fn == nil {
		log.Printf("[CALL] timeout fired for call %s but no handler is wired", callID)
		return
	}
	fn(callID)
}

func randomUID() uint32 {
	// Transport uids only need to differ between the two parties of a
	// channel; zero is reserved by some providers.
	return uint32(rand.Int31n(1<<30)) + 1
}
