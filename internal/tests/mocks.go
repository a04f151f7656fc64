package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is a mock implementation of TripRepository. The
// conditional write semantics of UpdateIfStatus match the real store:
// the write and the outbox append happen under one lock, and a stale
// expected status loses without writing anything.
type MockTripRepository struct {
	mu     sync.RWMutex
	trips  map[string]*domain.Trip
	events []*domain.OutboxEvent

	// Counters for verification
	CreateCallCount         int32
	UpdateIfStatusCallCount int32
	CASLossCount            int32

	// Error injection
	CreateError         error
	UpdateIfStatusError error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{
		trips: make(map[string]*domain.Trip),
	}
}

// AddTrip seeds a trip into the mock repository.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = copyTrip(trip)
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip, events []*domain.OutboxEvent) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = copyTrip(trip)
	m.events = append(m.events, events...)
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTrip(trip), nil
}

func (m *MockTripRepository) GetByCallID(ctx context.Context, callID string) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, trip := range m.trips {
		if trip.CallRecordByID(callID) != nil {
			return copyTrip(trip), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockTripRepository) GetByProviderSessionID(ctx context.Context, sessionID string) (*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, trip := range m.trips {
		if trip.ProviderSessionID != "" && trip.ProviderSessionID == sessionID {
			return copyTrip(trip), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockTripRepository) UpdateIfStatus(ctx context.Context, tripID string, expected domain.TripStatus, trip *domain.Trip, events []*domain.OutboxEvent) (bool, error) {
	atomic.AddInt32(&m.UpdateIfStatusCallCount, 1)
	if m.UpdateIfStatusError != nil {
		return false, m.UpdateIfStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.trips[tripID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if stored.Status != expected {
		atomic.AddInt32(&m.CASLossCount, 1)
		return false, nil
	}
	m.trips[tripID] = copyTrip(trip)
	m.events = append(m.events, events...)
	return true, nil
}

func (m *MockTripRepository) UpdateCandidates(ctx context.Context, tripID string, candidateIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trip, ok := m.trips[tripID]
	if !ok {
		return repository.ErrNotFound
	}
	trip.CandidateGuideIDs = append([]string(nil), candidateIDs...)
	return nil
}

func (m *MockTripRepository) FindOverlapping(ctx context.Context, guideID string, startAt, endAt time.Time, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, trip := range m.trips {
		if trip.SelectedGuideID != guideID {
			continue
		}
		if !statusIn(trip.Status, statuses) {
			continue
		}
		if trip.StartAt.Before(endAt) && trip.EndAt().After(startAt) {
			result = append(result, copyTrip(trip))
		}
	}
	return result, nil
}

func (m *MockTripRepository) ListByTourist(ctx context.Context, touristID string) ([]*domain.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Trip
	for _, trip := range m.trips {
		if trip.TouristID == touristID {
			result = append(result, copyTrip(trip))
		}
	}
	return result, nil
}

// GetTrip returns the stored trip for test assertions.
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trip, ok := m.trips[id]
	if !ok {
		return nil
	}
	return copyTrip(trip)
}

// Events returns all outbox events recorded so far.
func (m *MockTripRepository) Events() []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.OutboxEvent(nil), m.events...)
}

// EventsOfKind returns recorded outbox events filtered by kind.
func (m *MockTripRepository) EventsOfKind(kind domain.OutboxKind) []*domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.OutboxEvent
	for _, e := range m.events {
		if e.Kind == kind {
			result = append(result, e)
		}
	}
	return result
}

func copyTrip(trip *domain.Trip) *domain.Trip {
	c := *trip
	c.CandidateGuideIDs = append([]string(nil), trip.CandidateGuideIDs...)
	c.Itinerary = append([]domain.Stop(nil), trip.Itinerary...)
	c.CallHistory = append([]domain.CallRecord(nil), trip.CallHistory...)
	if trip.Proposal != nil {
		p := *trip.Proposal
		p.Itinerary = append([]domain.Stop(nil), trip.Proposal.Itinerary...)
		c.Proposal = &p
	}
	return &c
}

func statusIn(status domain.TripStatus, statuses []domain.TripStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────
// MOCK CALL REPOSITORY
// ──────────────────────────────────────────────

// MockCallRepository is a mock implementation of CallRepository.
type MockCallRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.CallSession

	// Counters for verification
	CreateCallCount      int32
	EndIfActiveCallCount int32

	// Error injection
	CreateError      error
	EndIfActiveError error
}

// NewMockCallRepository creates a new mock call repository.
func NewMockCallRepository() *MockCallRepository {
	return &MockCallRepository{
		sessions: make(map[string]*domain.CallSession),
	}
}

// AddSession seeds a session into the mock repository.
func (m *MockCallRepository) AddSession(session *domain.CallSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *session
	m.sessions[session.ID] = &copy
}

func (m *MockCallRepository) Create(ctx context.Context, session *domain.CallSession) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *session
	m.sessions[session.ID] = &copy
	return nil
}

func (m *MockCallRepository) GetByID(ctx context.Context, id string) (*domain.CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (m *MockCallRepository) MarkOngoing(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if stored.Status != domain.CallStatusRinging {
		return false, nil
	}
	stored.Status = domain.CallStatusOngoing
	return true, nil
}

func (m *MockCallRepository) EndIfActive(ctx context.Context, session *domain.CallSession) (bool, error) {
	atomic.AddInt32(&m.EndIfActiveCallCount, 1)
	if m.EndIfActiveError != nil {
		return false, m.EndIfActiveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[session.ID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if stored.Terminal() {
		return false, nil
	}
	copy := *session
	m.sessions[session.ID] = &copy
	return true, nil
}

func (m *MockCallRepository) ListPending(ctx context.Context) ([]*domain.CallSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.CallSession
	for _, s := range m.sessions {
		if !s.Terminal() {
			copy := *s
			result = append(result, &copy)
		}
	}
	return result, nil
}

// GetSession returns the stored session for test assertions.
func (m *MockCallRepository) GetSession(id string) *domain.CallSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil
	}
	copy := *session
	return &copy
}

// ──────────────────────────────────────────────
// MOCK GUIDE REPOSITORY
// ──────────────────────────────────────────────

// MockGuideRepository is a mock implementation of GuideRepository.
type MockGuideRepository struct {
	mu     sync.RWMutex
	guides map[string]*domain.Guide

	// Counters for verification
	IncrementCallCount int32

	// Error injection
	IncrementError error
}

// NewMockGuideRepository creates a new mock guide repository.
func NewMockGuideRepository() *MockGuideRepository {
	return &MockGuideRepository{
		guides: make(map[string]*domain.Guide),
	}
}

// AddGuide seeds a guide into the mock repository.
func (m *MockGuideRepository) AddGuide(guide *domain.Guide) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guides[guide.ID] = guide
}

func (m *MockGuideRepository) GetByID(ctx context.Context, id string) (*domain.Guide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guide, ok := m.guides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *guide
	return &copy, nil
}

func (m *MockGuideRepository) ListActiveByProvince(ctx context.Context, province string) ([]*domain.Guide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Guide
	for _, g := range m.guides {
		if g.Active && g.Province == province {
			copy := *g
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockGuideRepository) IncrementTripCount(ctx context.Context, id string) error {
	atomic.AddInt32(&m.IncrementCallCount, 1)
	if m.IncrementError != nil {
		return m.IncrementError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	guide, ok := m.guides[id]
	if !ok {
		return repository.ErrNotFound
	}
	guide.TripCount++
	return nil
}

// ──────────────────────────────────────────────
// MOCK PLACE REPOSITORY
// ──────────────────────────────────────────────

// MockPlaceRepository is a mock implementation of PlaceRepository.
type MockPlaceRepository struct {
	mu     sync.RWMutex
	places map[string]*domain.Place
}

// NewMockPlaceRepository creates a new mock place repository.
func NewMockPlaceRepository() *MockPlaceRepository {
	return &MockPlaceRepository{
		places: make(map[string]*domain.Place),
	}
}

// AddPlace seeds a place into the mock repository.
func (m *MockPlaceRepository) AddPlace(place *domain.Place) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.places[place.ID] = place
}

func (m *MockPlaceRepository) GetByID(ctx context.Context, id string) (*domain.Place, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	place, ok := m.places[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *place
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]*domain.User),
	}
}

// AddUser seeds a user into the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK OUTBOX REPOSITORY
// ──────────────────────────────────────────────

// MockOutboxRepository is a mock implementation of OutboxRepository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	pending []*domain.OutboxEvent

	// Counters for verification
	MarkDispatchedCallCount int32

	// Error injection
	FetchError error
}

// NewMockOutboxRepository creates a new mock outbox repository.
func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// AddEvent seeds a pending event.
func (m *MockOutboxRepository) AddEvent(event *domain.OutboxEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, event)
}

func (m *MockOutboxRepository) FetchUndispatched(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.OutboxEvent
	for _, e := range m.pending {
		if e.DispatchedAt.IsZero() {
			result = append(result, e)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MockOutboxRepository) MarkDispatched(ctx context.Context, id string) error {
	atomic.AddInt32(&m.MarkDispatchedCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.pending {
		if e.ID == id {
			e.DispatchedAt = time.Now()
			return nil
		}
	}
	return repository.ErrNotFound
}

// ──────────────────────────────────────────────
// RECORDER EMITTER
// ──────────────────────────────────────────────

// EmittedEvent is one recorded realtime broadcast.
type EmittedEvent struct {
	TripID string
	Status string
	Extra  map[string]any
}

// RecorderEmitter records realtime emissions instead of publishing.
type RecorderEmitter struct {
	mu      sync.Mutex
	emitted []EmittedEvent
}

// NewRecorderEmitter creates a new recording emitter.
func NewRecorderEmitter() *RecorderEmitter {
	return &RecorderEmitter{}
}

func (r *RecorderEmitter) EmitStatusChange(ctx context.Context, tripID, status string, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = append(r.emitted, EmittedEvent{TripID: tripID, Status: status, Extra: extra})
}

// Emitted returns all recorded emissions.
func (r *RecorderEmitter) Emitted() []EmittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EmittedEvent(nil), r.emitted...)
}
