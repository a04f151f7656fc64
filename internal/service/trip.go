package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"guidetrip/internal/domain"
	"guidetrip/internal/redis"
	"guidetrip/internal/repository"
)

const (
	defaultCancelLeadTime    = 24 * time.Hour
	defaultCandidatePageSize = 20
	tripLockTTL              = 10 * time.Second
)

// TripService orchestrates the trip negotiation lifecycle. Every
// operation follows the same shape: load, authorize, validate the
// transition, conditional write, side effects through the outbox.
type TripService struct {
	tripRepo    repository.TripRepository
	guideRepo   repository.GuideRepository
	placeRepo   repository.PlaceRepository
	userRepo    repository.UserRepository
	callService CallServiceInterface
	pricing     *PricingService
	cacheStore  *redis.CacheStore // optional

	cancelLeadTime time.Duration
}

// NewTripService creates a new TripService. A non-positive lead time
// falls back to the 24h default.
func NewTripService(
	tripRepo repository.TripRepository,
	guideRepo repository.GuideRepository,
	placeRepo repository.PlaceRepository,
	userRepo repository.UserRepository,
	callService CallServiceInterface,
	pricing *PricingService,
	cacheStore *redis.CacheStore,
	cancelLeadTime time.Duration,
) *TripService {
	if cancelLeadTime <= 0 {
		cancelLeadTime = defaultCancelLeadTime
	}
	return &TripService{
		tripRepo:       tripRepo,
		guideRepo:      guideRepo,
		placeRepo:      placeRepo,
		userRepo:       userRepo,
		callService:    callService,
		pricing:        pricing,
		cacheStore:     cacheStore,
		cancelLeadTime: cancelLeadTime,
	}
}

// CreateTripRequest contains the parameters for creating a trip.
type CreateTripRequest struct {
	TouristID            string
	StartAt              time.Time
	TotalDurationMinutes int
	Province             string // optional when PlaceID resolves one
	PlaceID              string
	Itinerary            []domain.Stop
	MeetingLat           float64
	MeetingLng           float64
	MeetingAddress       string
}

// CreateTripResponse contains the result of creating a trip.
type CreateTripResponse struct {
	Trip       *domain.Trip
	Candidates []*domain.Guide
}

// CreateTrip creates a trip in selecting_guide and synchronously
// computes the initial candidate guide list so the caller gets both in
// one round trip.
func (s *TripService) CreateTrip(ctx context.Context, req CreateTripRequest) (*CreateTripResponse, error) {
	if req.TouristID == "" {
		return nil, ErrInvalidTouristID
	}
	if !req.StartAt.After(time.Now()) {
		return nil, ErrStartTimeNotFuture
	}
	if req.TotalDurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	for _, stop := range req.Itinerary {
		if stop.DurationMinutes <= 0 {
			return nil, ErrInvalidDuration
		}
	}

	province := req.Province
	meetingLat, meetingLng := req.MeetingLat, req.MeetingLng
	if province == "" && req.PlaceID != "" {
		place, err := s.placeRepo.GetByID(ctx, req.PlaceID)
		if err != nil {
			return nil, err
		}
		province = place.Province
		if meetingLat == 0 && meetingLng == 0 {
			meetingLat, meetingLng = place.Lat, place.Lng
		}
	}
	if province == "" {
		return nil, ErrMissingProvince
	}

	now := time.Now()
	trip := &domain.Trip{
		ID:                   uuid.New().String(),
		TouristID:            req.TouristID,
		StartAt:              req.StartAt,
		TotalDurationMinutes: req.TotalDurationMinutes,
		Province:             province,
		Itinerary:            req.Itinerary,
		MeetingLat:           meetingLat,
		MeetingLng:           meetingLng,
		MeetingAddress:       req.MeetingAddress,
		Status:               domain.TripStatusSelectingGuide,
		PaymentStatus:        domain.PaymentStatusUnpaid,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	candidates, err := s.guideRepo.ListActiveByProvince(ctx, province)
	if err != nil {
		// Candidate computation is best-effort at creation; the list
		// can be refetched later.
		log.Printf("[TRIP] initial candidate fetch failed trip=%s: %v", trip.ID, err)
		candidates = nil
	}
	trip.CandidateGuideIDs = guideIDs(candidates)

	events := []*domain.OutboxEvent{
		newAuditEvent(trip.ID, req.TouristID, "trip_created", map[string]any{"province": province}),
	}

	if err := s.tripRepo.Create(ctx, trip, events); err != nil {
		return nil, err
	}

	s.cacheCandidates(ctx, trip.ID, trip.CandidateGuideIDs)

	return &CreateTripResponse{Trip: trip, Candidates: candidates}, nil
}

// CandidateFilters narrows and pages the candidate guide list.
type CandidateFilters struct {
	Language      string
	MaxDistanceKm float64
	Page          int
	PageSize      int
}

// ListCandidateGuides returns guides eligible for the trip: active in
// the trip's province, optionally filtered by language and straight-line
// distance from the meeting point, sorted by rating. Outside the
// guide-selection statuses it returns an empty list rather than an
// error, so stale client polling stays harmless.
func (s *TripService) ListCandidateGuides(ctx context.Context, tripID string, filters CandidateFilters) ([]*domain.Guide, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if trip.Status != domain.TripStatusSelectingGuide && trip.Status != domain.TripStatusAwaitingCall {
		return []*domain.Guide{}, nil
	}

	guides, err := s.guideRepo.ListActiveByProvince(ctx, trip.Province)
	if err != nil {
		return nil, err
	}

	if filters.Language != "" {
		filtered := guides[:0]
		for _, g := range guides {
			if g.SpeaksLanguage(filters.Language) {
				filtered = append(filtered, g)
			}
		}
		guides = filtered
	}

	sort.SliceStable(guides, func(i, j int) bool {
		return guides[i].RatingScore > guides[j].RatingScore
	})

	// The full list (before the distance filter and pagination) is
	// cached onto the trip for audit and debugging. An unchanged list
	// skips the row write.
	fullIDs := guideIDs(guides)
	if !s.candidatesCached(ctx, tripID, fullIDs) {
		if err := s.tripRepo.UpdateCandidates(ctx, tripID, fullIDs); err != nil {
			log.Printf("[TRIP] candidate cache write failed trip=%s: %v", tripID, err)
		}
		s.cacheCandidates(ctx, tripID, fullIDs)
	}

	if filters.MaxDistanceKm > 0 {
		filtered := guides[:0]
		for _, g := range guides {
			if DistanceKm(trip.MeetingLat, trip.MeetingLng, g.Lat, g.Lng) <= filters.MaxDistanceKm {
				filtered = append(filtered, g)
			}
		}
		guides = filtered
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultCandidatePageSize
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	if start >= len(guides) {
		return []*domain.Guide{}, nil
	}
	end := start + pageSize
	if end > len(guides) {
		end = len(guides)
	}

	return guides[start:end], nil
}

// SelectGuide assigns a guide to the trip and moves it to awaiting_call.
func (s *TripService) SelectGuide(ctx context.Context, tripID, touristID, guideID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	if guideID == "" {
		return nil, ErrInvalidGuideID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.TouristID != touristID {
		return nil, ErrForbidden
	}

	guide, err := s.lookupGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if !guide.Active {
		return nil, ErrGuideNotActive
	}

	overlapping, err := s.tripRepo.FindOverlapping(ctx, guideID, trip.StartAt, trip.EndAt(), domain.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, ErrGuideUnavailable
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusAwaitingCall); err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.SelectedGuideID = guideID
	trip.Status = domain.TripStatusAwaitingCall
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationGuideSelected, guide.UserID, map[string]any{
			"trip_id":  trip.ID,
			"start_at": trip.StartAt,
		}),
		newAuditEvent(trip.ID, touristID, "guide_selected", map[string]any{"guide_id": guideID}),
		newRealtimeEvent(trip.ID, trip.Status, nil),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	if s.cacheStore != nil {
		if err := s.cacheStore.InvalidateCandidates(ctx, trip.ID); err != nil {
			log.Printf("[TRIP] redis candidate invalidation failed trip=%s: %v", trip.ID, err)
		}
	}

	return trip, nil
}

// ReopenSelection puts the trip back into selecting_guide so the
// tourist can pick another guide, either after a rejection or to change
// guides while still awaiting the call.
func (s *TripService) ReopenSelection(ctx context.Context, tripID, touristID string) (*domain.Trip, error) {
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

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusSelectingGuide); err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.SelectedGuideID = ""
	trip.Status = domain.TripStatusSelectingGuide
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newAuditEvent(trip.ID, touristID, "selection_reopened", nil),
		newRealtimeEvent(trip.ID, trip.Status, nil),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	return trip, nil
}

// CancelTripRequest contains the parameters for cancelling a trip.
type CancelTripRequest struct {
	ActorID   string
	TripID    string
	Reason    string
	ActorRole domain.ActorRole
}

// CancelTrip cancels a trip. Cancellation inside the minimum lead-time
// window before the trip start is a business-rule violation, distinct
// from a state-graph violation.
func (s *TripService) CancelTrip(ctx context.Context, req CancelTripRequest) (*domain.Trip, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}

	switch req.ActorRole {
	case domain.ActorRoleTourist:
		if trip.TouristID != req.ActorID {
			return nil, ErrForbidden
		}
	case domain.ActorRoleGuide:
		if trip.SelectedGuideID == "" || trip.SelectedGuideID != req.ActorID {
			return nil, ErrForbidden
		}
	case domain.ActorRoleAdmin:
		// Admin may cancel any trip, but the claimed role is checked
		// against the user directory.
		user, err := s.userRepo.GetByID(ctx, req.ActorID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		if user.Role != string(domain.ActorRoleAdmin) {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusCancelled); err != nil {
		return nil, err
	}

	if time.Until(trip.StartAt) < s.cancelLeadTime {
		return nil, ErrCancellationTooLate
	}

	expected := trip.Status
	now := time.Now()
	trip.Status = domain.TripStatusCancelled
	trip.CancelReason = req.Reason
	trip.CancelledBy = req.ActorRole
	trip.CancelledAt = now
	trip.UpdatedAt = now

	events := []*domain.OutboxEvent{
		newAuditEvent(trip.ID, req.ActorID, "trip_cancelled", map[string]any{
			"reason": req.Reason,
			"role":   string(req.ActorRole),
		}),
		newRealtimeEvent(trip.ID, trip.Status, map[string]any{"reason": req.Reason}),
	}
	if other := s.counterpartyUserID(ctx, trip, req.ActorRole); other != "" {
		events = append(events, newNotificationEvent(trip.ID, NotificationTripCancelled, other, map[string]any{
			"trip_id": trip.ID,
			"reason":  req.Reason,
		}))
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	return trip, nil
}

// CompleteTrip marks a trip completed and bumps the guide's trip counter.
func (s *TripService) CompleteTrip(ctx context.Context, guideID, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.SelectedGuideID == "" || trip.SelectedGuideID != guideID {
		return nil, ErrForbidden
	}

	if err := domain.ValidateTransition(trip.Status, domain.TripStatusCompleted); err != nil {
		return nil, err
	}

	expected := trip.Status
	trip.Status = domain.TripStatusCompleted
	trip.UpdatedAt = time.Now()

	events := []*domain.OutboxEvent{
		newNotificationEvent(trip.ID, NotificationTripCompleted, trip.TouristID, map[string]any{"trip_id": trip.ID}),
		newAuditEvent(trip.ID, guideID, "trip_completed", nil),
		newRealtimeEvent(trip.ID, trip.Status, nil),
	}

	updated, err := s.tripRepo.UpdateIfStatus(ctx, trip.ID, expected, trip, events)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrConflict
	}

	// Directory counter update is a side effect; its failure must not
	// undo the completed transition.
	if err := s.guideRepo.IncrementTripCount(ctx, guideID); err != nil {
		log.Printf("[TRIP] trip count increment failed guide=%s: %v", guideID, err)
	}

	return trip, nil
}

// GetTrip retrieves a trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return s.tripRepo.GetByID(ctx, tripID)
}

// ListTrips returns the tourist's trips, newest first.
func (s *TripService) ListTrips(ctx context.Context, touristID string) ([]*domain.Trip, error) {
	if touristID == "" {
		return nil, ErrInvalidTouristID
	}
	return s.tripRepo.ListByTourist(ctx, touristID)
}

// counterpartyUserID resolves the notification recipient opposite the
// acting party. Best-effort: lookup failures return "".
func (s *TripService) counterpartyUserID(ctx context.Context, trip *domain.Trip, actor domain.ActorRole) string {
	if actor == domain.ActorRoleGuide {
		return trip.TouristID
	}
	if trip.SelectedGuideID == "" {
		return ""
	}
	guide, err := s.lookupGuide(ctx, trip.SelectedGuideID)
	if err != nil {
		return ""
	}
	return guide.UserID
}

func (s *TripService) cacheCandidates(ctx context.Context, tripID string, ids []string) {
	if s.cacheStore == nil {
		return
	}
	if err := s.cacheStore.SetCandidates(ctx, tripID, ids); err != nil {
		log.Printf("[TRIP] redis candidate cache failed trip=%s: %v", tripID, err)
	}
}

func (s *TripService) candidatesCached(ctx context.Context, tripID string, ids []string) bool {
	if s.cacheStore == nil {
		return false
	}
	cached, err := s.cacheStore.GetCandidates(ctx, tripID)
	if err != nil || len(cached) != len(ids) {
		return false
	}
	for i := range ids {
		if cached[i] != ids[i] {
			return false
		}
	}
	return true
}

// lookupGuide reads the guide through the redis cache when one is
// configured, falling back to the repository on a miss.
func (s *TripService) lookupGuide(ctx context.Context, guideID string) (*domain.Guide, error) {
	if s.cacheStore != nil {
		if cg, err := s.cacheStore.GetGuide(ctx, guideID); err == nil && cg != nil {
			return &domain.Guide{
				ID:           cg.ID,
				UserID:       cg.UserID,
				Active:       cg.Active,
				PricePerHour: cg.PricePerHour,
				Languages:    cg.Languages,
				RatingScore:  cg.RatingScore,
				Province:     cg.Province,
				Lat:          cg.Lat,
				Lng:          cg.Lng,
				TripCount:    cg.TripCount,
			}, nil
		}
	}

	guide, err := s.guideRepo.GetByID(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if s.cacheStore != nil {
		cached := &redis.CachedGuide{
			ID:           guide.ID,
			UserID:       guide.UserID,
			Active:       guide.Active,
			PricePerHour: guide.PricePerHour,
			Languages:    guide.Languages,
			RatingScore:  guide.RatingScore,
			Province:     guide.Province,
			Lat:          guide.Lat,
			Lng:          guide.Lng,
			TripCount:    guide.TripCount,
		}
		if err := s.cacheStore.SetGuide(ctx, cached); err != nil {
			log.Printf("[TRIP] redis guide cache failed guide=%s: %v", guideID, err)
		}
	}
	return guide, nil
}

func guideIDs(guides []*domain.Guide) []string {
	ids := make([]string, len(guides))
	for i, g := range guides {
		ids[i] = g.ID
	}
	return ids
}
