package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guidetrip/internal/domain"
	"guidetrip/internal/service"
)

// ──────────────────────────────────────────────
// CANDIDATE LISTING
// ──────────────────────────────────────────────

func TestListCandidateGuides_FiltersAndSorts(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(&domain.Guide{ID: "guide-low", Active: true, Province: "Cairo", RatingScore: 3.2, Languages: []string{"en"}, Lat: 30.05, Lng: 31.24})
	guideRepo.AddGuide(&domain.Guide{ID: "guide-high", Active: true, Province: "Cairo", RatingScore: 4.9, Languages: []string{"en", "fr"}, Lat: 30.04, Lng: 31.23})
	guideRepo.AddGuide(&domain.Guide{ID: "guide-inactive", Active: false, Province: "Cairo", RatingScore: 5.0, Languages: []string{"en"}})
	guideRepo.AddGuide(&domain.Guide{ID: "guide-luxor", Active: true, Province: "Luxor", RatingScore: 4.8, Languages: []string{"en"}})

	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:         "trip-1",
		TouristID:  "tourist-1",
		Status:     domain.TripStatusSelectingGuide,
		Province:   "Cairo",
		MeetingLat: 30.04,
		MeetingLng: 31.23,
	})

	guides, err := tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(guides) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(guides))
	}
	// Sorted by rating, best first.
	if guides[0].ID != "guide-high" || guides[1].ID != "guide-low" {
		t.Errorf("expected [guide-high guide-low], got [%s %s]", guides[0].ID, guides[1].ID)
	}

	// Language filter.
	guides, err = tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{Language: "fr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(guides) != 1 || guides[0].ID != "guide-high" {
		t.Errorf("expected only guide-high for fr, got %d guides", len(guides))
	}

	// Distance filter: guide-low is roughly 1.5km away, guide-high at
	// the meeting point.
	guides, err = tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{MaxDistanceKm: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(guides) != 1 || guides[0].ID != "guide-high" {
		t.Errorf("expected only guide-high within 1km, got %d guides", len(guides))
	}
}

func TestListCandidateGuides_EmptyOutsideSelectionStatuses(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(activeGuide("guide-1"))
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:        "trip-1",
		TouristID: "tourist-1",
		Status:    domain.TripStatusConfirmed,
		Province:  "Cairo",
	})

	guides, err := tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(guides) != 0 {
		t.Errorf("expected empty list for confirmed trip, got %d", len(guides))
	}
}

func TestListCandidateGuides_Pagination(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(&domain.Guide{ID: "g1", Active: true, Province: "Cairo", RatingScore: 5.0})
	guideRepo.AddGuide(&domain.Guide{ID: "g2", Active: true, Province: "Cairo", RatingScore: 4.0})
	guideRepo.AddGuide(&domain.Guide{ID: "g3", Active: true, Province: "Cairo", RatingScore: 3.0})
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:        "trip-1",
		TouristID: "tourist-1",
		Status:    domain.TripStatusSelectingGuide,
		Province:  "Cairo",
	})

	page1, err := tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != "g1" {
		t.Errorf("expected first page [g1 g2], got %d guides", len(page1))
	}

	page2, err := tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "g3" {
		t.Errorf("expected second page [g3], got %d guides", len(page2))
	}

	page3, err := tripService.ListCandidateGuides(context.Background(), "trip-1", service.CandidateFilters{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page3) != 0 {
		t.Errorf("expected empty third page, got %d guides", len(page3))
	}
}

// ──────────────────────────────────────────────
// GUIDE SELECTION
// ──────────────────────────────────────────────

func TestSelectGuide_RejectsInactiveGuide(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	inactive := activeGuide("guide-1")
	inactive.Active = false
	guideRepo.AddGuide(inactive)
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:        "trip-1",
		TouristID: "tourist-1",
		Status:    domain.TripStatusSelectingGuide,
		StartAt:   time.Now().Add(72 * time.Hour),
	})

	_, err := tripService.SelectGuide(context.Background(), "trip-1", "tourist-1", "guide-1")
	if !errors.Is(err, service.ErrGuideNotActive) {
		t.Errorf("expected ErrGuideNotActive, got %v", err)
	}
}

func TestSelectGuide_RejectsOverlappingSchedule(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(activeGuide("guide-1"))
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	start := time.Now().Add(72 * time.Hour)

	// The guide already holds a confirmed trip covering the window.
	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-busy",
		TouristID:            "tourist-2",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusConfirmed,
		StartAt:              start.Add(-30 * time.Minute),
		TotalDurationMinutes: 120,
	})
	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-new",
		TouristID:            "tourist-1",
		Status:               domain.TripStatusSelectingGuide,
		StartAt:              start,
		TotalDurationMinutes: 60,
	})

	_, err := tripService.SelectGuide(context.Background(), "trip-new", "tourist-1", "guide-1")
	if !errors.Is(err, service.ErrGuideUnavailable) {
		t.Errorf("expected ErrGuideUnavailable, got %v", err)
	}

	// A cancelled trip does not occupy the schedule.
	tripRepo.AddTrip(&domain.Trip{
		ID:                   "trip-busy",
		TouristID:            "tourist-2",
		SelectedGuideID:      "guide-1",
		Status:               domain.TripStatusCancelled,
		StartAt:              start.Add(-30 * time.Minute),
		TotalDurationMinutes: 120,
	})
	trip, err := tripService.SelectGuide(context.Background(), "trip-new", "tourist-1", "guide-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trip.Status != domain.TripStatusAwaitingCall {
		t.Errorf("expected awaiting_call, got %s", trip.Status)
	}
}

// Two tourists racing to mutate the same trip: exactly one conditional
// write wins, the loser gets ErrConflict without corrupting state.
func TestSelectGuide_ConcurrentSelectionSingleWinner(t *testing.T) {
	t.Parallel()

	tripRepo := NewMockTripRepository()
	guideRepo := NewMockGuideRepository()
	guideRepo.AddGuide(activeGuide("guide-1"))
	guideRepo.AddGuide(activeGuide("guide-2"))
	tripService, _ := newTripService(tripRepo, NewMockCallRepository(), guideRepo, NewMockPlaceRepository())

	tripRepo.AddTrip(&domain.Trip{
		ID:        "trip-1",
		TouristID: "tourist-1",
		Status:    domain.TripStatusSelectingGuide,
		StartAt:   time.Now().Add(72 * time.Hour),
	})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, guideID := range []string{"guide-1", "guide-2"} {
		wg.Add(1)
		go func(i int, guideID string) {
			defer wg.Done()
			_, results[i] = tripService.SelectGuide(context.Background(), "trip-1", "tourist-1", guideID)
		}(i, guideID)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, service.ErrConflict):
			conflicts++
		default:
			// The loser may instead observe the new status through a
			// transition error if its read happened after the win.
			var transitionErr *domain.InvalidTransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("unexpected error: %v", err)
			}
			conflicts++
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("expected exactly one winner and one conflict, got wins=%d conflicts=%d", wins, conflicts)
	}

	stored := tripRepo.GetTrip("trip-1")
	if stored.Status != domain.TripStatusAwaitingCall {
		t.Errorf("expected awaiting_call, got %s", stored.Status)
	}
	if stored.SelectedGuideID != "guide-1" && stored.SelectedGuideID != "guide-2" {
		t.Errorf("expected one of the contenders selected, got %q", stored.SelectedGuideID)
	}
}
