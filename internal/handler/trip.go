package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"guidetrip/internal/domain"
	"guidetrip/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// StopRequest is one itinerary stop in a request body.
type StopRequest struct {
	PlaceID         string `json:"place_id" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
	Notes           string `json:"notes"`
	TicketIncluded  bool   `json:"ticket_included"`
}

// CreateTripRequest is the HTTP request for creating a trip.
type CreateTripRequest struct {
	TouristID            string        `json:"tourist_id" binding:"required"`
	StartAt              time.Time     `json:"start_at" binding:"required"`
	TotalDurationMinutes int           `json:"total_duration_minutes" binding:"required"`
	Province             string        `json:"province"`
	PlaceID              string        `json:"place_id"`
	Itinerary            []StopRequest `json:"itinerary"`
	MeetingLat           float64       `json:"meeting_lat"`
	MeetingLng           float64       `json:"meeting_lng"`
	MeetingAddress       string        `json:"meeting_address"`
}

// TripResponse is the HTTP response shape for a trip.
type TripResponse struct {
	TripID            string                `json:"trip_id"`
	TouristID         string                `json:"tourist_id"`
	SelectedGuideID   string                `json:"selected_guide_id,omitempty"`
	Status            string                `json:"status"`
	StartAt           string                `json:"start_at"`
	EndAt             string                `json:"end_at"`
	DurationMinutes   int                   `json:"total_duration_minutes"`
	Province          string                `json:"province"`
	Itinerary         []domain.Stop         `json:"itinerary,omitempty"`
	MeetingAddress    string                `json:"meeting_address,omitempty"`
	NegotiatedPrice   float64               `json:"negotiated_price,omitempty"`
	Pricing           domain.PriceBreakdown `json:"pricing"`
	PaymentStatus     string                `json:"payment_status"`
	CallHistory       []domain.CallRecord   `json:"call_history,omitempty"`
	CandidateGuideIDs []string              `json:"candidate_guide_ids,omitempty"`
	CancelReason      string                `json:"cancel_reason,omitempty"`
	CancelledBy       string                `json:"cancelled_by,omitempty"`
	ConfirmedAt       string                `json:"confirmed_at,omitempty"`
}

func toTripResponse(trip *domain.Trip) TripResponse {
	resp := TripResponse{
		TripID:            trip.ID,
		TouristID:         trip.TouristID,
		SelectedGuideID:   trip.SelectedGuideID,
		Status:            string(trip.Status),
		StartAt:           trip.StartAt.Format(time.RFC3339),
		EndAt:             trip.EndAt().Format(time.RFC3339),
		DurationMinutes:   trip.TotalDurationMinutes,
		Province:          trip.Province,
		Itinerary:         trip.Itinerary,
		MeetingAddress:    trip.MeetingAddress,
		NegotiatedPrice:   trip.NegotiatedPrice,
		Pricing:           trip.Pricing,
		PaymentStatus:     string(trip.PaymentStatus),
		CallHistory:       trip.CallHistory,
		CandidateGuideIDs: trip.CandidateGuideIDs,
		CancelReason:      trip.CancelReason,
		CancelledBy:       string(trip.CancelledBy),
	}
	if !trip.ConfirmedAt.IsZero() {
		resp.ConfirmedAt = trip.ConfirmedAt.Format(time.RFC3339)
	}
	return resp
}

// CreateTrip handles POST /v1/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	itinerary := make([]domain.Stop, len(req.Itinerary))
	for i, stop := range req.Itinerary {
		itinerary[i] = domain.Stop{
			PlaceID:         stop.PlaceID,
			DurationMinutes: stop.DurationMinutes,
			Notes:           stop.Notes,
			TicketIncluded:  stop.TicketIncluded,
		}
	}

	result, err := h.tripService.CreateTrip(c.Request.Context(), service.CreateTripRequest{
		TouristID:            req.TouristID,
		StartAt:              req.StartAt,
		TotalDurationMinutes: req.TotalDurationMinutes,
		Province:             req.Province,
		PlaceID:              req.PlaceID,
		Itinerary:            itinerary,
		MeetingLat:           req.MeetingLat,
		MeetingLng:           req.MeetingLng,
		MeetingAddress:       req.MeetingAddress,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{
		"trip":       toTripResponse(result.Trip),
		"candidates": toGuideResponses(result.Candidates),
	})
}

// GetTrip handles GET /v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	trip, err := h.tripService.GetTrip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ListTrips handles GET /v1/trips?tourist_id=
func (h *TripHandler) ListTrips(c *gin.Context) {
	trips, err := h.tripService.ListTrips(c.Request.Context(), c.Query("tourist_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]TripResponse, 0, len(trips))
	for _, trip := range trips {
		responses = append(responses, toTripResponse(trip))
	}
	respondJSON(c, http.StatusOK, responses)
}

// ListCandidateGuides handles GET /v1/trips/:id/guides
func (h *TripHandler) ListCandidateGuides(c *gin.Context) {
	var filters service.CandidateFilters
	filters.Language = c.Query("language")
	if v := c.Query("max_distance_km"); v != "" {
		if f, err := parseFloat(v); err == nil {
			filters.MaxDistanceKm = f
		}
	}
	filters.Page = parseIntDefault(c.Query("page"), 1)
	filters.PageSize = parseIntDefault(c.Query("page_size"), 0)

	guides, err := h.tripService.ListCandidateGuides(c.Request.Context(), c.Param("id"), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toGuideResponses(guides))
}

// SelectGuideRequest is the HTTP request for selecting a guide.
type SelectGuideRequest struct {
	TouristID string `json:"tourist_id" binding:"required"`
	GuideID   string `json:"guide_id" binding:"required"`
}

// SelectGuide handles POST /v1/trips/:id/select-guide
func (h *TripHandler) SelectGuide(c *gin.Context) {
	var req SelectGuideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.SelectGuide(c.Request.Context(), c.Param("id"), req.TouristID, req.GuideID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ReopenSelectionRequest is the HTTP request for reopening guide selection.
type ReopenSelectionRequest struct {
	TouristID string `json:"tourist_id" binding:"required"`
}

// ReopenSelection handles POST /v1/trips/:id/reopen-selection
func (h *TripHandler) ReopenSelection(c *gin.Context) {
	var req ReopenSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.ReopenSelection(c.Request.Context(), c.Param("id"), req.TouristID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// CancelTripRequest is the HTTP request for cancelling a trip.
type CancelTripRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Role    string `json:"role" binding:"required"`
	Reason  string `json:"reason"`
}

// CancelTrip handles POST /v1/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	var req CancelTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.CancelTrip(c.Request.Context(), service.CancelTripRequest{
		ActorID:   req.ActorID,
		TripID:    c.Param("id"),
		Reason:    req.Reason,
		ActorRole: domain.ActorRole(req.Role),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ProposeChangeRequest is the HTTP request for proposing a trip change.
type ProposeChangeRequest struct {
	GuideID              string        `json:"guide_id" binding:"required"`
	StartAt              time.Time     `json:"start_at" binding:"required"`
	TotalDurationMinutes int           `json:"total_duration_minutes" binding:"required"`
	Itinerary            []StopRequest `json:"itinerary"`
	Reason               string        `json:"reason"`
}

// ProposeChange handles POST /v1/trips/:id/proposal
func (h *TripHandler) ProposeChange(c *gin.Context) {
	var req ProposeChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	itinerary := make([]domain.Stop, len(req.Itinerary))
	for i, stop := range req.Itinerary {
		itinerary[i] = domain.Stop{
			PlaceID:         stop.PlaceID,
			DurationMinutes: stop.DurationMinutes,
			Notes:           stop.Notes,
			TicketIncluded:  stop.TicketIncluded,
		}
	}

	trip, err := h.tripService.ProposeChange(c.Request.Context(), c.Param("id"), req.GuideID, service.ProposeChangeRequest{
		StartAt:              req.StartAt,
		TotalDurationMinutes: req.TotalDurationMinutes,
		Itinerary:            itinerary,
		Reason:               req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// ProposalDecisionRequest is the HTTP request for deciding on a proposal.
type ProposalDecisionRequest struct {
	TouristID string `json:"tourist_id" binding:"required"`
}

// AcceptProposal handles POST /v1/trips/:id/proposal/accept
func (h *TripHandler) AcceptProposal(c *gin.Context) {
	var req ProposalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.AcceptProposal(c.Request.Context(), c.Param("id"), req.TouristID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// RejectProposal handles POST /v1/trips/:id/proposal/reject
func (h *TripHandler) RejectProposal(c *gin.Context) {
	var req ProposalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.RejectProposal(c.Request.Context(), c.Param("id"), req.TouristID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}
