package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"guidetrip/internal/domain"
	"guidetrip/internal/service"
)

// GuideHandler handles HTTP requests made by guides against a trip.
type GuideHandler struct {
	tripService *service.TripService
}

// NewGuideHandler creates a new GuideHandler.
func NewGuideHandler(tripService *service.TripService) *GuideHandler {
	return &GuideHandler{tripService: tripService}
}

// GuideResponse is the HTTP response shape for a guide candidate.
type GuideResponse struct {
	GuideID      string   `json:"guide_id"`
	PricePerHour float64  `json:"price_per_hour"`
	Languages    []string `json:"languages"`
	RatingScore  float64  `json:"rating_score"`
	Province     string   `json:"province"`
	TripCount    int      `json:"trip_count"`
}

func toGuideResponses(guides []*domain.Guide) []GuideResponse {
	responses := make([]GuideResponse, 0, len(guides))
	for _, g := range guides {
		responses = append(responses, GuideResponse{
			GuideID:      g.ID,
			PricePerHour: g.PricePerHour,
			Languages:    g.Languages,
			RatingScore:  g.RatingScore,
			Province:     g.Province,
			TripCount:    g.TripCount,
		})
	}
	return responses
}

// GuideDecisionRequest is the HTTP request for a guide accepting or
// rejecting a trip.
type GuideDecisionRequest struct {
	GuideID string `json:"guide_id" binding:"required"`
	Reason  string `json:"reason"`
}

// AcceptTrip handles POST /v1/trips/:id/accept
func (h *GuideHandler) AcceptTrip(c *gin.Context) {
	var req GuideDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.GuideAccept(c.Request.Context(), c.Param("id"), req.GuideID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// RejectTrip handles POST /v1/trips/:id/reject
func (h *GuideHandler) RejectTrip(c *gin.Context) {
	var req GuideDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.GuideReject(c.Request.Context(), c.Param("id"), req.GuideID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// CompleteTrip handles POST /v1/trips/:id/complete
func (h *GuideHandler) CompleteTrip(c *gin.Context) {
	var req GuideDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	trip, err := h.tripService.CompleteTrip(c.Request.Context(), req.GuideID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
