package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"guidetrip/internal/domain"
	"guidetrip/internal/service"
)

// CallHandler handles HTTP requests for negotiation calls.
type CallHandler struct {
	tripService *service.TripService
	callService service.CallServiceInterface
}

// NewCallHandler creates a new CallHandler.
func NewCallHandler(tripService *service.TripService, callService service.CallServiceInterface) *CallHandler {
	return &CallHandler{tripService: tripService, callService: callService}
}

// InitiateCallRequest is the HTTP request for starting a call.
type InitiateCallRequest struct {
	TouristID string `json:"tourist_id" binding:"required"`
}

// CallSessionResponse is the HTTP response shape for a call session.
type CallSessionResponse struct {
	CallID             string `json:"call_id"`
	TripID             string `json:"trip_id"`
	Status             string `json:"status"`
	Channel            string `json:"channel"`
	MaxDurationSeconds int    `json:"max_duration_seconds"`
	Deadline           string `json:"deadline"`
	EndReason          string `json:"end_reason,omitempty"`
}

// JoinResponse carries the transport credentials for joining a call.
type JoinResponse struct {
	Token   string `json:"token"`
	Role    string `json:"role"`
	Channel string `json:"channel"`
	UID     uint32 `json:"uid"`
}

func toCallSessionResponse(session *domain.CallSession) CallSessionResponse {
	return CallSessionResponse{
		CallID:             session.ID,
		TripID:             session.TripID,
		Status:             string(session.Status),
		Channel:            session.Channel,
		MaxDurationSeconds: session.MaxDurationSeconds,
		Deadline:           session.Deadline.Format(time.RFC3339),
		EndReason:          string(session.EndReason),
	}
}

func toJoinResponse(join *service.JoinInfo) JoinResponse {
	return JoinResponse{
		Token:   join.Token,
		Role:    join.Role,
		Channel: join.Channel,
		UID:     join.UID,
	}
}

// InitiateCall handles POST /v1/trips/:id/call
func (h *CallHandler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	result, err := h.tripService.InitiateCall(c.Request.Context(), c.Param("id"), req.TouristID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{
		"trip":    toTripResponse(result.Trip),
		"session": toCallSessionResponse(result.Session),
		"join":    toJoinResponse(result.Join),
	})
}

// JoinCallRequest is the HTTP request for joining a call.
type JoinCallRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// JoinCall handles POST /v1/calls/:id/join
func (h *CallHandler) JoinCall(c *gin.Context) {
	var req JoinCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	join, err := h.callService.Join(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toJoinResponse(join))
}

// EndCallHTTPRequest is the HTTP request for ending a call.
type EndCallHTTPRequest struct {
	UserID          string  `json:"user_id" binding:"required"`
	EndReason       string  `json:"end_reason"`
	Summary         string  `json:"summary"`
	NegotiatedPrice float64 `json:"negotiated_price"`
}

// EndCall handles POST /v1/calls/:id/end
func (h *CallHandler) EndCall(c *gin.Context) {
	var req EndCallHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	reason := domain.CallEndReason(req.EndReason)
	if reason == "" {
		reason = domain.CallEndCompleted
	}

	trip, err := h.tripService.EndCall(c.Request.Context(), c.Param("id"), req.UserID, service.EndCallRequest{
		EndReason:       reason,
		Summary:         req.Summary,
		NegotiatedPrice: req.NegotiatedPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// GetCall handles GET /v1/calls/:id
func (h *CallHandler) GetCall(c *gin.Context) {
	session, err := h.callService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toCallSessionResponse(session))
}
