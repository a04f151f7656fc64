package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"guidetrip/internal/domain"
	"guidetrip/internal/repository"
	"guidetrip/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code, kind := classifyError(err)
	c.JSON(code, ErrorResponse{Error: err.Error(), Kind: kind})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// classifyError maps service/repository errors to HTTP status codes and
// a machine-readable kind, so clients can distinguish a lost race (retry
// after reload) from a state-graph violation (terminal for the request).
func classifyError(err error) (int, string) {
	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return http.StatusUnprocessableEntity, "invalid_transition"
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"

	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"

	// Business-rule violations
	case errors.Is(err, service.ErrCancellationTooLate),
		errors.Is(err, service.ErrGuideUnavailable),
		errors.Is(err, service.ErrGuideNotActive),
		errors.Is(err, service.ErrProposalPending),
		errors.Is(err, service.ErrNoPendingProposal),
		errors.Is(err, service.ErrNoSelectedGuide),
		errors.Is(err, service.ErrCallEnded):
		return http.StatusUnprocessableEntity, "business_rule"

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidTouristID),
		errors.Is(err, service.ErrInvalidGuideID),
		errors.Is(err, service.ErrInvalidCallID),
		errors.Is(err, service.ErrStartTimeNotFuture),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrMissingProvince),
		errors.Is(err, service.ErrInvalidPrice):
		return http.StatusBadRequest, "validation"

	case errors.Is(err, service.ErrMissingSignature),
		errors.Is(err, service.ErrBadSignature):
		return http.StatusUnauthorized, "unauthorized"

	default:
		return http.StatusInternalServerError, "internal"
	}
}
