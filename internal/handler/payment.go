package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"guidetrip/internal/service"
)

// PaymentHandler handles checkout creation and provider webhooks.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreateCheckoutRequest is the HTTP request for opening a checkout session.
type CreateCheckoutRequest struct {
	TouristID string `json:"tourist_id" binding:"required"`
}

// CreateCheckout handles POST /v1/trips/:id/checkout
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "validation"})
		return
	}

	checkout, err := h.paymentService.CreateCheckout(c.Request.Context(), c.Param("id"), req.TouristID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, gin.H{
		"session_id":   checkout.SessionID,
		"checkout_url": checkout.URL,
		"amount":       checkout.Amount,
	})
}

// Webhook handles POST /v1/payments/webhook. The signature is verified
// over the raw body before any parsing. Every event that clears the
// signature check is acknowledged with 200 so the provider does not
// retry forever; the result reason records why an event was skipped.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Kind: "validation"})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if err := h.paymentService.VerifySignature(body, signature); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"processed": result.Processed,
		"reason":    result.Reason,
	})
}
