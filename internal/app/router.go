package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"guidetrip/internal/handler"
	"guidetrip/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler    *handler.TripHandler
	GuideHandler   *handler.GuideHandler
	CallHandler    *handler.CallHandler
	PaymentHandler *handler.PaymentHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Webhook-Signature"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Trip lifecycle routes.
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("", deps.TripHandler.ListTrips)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.GET("/:id/guides", deps.TripHandler.ListCandidateGuides)
			trips.POST("/:id/select-guide", deps.TripHandler.SelectGuide)
			trips.POST("/:id/reopen-selection", deps.TripHandler.ReopenSelection)
			trips.POST("/:id/cancel", deps.TripHandler.CancelTrip)

			// Guide decisions.
			trips.POST("/:id/accept", deps.GuideHandler.AcceptTrip)
			trips.POST("/:id/reject", deps.GuideHandler.RejectTrip)
			trips.POST("/:id/complete", deps.GuideHandler.CompleteTrip)

			// Post-confirmation change proposals.
			trips.POST("/:id/proposal", deps.TripHandler.ProposeChange)
			trips.POST("/:id/proposal/accept", deps.TripHandler.AcceptProposal)
			trips.POST("/:id/proposal/reject", deps.TripHandler.RejectProposal)

			// Negotiation call and checkout.
			trips.POST("/:id/call", deps.CallHandler.InitiateCall)
			trips.POST("/:id/checkout", deps.PaymentHandler.CreateCheckout)
		}

		// Call session routes.
		calls := v1.Group("/calls")
		{
			calls.GET("/:id", deps.CallHandler.GetCall)
			calls.POST("/:id/join", deps.CallHandler.JoinCall)
			calls.POST("/:id/end", deps.CallHandler.EndCall)
		}

		// Payment provider webhook.
		payments := v1.Group("/payments")
		{
			payments.POST("/webhook", deps.PaymentHandler.Webhook)
		}
	}

	return router
}
