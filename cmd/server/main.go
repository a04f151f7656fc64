package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"guidetrip/internal/app"
	"guidetrip/internal/config"
	"guidetrip/internal/handler"
	internalRedis "guidetrip/internal/redis"
	"guidetrip/internal/repository/postgres"
	"guidetrip/internal/service"
	"guidetrip/migrations"
)

func main() {
	// Load .env if present; real environments set variables directly.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using environment")
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	if err := runMigrations(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Println("Migrations applied")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server, callService, drainer := wireServer(db, redisClient, nrApp, cfg)

	// Reschedule auto-end timers for calls that were live at last shutdown.
	if err := callService.RecoverPendingTimers(ctx); err != nil {
		log.Printf("failed to recover pending call timers: %v", err)
	}

	// Drain the outbox until shutdown.
	drainCtx, drainCancel := context.WithCancel(context.Background())
	defer drainCancel()
	go drainer.Run(drainCtx)

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations applies the embedded goose migrations.
func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

// wireServer wires all dependencies and returns the HTTP server along
// with the components main has to drive directly.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *service.CallService, *service.OutboxDrainer) {
	// Initialize Redis stores.
	cacheStore := internalRedis.NewCacheStore(redisClient)
	emitter := internalRedis.NewEmitter(redisClient)

	// Initialize repositories.
	tripRepo := postgres.NewTripRepository(db)
	callRepo := postgres.NewCallRepository(db)
	guideRepo := postgres.NewGuideRepository(db)
	placeRepo := postgres.NewPlaceRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Initialize services.
	notificationService := service.NewNotificationService()
	auditService := service.NewAuditService()
	pricingService := service.NewPricingService(placeRepo, cfg.Payment.ServiceFeeRate)
	tokenIssuer := service.NewCallTokenIssuer(cfg.Call.TokenSecret)
	callService := service.NewCallService(callRepo, tokenIssuer, cfg.Call.MaxDuration)
	tripService := service.NewTripService(tripRepo, guideRepo, placeRepo, userRepo, callService, pricingService, cacheStore, cfg.Trip.CancelLeadTime)
	provider := service.NewMockPaymentProvider()
	paymentService := service.NewPaymentService(tripRepo, provider, cfg.Payment.WebhookSecret, cfg.Payment.Currency)
	drainer := service.NewOutboxDrainer(outboxRepo, notificationService, auditService, emitter)

	// Expired calls advance the owning trip the same way a manual end does.
	callService.SetTimeoutHandler(tripService.HandleCallTimeout)

	// Initialize handlers.
	tripHandler := handler.NewTripHandler(tripService)
	guideHandler := handler.NewGuideHandler(tripService)
	callHandler := handler.NewCallHandler(tripService, callService)
	paymentHandler := handler.NewPaymentHandler(paymentService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:    tripHandler,
		GuideHandler:   guideHandler,
		CallHandler:    callHandler,
		PaymentHandler: paymentHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	// Create HTTP server.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return server, callService, drainer
}
