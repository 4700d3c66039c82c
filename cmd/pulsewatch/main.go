package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pulsewatch/pulsewatch/internal/bootstrap"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/engine"
	"github.com/pulsewatch/pulsewatch/internal/escalation"
	"github.com/pulsewatch/pulsewatch/internal/handlers"
	"github.com/pulsewatch/pulsewatch/internal/incidents"
	"github.com/pulsewatch/pulsewatch/internal/jobs"
	"github.com/pulsewatch/pulsewatch/internal/middleware"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/routing"
	"gorm.io/gorm/logger"
)

var version = "dev"

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting PulseWatch alert engine (%s)...", version)

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/webhook/*",
			"/ws/*",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Ingest key authentication guards the webhook surface
	ingestAuth := middleware.NewIngestAuthMiddleware(&middleware.IngestAuthConfig{Keys: cfg.IngestAPIKeys})
	if ingestAuth.Enabled() {
		log.Printf("Ingest API key authentication enabled (%d keys)", len(cfg.IngestAPIKeys))
	} else {
		log.Printf("Ingest API key authentication disabled (set INGEST_API_KEYS to enable)")
	}

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize default database records
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	// Seed organizations and alerting config from the bootstrap file
	if err := bootstrap.Run(database.DB, cfg.BootstrapFile); err != nil {
		log.Fatalf("Failed to apply bootstrap file: %v", err)
	}

	db := database.DB

	// Notification registry: one notifier per destination type
	emailNotifier := notify.NewEmailNotifier()
	webhookNotifier := notify.NewWebhookNotifier()
	notifiers := notify.NewRegistry()
	notifiers.Register(database.DestinationSlack, notify.NewSlackNotifier())
	notifiers.Register(database.DestinationEmail, emailNotifier)
	notifiers.Register(database.DestinationWebhook, webhookNotifier)
	notifiers.Register(database.DestinationPagerDuty, webhookNotifier)
	notifiers.Register(database.DestinationTeams, webhookNotifier)
	notifiers.Register(database.DestinationDiscord, webhookNotifier)
	notifiers.Register(database.DestinationTelegram, webhookNotifier)
	notifiers.Register(database.DestinationOpsgenie, webhookNotifier)
	notifiers.Register(database.DestinationOnCall, notify.NewOnCallNotifier(db, emailNotifier))
	notifiers.Register(database.DestinationWorkflow, &notify.WorkflowNotifier{})
	log.Printf("Notification destination types registered: %s", strings.Join(notifiers.Types(), ", "))

	// Core pipeline and its surrounding services
	eng := engine.New(db)
	router := routing.New(db, notifiers)
	eng.SetSummaryRouter(router)

	scheduler := escalation.NewScheduler(db, notifiers, eng.Partitions)
	scheduler.SetEmailConfig(cfg.EmailConfig())
	oncall := escalation.NewOnCall(db)
	incidentManager := incidents.NewManager(db, eng.Partitions, scheduler)

	// Live event feed over websocket
	eventHub := handlers.NewEventHub()
	eng.SetEventSink(eventHub)

	// Initialize handlers
	httpHandler := handlers.NewHTTPHandler(eng, version)
	apiHandler := handlers.NewAPIHandler(db, eng, router, scheduler, oncall, incidentManager)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	eventHub.SetupRoutes(mux)

	// Ingest key auth applies to the webhook surface only; everything else
	// is covered by JWT.
	guardedWebhooks := ingestAuth.Wrap(mux)
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/webhook/") {
			guardedWebhooks.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Wrap all routes with request IDs, then CORS, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware() // Allow all origins
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(root)))

	// Start HTTP server in goroutine
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Start background jobs
	stop := make(chan struct{})
	go jobs.NewNotifierJob(db, eng, router, scheduler).Start(cfg.NotifyInterval, stop)
	go jobs.NewEscalationJob(scheduler).Start(cfg.EscalationInterval, stop)
	go jobs.NewRotationJob(db, oncall, eng.Partitions).Start(cfg.RotationInterval, stop)
	go jobs.NewRateLimitSweepJob(eng).Start(cfg.SweepInterval, stop)
	log.Printf("Background jobs started (notify %s, escalation %s, rotation %s, sweep %s)",
		cfg.NotifyInterval, cfg.EscalationInterval, cfg.RotationInterval, cfg.SweepInterval)

	log.Println("Engine is running! Press Ctrl+C to exit.")
	log.Printf("Alert webhook endpoint: http://localhost:%d/webhook/alerts", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}
