package main

import (
	"context"
	"log"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/api"
	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/connectors"
	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/creatorpulse/creatorpulse-api/internal/database"
	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/metrics"
	"github.com/creatorpulse/creatorpulse-api/internal/observability"
	"github.com/creatorpulse/creatorpulse-api/internal/scheduler"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const (
	sentryFlushTimeout    = 2 * time.Second
	environmentProduction = "production"
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "creatorpulse-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			Debug:            cfg.Environment != environmentProduction,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	// Langfuse tracing for LLM calls
	observability.InitializeLangfuse(ctx, cfg)

	// Database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to run migrations:", err)
	}

	// CloudWatch metrics (no-op outside production)
	metricsClient, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Printf("CloudWatch metrics unavailable: %v", err)
	}

	// LLM provider
	provider, err := llm.NewProvider(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to initialize LLM provider:", err)
	}

	// Services
	registry := connectors.DefaultRegistry()
	orchestrator := crawler.NewOrchestrator(db, registry)
	gateway := services.NewGatewayService(db, cfg, provider, metricsClient)
	preferences := services.NewPreferencesService(db)
	summarizer := services.NewSummarizerService(db, gateway)
	trends := services.NewTrendService(db, gateway, summarizer)
	voice := services.NewVoiceService(db, gateway)
	feedback := services.NewFeedbackService(db, gateway)
	email := services.NewEmailService(db, cfg, preferences, metricsClient)
	drafts := services.NewDraftService(db, cfg, gateway, preferences, trends, summarizer, feedback, metricsClient)
	sources := services.NewSourceService(db, registry)

	// Background scheduling: crawl sweeps and per-user draft jobs
	sched := scheduler.New(db, orchestrator, drafts, preferences, email)
	if err := sched.Start(); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start scheduler:", err)
	}
	defer sched.Stop()

	if cfg.Environment == environmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.SetupRouter(api.Deps{
		DB:           db,
		Config:       cfg,
		Version:      releaseVersion,
		Orchestrator: orchestrator,
		Sources:      sources,
		Drafts:       drafts,
		Voice:        voice,
		Feedback:     feedback,
		Gateway:      gateway,
		Email:        email,
		Preferences:  preferences,
	})

	log.Printf("🚀 Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}
