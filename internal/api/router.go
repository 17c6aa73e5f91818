package api

import (
	"github.com/creatorpulse/creatorpulse-api/internal/api/handlers"
	apimiddleware "github.com/creatorpulse/creatorpulse-api/internal/api/middleware"
	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the constructed services the router wires into handlers.
type Deps struct {
	DB           *gorm.DB
	Config       *config.Config
	Version      string
	Orchestrator *crawler.Orchestrator
	Sources      *services.SourceService
	Drafts       *services.DraftService
	Voice        *services.VoiceService
	Feedback     *services.FeedbackService
	Gateway      *services.GatewayService
	Email        *services.EmailService
	Preferences  *services.PreferencesService
}

func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())
	router.Use(apimiddleware.SentryMiddleware())
	router.Use(apimiddleware.RequestTracking())
	router.Use(apimiddleware.CORS())

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Version)
	router.GET("/health", healthHandler.HealthCheck)

	emailHandler := handlers.NewEmailHandler(deps.Email, deps.Config)

	// Public endpoints reached from inside delivered emails. Token-scoped,
	// no session.
	router.GET("/unsubscribe", emailHandler.UnsubscribePage)
	router.GET("/api/email/track/open", emailHandler.TrackOpen)
	router.GET("/api/email/track/click", emailHandler.TrackClick)

	auth := apimiddleware.NoAuth()
	if deps.Config.IsGatewayMode() {
		auth = apimiddleware.GatewayAuth()
	}

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		sourceHandler := handlers.NewSourceHandler(deps.Sources, deps.Orchestrator)
		v1.GET("/sources", sourceHandler.List)
		v1.POST("/sources", sourceHandler.Create)
		v1.GET("/sources/kinds", sourceHandler.Kinds)
		v1.GET("/sources/kinds/:kind/schema", sourceHandler.Schema)
		v1.POST("/sources/reactivate", sourceHandler.ReactivateAll)
		v1.GET("/sources/:id", sourceHandler.Get)
		v1.PUT("/sources/:id", sourceHandler.Update)
		v1.DELETE("/sources/:id", sourceHandler.Delete)
		v1.POST("/sources/:id/sync", sourceHandler.Sync)
		v1.POST("/sources/:id/reactivate", sourceHandler.Reactivate)

		crawlHandler := handlers.NewCrawlHandler(deps.Orchestrator)
		v1.POST("/crawl", crawlHandler.Trigger)
		v1.GET("/crawl/status", crawlHandler.Status)

		draftHandler := handlers.NewDraftHandler(deps.Drafts, deps.Email)
		v1.POST("/drafts/generate", draftHandler.Generate)
		v1.GET("/drafts", draftHandler.List)
		v1.GET("/drafts/debug", draftHandler.Debug)
		v1.GET("/drafts/:id", draftHandler.Get)
		v1.PUT("/drafts/:id", draftHandler.Update)
		v1.POST("/drafts/:id/regenerate", draftHandler.Regenerate)
		v1.POST("/drafts/:id/publish", draftHandler.Publish)
		v1.DELETE("/drafts/:id", draftHandler.Delete)

		voiceHandler := handlers.NewVoiceHandler(deps.Voice)
		v1.POST("/voice/samples", voiceHandler.AddSample)
		v1.GET("/voice/samples", voiceHandler.ListSamples)
		v1.DELETE("/voice/samples/:id", voiceHandler.DeleteSample)
		v1.POST("/voice/analyze", voiceHandler.Analyze)
		v1.GET("/voice/profile", voiceHandler.Profile)

		feedbackHandler := handlers.NewFeedbackHandler(deps.Feedback)
		v1.POST("/feedback", feedbackHandler.Submit)
		v1.GET("/feedback", feedbackHandler.List)
		v1.GET("/feedback/stats", feedbackHandler.Stats)
		v1.GET("/feedback/insights", feedbackHandler.Insights)
		v1.PUT("/feedback/:id", feedbackHandler.Update)
		v1.DELETE("/feedback/:id", feedbackHandler.Delete)

		usageHandler := handlers.NewUsageHandler(deps.Gateway)
		v1.GET("/llm/usage/summary", usageHandler.Summary)
		v1.GET("/llm/usage/stats", usageHandler.Stats)
		v1.GET("/llm/usage/logs", usageHandler.Logs)
		v1.GET("/llm/rate-limits", usageHandler.RateLimits)

		v1.POST("/email/send", emailHandler.Send)
		v1.GET("/email/rate-limit", emailHandler.RateLimit)
		v1.GET("/email/logs", emailHandler.Logs)
		v1.GET("/email/stats", emailHandler.Stats)
		v1.GET("/email/recipients", emailHandler.ListRecipients)
		v1.POST("/email/recipients", emailHandler.AddRecipient)
		v1.DELETE("/email/recipients/:id", emailHandler.DeleteRecipient)
		v1.POST("/email/unsubscribes", emailHandler.Unsubscribe)
		v1.GET("/email/unsubscribes/check", emailHandler.CheckUnsubscribed)
		v1.GET("/email/tracking/:id", emailHandler.TrackingStats)

		preferencesHandler := handlers.NewPreferencesHandler(deps.Preferences)
		v1.GET("/preferences", preferencesHandler.Get)
		v1.PATCH("/preferences", preferencesHandler.Patch)
		v1.POST("/preferences/reset", preferencesHandler.Reset)
	}

	return router
}
