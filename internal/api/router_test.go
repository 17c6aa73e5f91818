package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/connectors"
	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/creatorpulse/creatorpulse-api/internal/database"
	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubProvider struct{}

func (stubProvider) ChatCompletion(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Text: "{}"}, nil
}
func (stubProvider) Name() string { return "stub" }

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	registry := connectors.DefaultRegistry()
	gateway := services.NewGatewayService(db, cfg, stubProvider{}, nil)
	preferences := services.NewPreferencesService(db)
	summarizer := services.NewSummarizerService(db, gateway)
	trends := services.NewTrendService(db, gateway, summarizer)
	feedback := services.NewFeedbackService(db, gateway)
	drafts := services.NewDraftService(db, cfg, gateway, preferences, trends, summarizer, feedback, nil)

	router := SetupRouter(Deps{
		DB:           db,
		Config:       cfg,
		Version:      "test",
		Orchestrator: crawler.NewOrchestrator(db, registry),
		Sources:      services.NewSourceService(db, registry),
		Drafts:       drafts,
		Voice:        services.NewVoiceService(db, gateway),
		Feedback:     feedback,
		Gateway:      gateway,
		Email:        services.NewEmailService(db, cfg, preferences, nil),
		Preferences:  preferences,
	})
	return router, db
}

func testRouterConfig() *config.Config {
	return &config.Config{
		Environment:    "test",
		AuthMode:       "none",
		DefaultModel:   "gpt-4o-mini",
		LLMMinuteLimit: 30,
		LLMDayLimit:    1000,
		EmailDailyCap:  450,
		BaseURL:        "http://localhost:8080",
		AWSRegion:      "us-east-1",
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, testRouterConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestSourceKindsWithDefaultUser(t *testing.T) {
	router, db := newTestRouter(t, testRouterConfig())
	require.NoError(t, db.Create(&models.User{ID: 1, Email: "u@example.com", IsActive: true}).Error)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sources/kinds", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Kinds []string `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Kinds, "rss")
	assert.Contains(t, body.Kinds, "youtube")
}

func TestGatewayModeRequiresUserHeader(t *testing.T) {
	cfg := testRouterConfig()
	cfg.AuthMode = "gateway"
	router, db := newTestRouter(t, cfg)
	require.NoError(t, db.Create(&models.User{ID: 7, Email: "u@example.com", IsActive: true}).Error)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/preferences", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/preferences", nil)
	req.Header.Set("X-User-ID", "7")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnknownDraftReturns404(t *testing.T) {
	router, db := newTestRouter(t, testRouterConfig())
	require.NoError(t, db.Create(&models.User{ID: 1, Email: "u@example.com", IsActive: true}).Error)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/drafts/999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrackingPixelAlwaysSucceeds(t *testing.T) {
	router, _ := newTestRouter(t, testRouterConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/email/track/open?d=1&r=unknown-token", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}
