package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/database"
	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "test",
		DefaultModel:      "gpt-4o-mini",
		LLMMinuteLimit:    30,
		LLMDayLimit:       1000,
		EmailFrom:         "CreatorPulse <noreply@creatorpulse.test>",
		EmailDailyCap:     450,
		EmailWorkspaceCap: 1950,
		BaseURL:           "http://localhost:8080",
	}
}

func seedUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	user := &models.User{
		ID:       id,
		Email:    fmt.Sprintf("user%d@example.com", id),
		Name:     "Test User",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedContentItem(t *testing.T, db *gorm.DB, userID uint, title, url string) *models.ContentItem {
	t.Helper()
	item := &models.ContentItem{
		SourceID:    1,
		UserID:      userID,
		ContentType: "article",
		Title:       title,
		Content:     "Full text of " + title,
		URL:         url,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

// fakeProvider replays canned responses (or errors) in order. The last entry
// repeats once the script runs out.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
	lastReq   *llm.ChatRequest
}

func (f *fakeProvider) ChatCompletion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	i := f.calls
	f.calls++
	f.lastReq = req

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := "{}"
	if len(f.responses) > 0 {
		if i >= len(f.responses) {
			i = len(f.responses) - 1
		}
		text = f.responses[i]
	}
	return &llm.ChatResponse{
		Text:  text,
		Usage: llm.Usage{TotalTokens: 30, PromptTokens: 20, CompletionTokens: 10},
	}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func newTestGateway(t *testing.T, db *gorm.DB, provider llm.Provider) *GatewayService {
	t.Helper()
	return NewGatewayService(db, testConfig(), provider, nil)
}
