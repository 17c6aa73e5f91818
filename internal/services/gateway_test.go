package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletionRecordsUsage(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	provider := &fakeProvider{responses: []string{"hello"}}
	gw := newTestGateway(t, db, provider)

	resp, err := gw.ChatCompletion(context.Background(), &ChatRequest{
		UserID:      1,
		ServiceName: "trend_detector",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "gpt-4o-mini", provider.lastReq.Model, "empty model falls back to the default")

	var logRow models.LLMUsageLog
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, models.LLMStatusSuccess, logRow.Status)
	assert.Equal(t, "trend_detector", logRow.ServiceName)
	assert.Equal(t, 30, logRow.TotalTokens)
	assert.Equal(t, "trend_detector", logRow.Metadata.GetString("service_name", ""))

	var counters []models.LLMRateLimit
	require.NoError(t, db.Where("user_id = ?", 1).Find(&counters).Error)
	require.Len(t, counters, 2, "minute and day windows are created lazily")
	for _, c := range counters {
		assert.Equal(t, 1, c.CurrentCount)
	}
}

func TestChatCompletionMinuteLimit(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	provider := &fakeProvider{responses: []string{"ok"}}
	gw := newTestGateway(t, db, provider)
	gw.cfg.LLMMinuteLimit = 2

	ctx := context.Background()
	req := func() *ChatRequest {
		return &ChatRequest{UserID: 1, ServiceName: "s", Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}}
	}

	_, err := gw.ChatCompletion(ctx, req())
	require.NoError(t, err)
	_, err = gw.ChatCompletion(ctx, req())
	require.NoError(t, err)

	_, err = gw.ChatCompletion(ctx, req())
	rateErr := &RateLimitExceededError{}
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, models.LimitTypeMinute, rateErr.LimitType)
	assert.Equal(t, 2, rateErr.LimitValue)
	assert.Equal(t, 2, provider.calls, "the provider is never reached once the window is full")

	// The refusal itself is recorded.
	var refused int64
	require.NoError(t, db.Model(&models.LLMUsageLog{}).
		Where("status = ?", models.LLMStatusRateLimited).Count(&refused).Error)
	assert.EqualValues(t, 1, refused)
}

func TestChatCompletionExpiredWindowResets(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	gw := newTestGateway(t, db, &fakeProvider{})
	gw.cfg.LLMMinuteLimit = 2

	// A full window whose reset has already passed must not block.
	require.NoError(t, db.Create(&models.LLMRateLimit{
		UserID:       1,
		LimitType:    models.LimitTypeMinute,
		CurrentCount: 2,
		LimitValue:   2,
		ResetAt:      time.Now().UTC().Add(-time.Minute),
	}).Error)

	_, err := gw.ChatCompletion(context.Background(), &ChatRequest{
		UserID: 1, ServiceName: "s", Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	require.NoError(t, err)

	var row models.LLMRateLimit
	require.NoError(t, db.Where("user_id = ? AND limit_type = ?", 1, models.LimitTypeMinute).First(&row).Error)
	assert.Equal(t, 1, row.CurrentCount, "expired window restarts at 1")
	assert.True(t, row.ResetAt.After(time.Now().UTC()))
}

func TestChatCompletionProviderError(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	gw := newTestGateway(t, db, &fakeProvider{errs: []error{errors.New("upstream 500")}})

	_, err := gw.ChatCompletion(context.Background(), &ChatRequest{
		UserID: 1, ServiceName: "s", Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	require.Error(t, err)

	var logRow models.LLMUsageLog
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, models.LLMStatusError, logRow.Status)
	assert.Contains(t, logRow.ErrorMessage, "upstream 500")

	// Failed calls do not consume quota.
	var counters int64
	require.NoError(t, db.Model(&models.LLMRateLimit{}).Count(&counters).Error)
	assert.EqualValues(t, 0, counters)
}

func TestNextResetAlignment(t *testing.T) {
	now := time.Date(2026, 8, 24, 13, 37, 42, 0, time.UTC)

	assert.Equal(t,
		time.Date(2026, 8, 24, 13, 38, 0, 0, time.UTC),
		NextReset(models.LimitTypeMinute, now))
	assert.Equal(t,
		time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC),
		NextReset(models.LimitTypeHour, now))
	assert.Equal(t,
		time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		NextReset(models.LimitTypeDay, now))
	assert.Equal(t,
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		NextReset(models.LimitTypeMonth, now))

	// End-of-year day and month rollovers
	eve := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextReset(models.LimitTypeDay, eve))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextReset(models.LimitTypeMonth, eve))
}

func TestGetRateLimitStatusDoesNotCreateRows(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	gw := newTestGateway(t, db, &fakeProvider{})

	statuses, err := gw.GetRateLimitStatus(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.Equal(t, 0, s.CurrentCount)
		assert.Equal(t, s.LimitValue, s.Remaining)
		assert.True(t, s.ResetAt.After(time.Now().UTC().Add(-time.Second)))
	}

	var rows int64
	require.NoError(t, db.Model(&models.LLMRateLimit{}).Count(&rows).Error)
	assert.EqualValues(t, 0, rows, "reads never create counter rows")
}

func TestGetUsageSummary(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	gw := newTestGateway(t, db, &fakeProvider{})

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.LLMUsageLog{
			UserID: 1, ServiceName: "s", Model: "gpt-4o-mini",
			Status: models.LLMStatusSuccess, TotalTokens: 100, PromptTokens: 60, CompletionTokens: 40,
		}).Error)
	}
	// Errors are excluded from the success aggregates.
	require.NoError(t, db.Create(&models.LLMUsageLog{
		UserID: 1, ServiceName: "s", Model: "gpt-4o-mini", Status: models.LLMStatusError,
	}).Error)

	summary, err := gw.GetUsageSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.CallsToday)
	assert.EqualValues(t, 300, summary.TokensToday)
	assert.EqualValues(t, 3, summary.CallsThisMonth)
	assert.Len(t, summary.RateLimits, 2)
	assert.Greater(t, summary.EstimatedCostUSD, 0.0)
}

func TestGetUsageStatsPerService(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	gw := newTestGateway(t, db, &fakeProvider{})

	for _, svc := range []string{"trend_detector", "trend_detector", "draft_generator"} {
		require.NoError(t, db.Create(&models.LLMUsageLog{
			UserID: 1, ServiceName: svc, Model: "m",
			Status: models.LLMStatusSuccess, TotalTokens: 10, DurationMS: 100,
		}).Error)
	}

	stats, err := gw.GetUsageStats(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalCalls)
	assert.EqualValues(t, 30, stats.TotalTokens)
	assert.EqualValues(t, 2, stats.CallsPerService["trend_detector"])
	assert.EqualValues(t, 1, stats.CallsPerService["draft_generator"])
}
