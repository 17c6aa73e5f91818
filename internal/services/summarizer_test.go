package services

import (
	"context"
	"testing"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryResponse = `{"title":"Post A","key_points":["p1","p2","p3"],
"summary":"A brief recap.","topics":["ai"],"sentiment":"neutral","relevance_score":0.8}`

func TestSummarizeComputesAndCaches(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	item := seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	provider := &fakeProvider{responses: []string{summaryResponse}}
	svc := NewSummarizerService(db, newTestGateway(t, db, provider))

	summary, err := svc.Summarize(context.Background(), item.ID, models.SummaryTypeStandard)
	require.NoError(t, err)
	assert.Equal(t, "A brief recap.", summary.Summary)
	assert.Equal(t, models.StringList{"p1", "p2", "p3"}, summary.KeyPoints)
	assert.Equal(t, "neutral", summary.Metadata.GetString("sentiment", ""))

	// Second request is served from the cache.
	again, err := svc.Summarize(context.Background(), item.ID, models.SummaryTypeStandard)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, again.ID)
	assert.Equal(t, 1, provider.calls)
}

func TestCachedSummaryNeverCallsModel(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	item := seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	provider := &fakeProvider{}
	svc := NewSummarizerService(db, newTestGateway(t, db, provider))

	assert.Nil(t, svc.CachedSummary(context.Background(), item.ID, models.SummaryTypeBrief))
	assert.Equal(t, 0, provider.calls)
}

func TestSummarizeUnknownTypeFallsBackToStandard(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	item := seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	provider := &fakeProvider{responses: []string{summaryResponse}}
	svc := NewSummarizerService(db, newTestGateway(t, db, provider))

	summary, err := svc.Summarize(context.Background(), item.ID, "exhaustive")
	require.NoError(t, err)
	assert.Equal(t, models.SummaryTypeStandard, summary.SummaryType)
}

func TestSummarizeBatchSkipsFailuresAbortsOnRateLimit(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	a := seedContentItem(t, db, 1, "A", "https://a.example/1")
	b := seedContentItem(t, db, 1, "B", "https://a.example/2")
	c := seedContentItem(t, db, 1, "C", "https://a.example/3")

	// First item parses, second returns prose the decoder rejects, third
	// parses again. The bad item is skipped, not fatal.
	provider := &fakeProvider{responses: []string{summaryResponse, "no json here", summaryResponse}}
	gw := newTestGateway(t, db, provider)
	svc := NewSummarizerService(db, gw)

	summaries, err := svc.SummarizeBatch(context.Background(), 1,
		[]uint{a.ID, b.ID, c.ID}, models.SummaryTypeBrief)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	// A tripped rate limit aborts the remainder.
	require.NoError(t, db.Model(&models.LLMRateLimit{}).
		Where("user_id = ? AND limit_type = ?", 1, models.LimitTypeMinute).
		Updates(map[string]interface{}{
			"current_count": 30,
			"reset_at":      time.Now().UTC().Add(time.Minute),
		}).Error)
	d := seedContentItem(t, db, 1, "D", "https://a.example/4")
	e := seedContentItem(t, db, 1, "E", "https://a.example/5")

	summaries, err = svc.SummarizeBatch(context.Background(), 1,
		[]uint{d.ID, e.ID}, models.SummaryTypeBrief)
	require.Error(t, err)
	rle := &RateLimitExceededError{}
	assert.ErrorAs(t, err, &rle)
	assert.Empty(t, summaries)
}

func TestSummarizeRecentSkipsAlreadySummarized(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	done := seedContentItem(t, db, 1, "Done", "https://a.example/1")
	seedContentItem(t, db, 1, "Pending", "https://a.example/2")

	require.NoError(t, db.Create(&models.ContentSummary{
		ContentItemID: done.ID, UserID: 1,
		SummaryType: models.SummaryTypeBrief, Summary: "cached",
	}).Error)

	provider := &fakeProvider{responses: []string{summaryResponse}}
	svc := NewSummarizerService(db, newTestGateway(t, db, provider))

	summaries, err := svc.SummarizeRecent(context.Background(), 1, 7, models.SummaryTypeBrief)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
	assert.Equal(t, 1, provider.calls, "only the unsummarized item reaches the model")
}
