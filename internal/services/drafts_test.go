package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const draftResponse = `{"title":"Weekly Pulse","sections":[
  {"type":"intro","content":"Welcome back."},
  {"type":"topic","title":"AI agents","content":"Everyone is shipping agents."},
  {"type":"conclusion","content":"See you next week."}
]}`

func newTestDrafts(t *testing.T, db *gorm.DB, provider *fakeProvider) *DraftService {
	t.Helper()
	gw := newTestGateway(t, db, provider)
	prefs := NewPreferencesService(db)
	summarizer := NewSummarizerService(db, gw)
	trends := NewTrendService(db, gw, summarizer)
	feedback := NewFeedbackService(db, gw)
	return NewDraftService(db, testConfig(), gw, prefs, trends, summarizer, feedback, nil)
}

func seedPlaceholderDraft(t *testing.T, db *gorm.DB, userID uint) *models.Draft {
	t.Helper()
	draft := &models.Draft{
		UserID:   userID,
		Status:   models.DraftStatusGenerating,
		Sections: models.DraftSections{},
		Metadata: models.JSONMap{},
	}
	require.NoError(t, db.Create(draft).Error)
	return draft
}

func trendJSONFor(itemID uint) string {
	return fmt.Sprintf(
		`{"trends":[{"topic":"AI agents","score":0.9,"rationale":"lots of coverage","supporting_content_ids":[%d]}]}`,
		itemID)
}

func TestMaterializeFullPipeline(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	item := seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	provider := &fakeProvider{responses: []string{trendJSONFor(item.ID), summaryResponse, draftResponse}}
	svc := newTestDrafts(t, db, provider)
	draft := seedPlaceholderDraft(t, db, 1)

	svc.Materialize(context.Background(), draft.ID, GenerateOptions{})

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.Equal(t, models.DraftStatusReady, reloaded.Status)
	assert.Equal(t, "Weekly Pulse", reloaded.Title)
	require.Len(t, reloaded.Sections, 3)
	assert.Equal(t, models.SectionTypeIntro, reloaded.Sections[0].Type)
	assert.Equal(t, models.SectionTypeConclusion, reloaded.Sections[2].Type)
	assert.NotEmpty(t, reloaded.Sections[0].ID, "sections get stable IDs for feedback")
	require.NotNil(t, reloaded.GeneratedAt)

	// No analyzed voice profile exists, so the tone path was used.
	assert.False(t, reloaded.Metadata.GetBool("voice_profile_used", true))
	assert.Equal(t, 3, provider.calls, "trend detection, one summary, one generation")
}

func TestMaterializeNoTrendsFallback(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)

	provider := &fakeProvider{}
	svc := newTestDrafts(t, db, provider)
	draft := seedPlaceholderDraft(t, db, 1)

	svc.Materialize(context.Background(), draft.ID, GenerateOptions{DaysBack: 3})

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.Equal(t, models.DraftStatusReady, reloaded.Status, "no trends is a valid terminal outcome")
	require.Len(t, reloaded.Sections, 2)
	assert.Equal(t, models.SectionTypeIntro, reloaded.Sections[0].Type)
	assert.Equal(t, models.SectionTypeConclusion, reloaded.Sections[1].Type)
	assert.True(t, reloaded.Metadata.GetBool("no_trends", false))
	assert.True(t, reloaded.Metadata.GetBool("fallback", false))
	assert.Equal(t, 0, provider.calls, "no content means no model calls at all")
}

func TestMaterializeProviderErrorFallsBackToNoTrends(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	// The trend call fails outright; the draft still lands as the fallback.
	provider := &fakeProvider{errs: []error{errors.New("provider 500")}}
	svc := newTestDrafts(t, db, provider)
	draft := seedPlaceholderDraft(t, db, 1)

	svc.Materialize(context.Background(), draft.ID, GenerateOptions{})

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.Equal(t, models.DraftStatusReady, reloaded.Status)
	require.Len(t, reloaded.Sections, 2)
	assert.True(t, reloaded.Metadata.GetBool("no_trends", false))
	assert.True(t, reloaded.Metadata.GetBool("fallback", false))
	assert.Equal(t, 1, provider.calls, "only the failed trend call reaches the provider")
}

func TestMaterializeUnparseableDraftFails(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	item := seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	provider := &fakeProvider{responses: []string{trendJSONFor(item.ID), summaryResponse, "that went well!"}}
	svc := newTestDrafts(t, db, provider)
	draft := seedPlaceholderDraft(t, db, 1)

	svc.Materialize(context.Background(), draft.ID, GenerateOptions{})

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.Equal(t, models.DraftStatusFailed, reloaded.Status)
	assert.Equal(t, "generation_error", reloaded.Metadata.GetString("error_type", ""))
	assert.Contains(t, reloaded.Metadata.GetString("error", ""), "unparseable")
	assert.NotEmpty(t, reloaded.Metadata.GetString("traceback", ""))
}

func TestMaterializeRateLimitedFails(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	seedContentItem(t, db, 1, "Post A", "https://a.example/1")

	svc := newTestDrafts(t, db, &fakeProvider{})
	// Exhausted minute window with a future reset.
	require.NoError(t, db.Create(&models.LLMRateLimit{
		UserID: 1, LimitType: models.LimitTypeMinute,
		CurrentCount: 30, LimitValue: 30,
		ResetAt: time.Now().UTC().Add(time.Minute),
	}).Error)
	draft := seedPlaceholderDraft(t, db, 1)

	svc.Materialize(context.Background(), draft.ID, GenerateOptions{})

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.Equal(t, models.DraftStatusFailed, reloaded.Status)
	assert.Equal(t, "rate_limit", reloaded.Metadata.GetString("error_type", ""))
}

func TestGenerateReturnsPlaceholder(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := newTestDrafts(t, db, &fakeProvider{})

	draft, err := svc.Generate(context.Background(), 1, GenerateOptions{})
	require.NoError(t, err)
	assert.NotZero(t, draft.ID)
	assert.Equal(t, models.DraftStatusGenerating, draft.Status)
}

func TestRegenerateGuardsInFlightGeneration(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := newTestDrafts(t, db, &fakeProvider{})
	draft := seedPlaceholderDraft(t, db, 1)

	_, err := svc.Regenerate(context.Background(), 1, draft.ID, GenerateOptions{})
	assert.ErrorIs(t, err, ErrDraftBusy)

	// A failed draft can be regenerated in place.
	require.NoError(t, db.Model(draft).Update("status", models.DraftStatusFailed).Error)
	regenerated, err := svc.Regenerate(context.Background(), 1, draft.ID, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, regenerated.ID, "regeneration reuses the same row")
	assert.Equal(t, models.DraftStatusGenerating, regenerated.Status)
}

func TestUpdateSectionsMovesToEditing(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := newTestDrafts(t, db, &fakeProvider{})
	draft := seedPlaceholderDraft(t, db, 1)
	require.NoError(t, db.Model(draft).Update("status", models.DraftStatusReady).Error)

	updated, err := svc.UpdateSections(context.Background(), 1, draft.ID, "New Title", models.DraftSections{
		{Type: models.SectionTypeIntro, Content: "rewritten"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusEditing, updated.Status)
	assert.Equal(t, "New Title", updated.Title)
	require.Len(t, updated.Sections, 1)
	assert.NotEmpty(t, updated.Sections[0].ID, "new sections are assigned IDs")

	// Generating drafts cannot be edited.
	require.NoError(t, db.Model(draft).Update("status", models.DraftStatusGenerating).Error)
	_, err = svc.UpdateSections(context.Background(), 1, draft.ID, "", nil)
	require.Error(t, err)
}

func TestMarkPublished(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := newTestDrafts(t, db, &fakeProvider{})
	draft := seedPlaceholderDraft(t, db, 1)

	_, err := svc.MarkPublished(context.Background(), 1, draft.ID)
	require.Error(t, err, "generating drafts cannot be published")

	require.NoError(t, db.Model(draft).Update("status", models.DraftStatusReady).Error)
	published, err := svc.MarkPublished(context.Background(), 1, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
}

func TestDraftAccessScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	seedUser(t, db, 2)
	svc := newTestDrafts(t, db, &fakeProvider{})
	draft := seedPlaceholderDraft(t, db, 1)

	_, err := svc.Get(context.Background(), 2, draft.ID)
	require.Error(t, err)

	drafts, err := svc.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestDraftDebug(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := newTestDrafts(t, db, &fakeProvider{})

	info, err := svc.Debug(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, info.CanGenerate)

	seedContentItem(t, db, 1, "Post A", "https://a.example/1")
	info, err = svc.Debug(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, info.CanGenerate)
	assert.EqualValues(t, 1, info.ContentItems7d)
}
