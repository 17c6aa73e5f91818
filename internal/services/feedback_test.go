package services

import (
	"context"
	"testing"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const insightsResponse = `{"liked_aspects":["concrete examples"],
"disliked_aspects":["long intros"],"recommendations":["lead with the main story"]}`

func seedReadyDraft(t *testing.T, db *gorm.DB, userID uint) *models.Draft {
	t.Helper()
	draft := &models.Draft{
		UserID:   userID,
		Status:   models.DraftStatusReady,
		Sections: models.DraftSections{},
		Metadata: models.JSONMap{},
	}
	require.NoError(t, db.Create(draft).Error)
	return draft
}

func TestSubmitFeedbackValidation(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	seedUser(t, db, 2)
	svc := NewFeedbackService(db, newTestGateway(t, db, &fakeProvider{}))
	draft := seedReadyDraft(t, db, 1)

	err := svc.Submit(context.Background(), &models.Feedback{
		UserID: 1, DraftID: draft.ID, Type: "meh",
	})
	require.Error(t, err, "only thumbs_up and thumbs_down are accepted")

	// Feedback cannot target another user's draft.
	err = svc.Submit(context.Background(), &models.Feedback{
		UserID: 2, DraftID: draft.ID, Type: models.FeedbackThumbsUp,
	})
	require.Error(t, err)

	require.NoError(t, svc.Submit(context.Background(), &models.Feedback{
		UserID: 1, DraftID: draft.ID, Type: models.FeedbackThumbsUp, Comment: "nice",
	}))
}

func TestFeedbackUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewFeedbackService(db, newTestGateway(t, db, &fakeProvider{}))
	draft := seedReadyDraft(t, db, 1)

	fb := &models.Feedback{UserID: 1, DraftID: draft.ID, Type: models.FeedbackThumbsUp}
	require.NoError(t, svc.Submit(context.Background(), fb))

	updated, err := svc.Update(context.Background(), 1, fb.ID, models.FeedbackThumbsDown, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackThumbsDown, updated.Type)
	assert.Equal(t, "changed my mind", updated.Comment)

	_, err = svc.Update(context.Background(), 1, fb.ID, "shrug", "")
	require.Error(t, err)

	require.NoError(t, svc.Delete(context.Background(), 1, fb.ID))
	err = svc.Delete(context.Background(), 1, fb.ID)
	require.Error(t, err)
}

func TestFeedbackStats(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewFeedbackService(db, newTestGateway(t, db, &fakeProvider{}))
	draft := seedReadyDraft(t, db, 1)

	for _, typ := range []string{
		models.FeedbackThumbsUp, models.FeedbackThumbsUp, models.FeedbackThumbsUp, models.FeedbackThumbsDown,
	} {
		require.NoError(t, svc.Submit(context.Background(), &models.Feedback{
			UserID: 1, DraftID: draft.ID, Type: typ,
		}))
	}

	stats, err := svc.Stats(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 3, stats.ThumbsUp)
	assert.EqualValues(t, 1, stats.ThumbsDown)
	assert.InDelta(t, 0.75, stats.PositiveRate, 0.001)
}

func TestGenerateInsightsThreshold(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	provider := &fakeProvider{responses: []string{insightsResponse}}
	svc := NewFeedbackService(db, newTestGateway(t, db, provider))
	draft := seedReadyDraft(t, db, 1)

	submit := func(typ, comment string) {
		require.NoError(t, svc.Submit(context.Background(), &models.Feedback{
			UserID: 1, DraftID: draft.ID, Type: typ, Comment: comment,
		}))
	}

	for i := 0; i < 4; i++ {
		submit(models.FeedbackThumbsUp, "")
	}

	insights, err := svc.GenerateInsights(context.Background(), 1, 30)
	require.NoError(t, err)
	assert.Nil(t, insights, "below the signal threshold no synthesis happens")
	assert.Equal(t, 0, provider.calls)

	submit(models.FeedbackThumbsDown, "intro drags")

	insights, err = svc.GenerateInsights(context.Background(), 1, 30)
	require.NoError(t, err)
	require.NotNil(t, insights)
	assert.Equal(t, []string{"concrete examples"}, insights.LikedAspects)
	assert.Equal(t, []string{"long intros"}, insights.DislikedAspects)

	addendum := insights.PromptAddendum()
	assert.Contains(t, addendum, "Readers liked: concrete examples")
	assert.Contains(t, addendum, "Recommendation: lead with the main story")
}

func TestPromptAddendumNilInsights(t *testing.T) {
	var insights *Insights
	assert.Empty(t, insights.PromptAddendum())
}
