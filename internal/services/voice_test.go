package services

import (
	"context"
	"errors"
	"testing"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const voiceResponse = `{"tone":"direct and wry","writing_patterns":"short, punchy",
"vocabulary_level":"technical","formatting_preferences":"numbered lists","style":"Opinionated engineering notes."}`

func TestAddSampleCountsWords(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewVoiceService(db, newTestGateway(t, db, &fakeProvider{}))

	sample, err := svc.AddSample(context.Background(), 1, "post.md", "  one two three  ")
	require.NoError(t, err)
	assert.Equal(t, 3, sample.WordCount)
	assert.Equal(t, "one two three", sample.Content)

	_, err = svc.AddSample(context.Background(), 1, "empty.md", "   ")
	require.Error(t, err)
}

func TestDeleteSampleScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	seedUser(t, db, 2)
	svc := NewVoiceService(db, newTestGateway(t, db, &fakeProvider{}))

	sample, err := svc.AddSample(context.Background(), 1, "post.md", "some text")
	require.NoError(t, err)

	err = svc.DeleteSample(context.Background(), 2, sample.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, svc.DeleteSample(context.Background(), 1, sample.ID))
}

func TestAnalyzeVoiceNoSamples(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	provider := &fakeProvider{}
	svc := NewVoiceService(db, newTestGateway(t, db, provider))

	profile, err := svc.AnalyzeVoice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceSourceDefault, profile.GetString("source", ""))
	assert.Equal(t, 0, provider.calls, "no samples means no model call")

	var user models.User
	require.NoError(t, db.First(&user, 1).Error)
	assert.Equal(t, models.VoiceSourceDefault, user.VoiceProfile.GetString("source", ""))
	assert.False(t, user.HasAnalyzedVoice())
}

func TestAnalyzeVoiceProviderError(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewVoiceService(db, newTestGateway(t, db, &fakeProvider{errs: []error{errors.New("boom")}}))

	_, err := svc.AddSample(context.Background(), 1, "a.md", "sample text here")
	require.NoError(t, err)

	profile, err := svc.AnalyzeVoice(context.Background(), 1)
	require.NoError(t, err, "a failed analysis still yields a usable default profile")
	assert.Equal(t, models.VoiceSourceDefaultError, profile.GetString("source", ""))
	assert.NotEmpty(t, profile.GetString("style", ""))
}

func TestAnalyzeVoiceUnparseableResponse(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewVoiceService(db, newTestGateway(t, db, &fakeProvider{responses: []string{"sure! your voice is great"}}))

	_, err := svc.AddSample(context.Background(), 1, "a.md", "sample text here")
	require.NoError(t, err)

	profile, err := svc.AnalyzeVoice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceSourceDefaultFallback, profile.GetString("source", ""))
}

func TestAnalyzeVoiceSuccess(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewVoiceService(db, newTestGateway(t, db, &fakeProvider{responses: []string{voiceResponse}}))

	ctx := context.Background()
	_, err := svc.AddSample(ctx, 1, "a.md", "first sample")
	require.NoError(t, err)
	_, err = svc.AddSample(ctx, 1, "b.md", "second sample")
	require.NoError(t, err)

	profile, err := svc.AnalyzeVoice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceSourceAnalyzed, profile.GetString("source", ""))
	assert.Equal(t, "direct and wry", profile.GetString("tone", ""))
	assert.EqualValues(t, 2, profile.GetFloat("samples_count", 0))

	var user models.User
	require.NoError(t, db.First(&user, 1).Error)
	assert.True(t, user.HasAnalyzedVoice())
}

func TestGetProfileDefaultWhenUnset(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewVoiceService(db, newTestGateway(t, db, &fakeProvider{}))

	profile, err := svc.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceSourceDefault, profile.GetString("source", ""))
}
