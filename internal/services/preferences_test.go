package services

import (
	"context"
	"testing"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesDefaults(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewPreferencesService(db)

	prefs, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "08:00", prefs.GetString("draft_schedule_time", ""))
	assert.Equal(t, "weekly", prefs.GetString("newsletter_frequency", ""))
	assert.True(t, prefs.GetBool("use_voice_profile", false))
	assert.Equal(t, "balanced", prefs.GetMap("tone_preferences").GetString("formality", ""))
	assert.True(t, prefs.GetMap("email_preferences").GetBool("track_opens", false))
}

func TestPreferencesPatchDeepMerges(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewPreferencesService(db)

	merged, err := svc.Patch(context.Background(), 1, models.JSONMap{
		"newsletter_frequency": "daily",
		"tone_preferences": map[string]interface{}{
			"formality": "formal",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "daily", merged.GetString("newsletter_frequency", ""))

	// Nested siblings survive a partial patch.
	tone := merged.GetMap("tone_preferences")
	assert.Equal(t, "formal", tone.GetString("formality", ""))
	assert.Equal(t, "moderate", tone.GetString("enthusiasm", ""))
	assert.Equal(t, "medium", tone.GetString("length_preference", ""))

	// Untouched top-level keys keep their defaults.
	assert.Equal(t, "08:00", merged.GetString("draft_schedule_time", ""))

	// A second read resolves identically.
	reread, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "daily", reread.GetString("newsletter_frequency", ""))
	assert.Equal(t, "formal", reread.GetMap("tone_preferences").GetString("formality", ""))
}

func TestPreferencesPatchEmptyIsNoop(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewPreferencesService(db)

	before, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	after, err := svc.Patch(context.Background(), 1, models.JSONMap{})
	require.NoError(t, err)
	assert.Equal(t, before.GetString("newsletter_frequency", ""), after.GetString("newsletter_frequency", ""))
}

func TestPreferencesReset(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewPreferencesService(db)

	_, err := svc.Patch(context.Background(), 1, models.JSONMap{"newsletter_frequency": "daily"})
	require.NoError(t, err)

	prefs, err := svc.Reset(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "weekly", prefs.GetString("newsletter_frequency", ""))

	reread, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "weekly", reread.GetString("newsletter_frequency", ""))
}

func TestEnsureUserSetupIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	svc := NewPreferencesService(db)

	require.NoError(t, svc.EnsureUserSetup(context.Background(), 1))
	require.NoError(t, svc.EnsureUserSetup(context.Background(), 1))

	var schedules int64
	require.NoError(t, db.Model(&models.UserSchedule{}).Where("user_id = ?", 1).Count(&schedules).Error)
	assert.EqualValues(t, 1, schedules)

	var schedule models.UserSchedule
	require.NoError(t, db.Where("user_id = ?", 1).First(&schedule).Error)
	assert.Equal(t, 24, schedule.CrawlFrequencyHours)

	// Setup must not clobber preferences a user already customized.
	_, err := svc.Patch(context.Background(), 1, models.JSONMap{"newsletter_frequency": "daily"})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureUserSetup(context.Background(), 1))
	prefs, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "daily", prefs.GetString("newsletter_frequency", ""))
}

func TestGetVoiceProfileDiscriminant(t *testing.T) {
	db := openTestDB(t)
	user := seedUser(t, db, 1)
	svc := NewPreferencesService(db)

	ctx := context.Background()

	// No profile at all.
	profile, err := svc.GetVoiceProfile(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, profile)

	// A fallback profile is never applied, even with the opt-in on.
	require.NoError(t, db.Model(user).Update("voice_profile", models.JSONMap{
		"source": "default_fallback", "tone": "neutral",
	}).Error)
	profile, err = svc.GetVoiceProfile(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, profile)

	// Analyzed profile with the opt-in on is returned.
	require.NoError(t, db.Model(user).Update("voice_profile", models.JSONMap{
		"source": "analyzed", "tone": "direct and wry",
	}).Error)
	profile, err = svc.GetVoiceProfile(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "direct and wry", profile.GetString("tone", ""))

	// Opting out hides even an analyzed profile.
	_, err = svc.Patch(ctx, 1, models.JSONMap{"use_voice_profile": false})
	require.NoError(t, err)
	profile, err = svc.GetVoiceProfile(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestToneInstruction(t *testing.T) {
	prefs := DefaultPreferences()
	got := ToneInstruction(prefs)
	assert.Contains(t, got, "approachable but professional")
	assert.Contains(t, got, "engaged but not hyped")
	assert.Contains(t, got, "400")
	assert.Contains(t, got, "Do not use emojis")

	custom := deepMerge(DefaultPreferences(), models.JSONMap{
		"tone_preferences": map[string]interface{}{
			"formality":         "casual",
			"enthusiasm":        "high",
			"length_preference": "short",
			"use_emojis":        true,
		},
	})
	got = ToneInstruction(custom)
	assert.Contains(t, got, "friendly, conversational")
	assert.Contains(t, got, "energetic")
	assert.Contains(t, got, "200")
	assert.Contains(t, got, "emojis sparingly")

	// Unknown enum values fall back to the balanced defaults.
	odd := deepMerge(DefaultPreferences(), models.JSONMap{
		"tone_preferences": map[string]interface{}{"formality": "shouty"},
	})
	assert.Contains(t, ToneInstruction(odd), "approachable but professional")
}

func TestVoiceInstruction(t *testing.T) {
	got := VoiceInstruction(models.JSONMap{
		"tone":  "dry",
		"style": "short punchy sentences",
	})
	assert.Contains(t, got, "tone: dry")
	assert.Contains(t, got, "style: short punchy sentences")
	assert.NotContains(t, got, "vocabulary level")
}
