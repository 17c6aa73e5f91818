package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"gorm.io/gorm"
)

// PreferencesService resolves the per-user preferences document. Reads are
// always deep-merged against the defaults, so callers never see missing keys.
type PreferencesService struct {
	db *gorm.DB
}

func NewPreferencesService(db *gorm.DB) *PreferencesService {
	return &PreferencesService{db: db}
}

// DefaultPreferences returns the full defaults document. A fresh copy every
// call; callers mutate their own.
func DefaultPreferences() models.JSONMap {
	return models.JSONMap{
		"draft_schedule_time":  "08:00",
		"newsletter_frequency": "weekly",
		"use_voice_profile":    true,
		"tone_preferences": map[string]interface{}{
			"formality":         "balanced",
			"enthusiasm":        "moderate",
			"length_preference": "medium",
			"use_emojis":        false,
		},
		"notification_preferences": map[string]interface{}{
			"email_on_draft_ready":     true,
			"email_on_publish_success": true,
			"email_on_errors":          true,
			"weekly_summary":           false,
		},
		"email_preferences": map[string]interface{}{
			"default_subject_template": "{title} - Newsletter",
			"include_preview_text":     true,
			"track_opens":              true,
			"track_clicks":             true,
		},
	}
}

// Get returns the user's preferences deep-merged over the defaults.
func (s *PreferencesService) Get(ctx context.Context, userID uint) (models.JSONMap, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}
	return deepMerge(DefaultPreferences(), user.Preferences), nil
}

// Patch deep-merges the given partial document into the stored preferences
// and returns the resolved result. Patching {} is a no-op.
func (s *PreferencesService) Patch(ctx context.Context, userID uint, patch models.JSONMap) (models.JSONMap, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}

	merged := deepMerge(user.Preferences, patch)
	if err := s.db.WithContext(ctx).Model(&user).Update("preferences", merged).Error; err != nil {
		return nil, err
	}
	return deepMerge(DefaultPreferences(), merged), nil
}

// Reset replaces the stored document with the full defaults.
func (s *PreferencesService) Reset(ctx context.Context, userID uint) (models.JSONMap, error) {
	defaults := DefaultPreferences()
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("preferences", defaults).Error
	if err != nil {
		return nil, err
	}
	return defaults, nil
}

// EnsureUserSetup initializes a new user: full defaults document plus a
// schedule row. Idempotent.
func (s *PreferencesService) EnsureUserSetup(ctx context.Context, userID uint) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return err
	}
	if len(user.Preferences) == 0 {
		if err := s.db.WithContext(ctx).Model(&user).
			Update("preferences", DefaultPreferences()).Error; err != nil {
			return err
		}
	}

	var schedule models.UserSchedule
	return s.db.WithContext(ctx).
		Where(models.UserSchedule{UserID: userID}).
		Attrs(models.UserSchedule{CrawlFrequencyHours: 24}).
		FirstOrCreate(&schedule).Error
}

// GetVoiceProfile returns the stored voice profile only when the user opted
// in (use_voice_profile=true) AND the profile was actually analyzed. All
// other combinations return nil; callers fall back to the tone instruction.
func (s *PreferencesService) GetVoiceProfile(ctx context.Context, userID uint) (models.JSONMap, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}

	prefs := deepMerge(DefaultPreferences(), user.Preferences)
	if !prefs.GetBool("use_voice_profile", true) {
		return nil, nil
	}
	if !user.HasAnalyzedVoice() {
		return nil, nil
	}
	return user.VoiceProfile, nil
}

// Tone phrase banks, keyed on each enum value.
var (
	formalityPhrases = map[string]string{
		"casual":   "friendly, conversational tone",
		"balanced": "approachable but professional tone",
		"formal":   "polished, professional tone",
	}
	enthusiasmPhrases = map[string]string{
		"low":      "measured and understated",
		"moderate": "engaged but not hyped",
		"high":     "energetic and enthusiastic",
	}
	lengthPhrases = map[string]string{
		"short":  "keep the newsletter concise, around 200–300 words",
		"medium": "aim for a medium-length newsletter, around 400–600 words",
		"long":   "write a thorough newsletter, around 800–1200 words",
	}
)

// ToneInstruction builds the style instruction from tone_preferences using
// the fixed phrase banks. Used whenever GetVoiceProfile returns nil.
func ToneInstruction(prefs models.JSONMap) string {
	tone := prefs.GetMap("tone_preferences")

	parts := []string{
		"Write in a " + phraseOr(formalityPhrases, tone.GetString("formality", "balanced"), formalityPhrases["balanced"]) + ".",
		"The energy should be " + phraseOr(enthusiasmPhrases, tone.GetString("enthusiasm", "moderate"), enthusiasmPhrases["moderate"]) + ".",
		capitalize(phraseOr(lengthPhrases, tone.GetString("length_preference", "medium"), lengthPhrases["medium"])) + ".",
	}
	if tone.GetBool("use_emojis", false) {
		parts = append(parts, "Use emojis sparingly where they add warmth.")
	} else {
		parts = append(parts, "Do not use emojis.")
	}
	return strings.Join(parts, " ")
}

// VoiceInstruction renders an analyzed voice profile into a prompt block.
func VoiceInstruction(profile models.JSONMap) string {
	var b strings.Builder
	b.WriteString("Write in the author's own voice, characterized as follows:\n")
	for _, key := range []string{"tone", "writing_patterns", "vocabulary_level", "formatting_preferences", "style"} {
		if v := profile.GetString(key, ""); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(key, "_", " "), v)
		}
	}
	return b.String()
}

func phraseOr(bank map[string]string, key, def string) string {
	if p, ok := bank[key]; ok {
		return p
	}
	return def
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// deepMerge overlays patch onto base recursively. Nested maps merge; every
// other value in patch replaces the base value. Neither input is mutated.
func deepMerge(base, patch models.JSONMap) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		patchMap, patchIsMap := asMap(v)
		baseMap, baseIsMap := asMap(out[k])
		if patchIsMap && baseIsMap {
			out[k] = map[string]interface{}(deepMerge(baseMap, patchMap))
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v interface{}) (models.JSONMap, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return models.JSONMap(m), true
	case models.JSONMap:
		return m, true
	}
	return nil, false
}
