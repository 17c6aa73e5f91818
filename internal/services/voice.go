package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/pkg/embedded"
	"gorm.io/gorm"
)

const voiceSampleCharLimit = 6000

// VoiceService analyzes a user's uploaded writing samples into a voice
// profile. Downstream code never sees a null profile: every failure mode
// still persists a default document with a discriminating source value.
type VoiceService struct {
	db      *gorm.DB
	gateway *GatewayService
}

func NewVoiceService(db *gorm.DB, gateway *GatewayService) *VoiceService {
	return &VoiceService{db: db, gateway: gateway}
}

// AddSample stores one plain-text writing sample. Upload layers decode
// markdown/HTML before calling this.
func (s *VoiceService) AddSample(ctx context.Context, userID uint, filename, content string) (*models.VoiceSample, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("sample content is empty")
	}
	sample := models.VoiceSample{
		UserID:    userID,
		Filename:  filename,
		Content:   content,
		WordCount: len(strings.Fields(content)),
	}
	if err := s.db.WithContext(ctx).Create(&sample).Error; err != nil {
		return nil, err
	}
	return &sample, nil
}

// ListSamples returns the user's samples, newest first.
func (s *VoiceService) ListSamples(ctx context.Context, userID uint) ([]models.VoiceSample, error) {
	var samples []models.VoiceSample
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&samples).Error
	return samples, err
}

// DeleteSample removes one sample, scoped to the owner.
func (s *VoiceService) DeleteSample(ctx context.Context, userID, sampleID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sampleID, userID).
		Delete(&models.VoiceSample{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetProfile returns the stored voice profile document (which may be one of
// the default variants, never null for an initialized user).
func (s *VoiceService) GetProfile(ctx context.Context, userID uint) (models.JSONMap, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}
	if len(user.VoiceProfile) == 0 {
		return defaultVoiceProfile(models.VoiceSourceDefault, 0), nil
	}
	return user.VoiceProfile, nil
}

// AnalyzeVoice runs one model call over all the user's samples and persists
// the result as the voice profile. Provider errors save a default document
// with source=default_error; unparseable output saves source=default_fallback;
// zero samples saves source=default without calling the model.
func (s *VoiceService) AnalyzeVoice(ctx context.Context, userID uint) (models.JSONMap, error) {
	samples, err := s.ListSamples(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(samples) < 1 {
		profile := defaultVoiceProfile(models.VoiceSourceDefault, 0)
		return profile, s.saveProfile(ctx, userID, profile)
	}

	var b strings.Builder
	for i, sample := range samples {
		content := sample.Content
		if len(content) > voiceSampleCharLimit {
			content = content[:voiceSampleCharLimit]
		}
		fmt.Fprintf(&b, "--- Sample %d ---\n%s\n\n", i+1, content)
	}

	prompt := string(embedded.VoiceAnalysisPromptTxt)
	prompt = strings.ReplaceAll(prompt, "{SAMPLE_COUNT}", strconv.Itoa(len(samples)))
	prompt = strings.ReplaceAll(prompt, "{SAMPLES}", b.String())

	resp, err := s.gateway.ChatCompletion(ctx, &ChatRequest{
		UserID:      userID,
		ServiceName: "voice_analyzer",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.2,
		Metadata:    map[string]interface{}{"samples_count": len(samples)},
	})
	if err != nil {
		logger.Error("Voice analysis call failed", err, logger.Fields{"user_id": userID})
		profile := defaultVoiceProfile(models.VoiceSourceDefaultError, len(samples))
		if saveErr := s.saveProfile(ctx, userID, profile); saveErr != nil {
			return nil, saveErr
		}
		return profile, nil
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil || len(parsed) == 0 {
		logger.Warn("Voice analysis response unparseable, using fallback profile", logger.Fields{"user_id": userID})
		profile := defaultVoiceProfile(models.VoiceSourceDefaultFallback, len(samples))
		if saveErr := s.saveProfile(ctx, userID, profile); saveErr != nil {
			return nil, saveErr
		}
		return profile, nil
	}

	profile := models.JSONMap(parsed)
	profile["source"] = models.VoiceSourceAnalyzed
	profile["samples_count"] = len(samples)
	if err := s.saveProfile(ctx, userID, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *VoiceService) saveProfile(ctx context.Context, userID uint, profile models.JSONMap) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("voice_profile", profile).Error
}

// defaultVoiceProfile is the document saved when no analyzed voice exists.
// The source value tells callers why.
func defaultVoiceProfile(source string, samplesCount int) models.JSONMap {
	return models.JSONMap{
		"source":           source,
		"samples_count":    samplesCount,
		"tone":             "clear and helpful",
		"writing_patterns": "varied, mostly short",
		"vocabulary_level": "conversational",
		"style":            "A clear, friendly newsletter voice with short paragraphs and concrete examples.",
	}
}
