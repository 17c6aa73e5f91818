package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/pkg/embedded"
	"gorm.io/gorm"
)

const (
	feedbackInsightThreshold = 5
	feedbackDefaultDaysBack  = 30
)

// FeedbackService records reader signals on drafts and synthesizes insights
// the draft generator can fold into its prompt.
type FeedbackService struct {
	db      *gorm.DB
	gateway *GatewayService
}

func NewFeedbackService(db *gorm.DB, gateway *GatewayService) *FeedbackService {
	return &FeedbackService{db: db, gateway: gateway}
}

// Submit records one feedback signal.
func (s *FeedbackService) Submit(ctx context.Context, fb *models.Feedback) error {
	if fb.Type != models.FeedbackThumbsUp && fb.Type != models.FeedbackThumbsDown {
		return fmt.Errorf("feedback type must be %s or %s", models.FeedbackThumbsUp, models.FeedbackThumbsDown)
	}
	var draft models.Draft
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", fb.DraftID, fb.UserID).
		First(&draft).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(fb).Error
}

// ListByUser returns the user's feedback, newest first.
func (s *FeedbackService) ListByUser(ctx context.Context, userID uint, limit int) ([]models.Feedback, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var feedback []models.Feedback
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&feedback).Error
	return feedback, err
}

// ListByDraft returns all feedback for one draft.
func (s *FeedbackService) ListByDraft(ctx context.Context, userID, draftID uint) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND draft_id = ?", userID, draftID).
		Order("created_at DESC").
		Find(&feedback).Error
	return feedback, err
}

// Update modifies a feedback entry's type or comment, scoped to the owner.
func (s *FeedbackService) Update(ctx context.Context, userID, feedbackID uint, feedbackType, comment string) (*models.Feedback, error) {
	var fb models.Feedback
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", feedbackID, userID).
		First(&fb).Error; err != nil {
		return nil, err
	}
	if feedbackType != "" {
		if feedbackType != models.FeedbackThumbsUp && feedbackType != models.FeedbackThumbsDown {
			return nil, fmt.Errorf("feedback type must be %s or %s", models.FeedbackThumbsUp, models.FeedbackThumbsDown)
		}
		fb.Type = feedbackType
	}
	fb.Comment = comment
	if err := s.db.WithContext(ctx).Save(&fb).Error; err != nil {
		return nil, err
	}
	return &fb, nil
}

// Delete removes one feedback entry, scoped to the owner.
func (s *FeedbackService) Delete(ctx context.Context, userID, feedbackID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", feedbackID, userID).
		Delete(&models.Feedback{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FeedbackStats is the positive-rate rollup.
type FeedbackStats struct {
	Total        int64   `json:"total"`
	ThumbsUp     int64   `json:"thumbs_up"`
	ThumbsDown   int64   `json:"thumbs_down"`
	PositiveRate float64 `json:"positive_rate"`
}

// Stats aggregates the user's feedback.
func (s *FeedbackService) Stats(ctx context.Context, userID uint) (*FeedbackStats, error) {
	stats := &FeedbackStats{}
	base := s.db.WithContext(ctx).Model(&models.Feedback{}).Where("user_id = ?", userID)

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("type = ?", models.FeedbackThumbsUp).Count(&stats.ThumbsUp).Error; err != nil {
		return nil, err
	}
	stats.ThumbsDown = stats.Total - stats.ThumbsUp
	if stats.Total > 0 {
		stats.PositiveRate = float64(stats.ThumbsUp) / float64(stats.Total)
	}
	return stats, nil
}

// Insights holds the synthesized audience signals fed back into generation.
type Insights struct {
	LikedAspects    []string `json:"liked_aspects"`
	DislikedAspects []string `json:"disliked_aspects"`
	Recommendations []string `json:"recommendations"`
}

// GenerateInsights synthesizes recent feedback into prompt guidance. Fewer
// than the signal threshold produces no adjustment (nil, nil).
func (s *FeedbackService) GenerateInsights(ctx context.Context, userID uint, daysBack int) (*Insights, error) {
	if daysBack <= 0 {
		daysBack = feedbackDefaultDaysBack
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack)

	var feedback []models.Feedback
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Find(&feedback).Error
	if err != nil {
		return nil, err
	}
	if len(feedback) < feedbackInsightThreshold {
		return nil, nil
	}

	var b strings.Builder
	for _, fb := range feedback {
		fmt.Fprintf(&b, "- %s", fb.Type)
		if fb.SectionID != "" {
			fmt.Fprintf(&b, " (section %s)", fb.SectionID)
		}
		if fb.Comment != "" {
			fmt.Fprintf(&b, ": %s", fb.Comment)
		}
		b.WriteString("\n")
	}

	prompt := string(embedded.FeedbackInsightsPromptTxt)
	prompt = strings.ReplaceAll(prompt, "{DAYS_BACK}", strconv.Itoa(daysBack))
	prompt = strings.ReplaceAll(prompt, "{FEEDBACK}", b.String())

	resp, err := s.gateway.ChatCompletion(ctx, &ChatRequest{
		UserID:      userID,
		ServiceName: "feedback_analyzer",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.3,
		Metadata:    map[string]interface{}{"signal_count": len(feedback)},
	})
	if err != nil {
		return nil, err
	}

	var insights Insights
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &insights); err != nil {
		return nil, fmt.Errorf("insights response unparseable: %w", err)
	}
	return &insights, nil
}

// PromptAddendum renders insights as an optional generation-prompt block.
func (i *Insights) PromptAddendum() string {
	if i == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Reader feedback to take into account:\n")
	for _, a := range i.LikedAspects {
		fmt.Fprintf(&b, "- Readers liked: %s\n", a)
	}
	for _, a := range i.DislikedAspects {
		fmt.Fprintf(&b, "- Readers disliked: %s\n", a)
	}
	for _, r := range i.Recommendations {
		fmt.Fprintf(&b, "- Recommendation: %s\n", r)
	}
	return b.String()
}
