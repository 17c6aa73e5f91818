package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/pkg/embedded"
	"gorm.io/gorm"
)

const (
	trendContentLimit  = 100
	trendExcerptLength = 500
)

// TrendService detects significant topics in a user's recent content via a
// single gateway call. It never synthesizes trends: a failed or unparseable
// model call yields an empty list. Only rate limits propagate to the caller.
type TrendService struct {
	db         *gorm.DB
	gateway    *GatewayService
	summarizer *SummarizerService
}

func NewTrendService(db *gorm.DB, gateway *GatewayService, summarizer *SummarizerService) *TrendService {
	return &TrendService{db: db, gateway: gateway, summarizer: summarizer}
}

// DetectTrends pulls recent content, asks the model for ranked topics, keeps
// those with score >= minScore (at most maxTrends), and persists them.
func (s *TrendService) DetectTrends(ctx context.Context, userID uint, daysBack int, minScore float64, maxTrends int) ([]models.Trend, error) {
	if daysBack <= 0 {
		daysBack = 7
	}
	if maxTrends <= 0 {
		maxTrends = 5
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack)

	var items []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Limit(trendContentLimit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	prompt := s.buildPrompt(ctx, items, daysBack, maxTrends)
	resp, err := s.gateway.ChatCompletion(ctx, &ChatRequest{
		UserID:      userID,
		ServiceName: "trend_detector",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.3,
		Metadata:    map[string]interface{}{"days_back": daysBack, "item_count": len(items)},
	})
	if err != nil {
		rle := &RateLimitExceededError{}
		if errors.As(err, &rle) {
			return nil, err
		}
		logger.Error("Trend detection call failed, treating window as trendless", err, logger.Fields{"user_id": userID})
		return nil, nil
	}

	parsed := parseTrendResponse(resp.Text)
	if len(parsed) == 0 {
		logger.Info("Trend detection returned no parseable trends", logger.Fields{"user_id": userID})
		return nil, nil
	}

	now := time.Now().UTC()
	var trends []models.Trend
	for _, t := range parsed {
		if t.Score < minScore {
			continue
		}
		trends = append(trends, models.Trend{
			UserID:               userID,
			Topic:                t.Topic,
			Score:                t.Score,
			Rationale:            t.Rationale,
			SupportingContentIDs: t.SupportingContentIDs,
			DetectedAt:           now,
		})
		if len(trends) >= maxTrends {
			break
		}
	}
	if len(trends) == 0 {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).Create(&trends).Error; err != nil {
		return nil, err
	}
	return trends, nil
}

// RecentTrends lists trends detected within the window, newest first.
func (s *TrendService) RecentTrends(ctx context.Context, userID uint, daysBack int) ([]models.Trend, error) {
	if daysBack <= 0 {
		daysBack = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack)
	var trends []models.Trend
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND detected_at >= ?", userID, since).
		Order("score DESC").
		Find(&trends).Error
	return trends, err
}

// buildPrompt renders each item as an ID + title + excerpt line, preferring a
// cached brief summary over a raw excerpt when one exists.
func (s *TrendService) buildPrompt(ctx context.Context, items []models.ContentItem, daysBack, maxTrends int) string {
	var b strings.Builder
	for _, item := range items {
		excerpt := item.Content
		if summary := s.summarizer.CachedSummary(ctx, item.ID, models.SummaryTypeBrief); summary != nil {
			excerpt = summary.Summary
		}
		if len(excerpt) > trendExcerptLength {
			excerpt = excerpt[:trendExcerptLength]
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n%s\n\n", item.ID, item.ContentType, item.Title, excerpt)
	}

	prompt := string(embedded.TrendDetectionPromptTxt)
	prompt = strings.ReplaceAll(prompt, "{MAX_TRENDS}", strconv.Itoa(maxTrends))
	prompt = strings.ReplaceAll(prompt, "{DAYS_BACK}", strconv.Itoa(daysBack))
	prompt = strings.ReplaceAll(prompt, "{CONTENT_ITEMS}", b.String())
	return prompt
}

type parsedTrend struct {
	Topic                string           `json:"topic"`
	Score                float64          `json:"score"`
	Rationale            string           `json:"rationale"`
	SupportingContentIDs models.Int64List `json:"supporting_content_ids"`
}

// parseTrendResponse extracts the trends array from the model output. Models
// sometimes wrap JSON in a code fence; strip it before decoding.
func parseTrendResponse(text string) []parsedTrend {
	var payload struct {
		Trends []parsedTrend `json:"trends"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		return nil
	}
	return payload.Trends
}

// extractJSON strips markdown code fences and surrounding prose, returning
// the outermost JSON object in the text.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
