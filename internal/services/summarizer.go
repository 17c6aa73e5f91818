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
	"gorm.io/gorm/clause"
)

const summarizerContentLimit = 8000

// summaryBand selects key-point count and length guidance per summary type.
type summaryBand struct {
	keyPoints int
	length    string
}

var summaryBands = map[string]summaryBand{
	models.SummaryTypeBrief:    {keyPoints: 3, length: "one or two sentences"},
	models.SummaryTypeStandard: {keyPoints: 5, length: "a short paragraph"},
	models.SummaryTypeDetailed: {keyPoints: 8, length: "two or three paragraphs"},
}

// SummarizerService produces structured per-item summaries, cached by
// (content_item_id, summary_type).
type SummarizerService struct {
	db      *gorm.DB
	gateway *GatewayService
}

func NewSummarizerService(db *gorm.DB, gateway *GatewayService) *SummarizerService {
	return &SummarizerService{db: db, gateway: gateway}
}

// CachedSummary returns the cached summary, or nil when absent. Never calls
// the model.
func (s *SummarizerService) CachedSummary(ctx context.Context, contentItemID uint, summaryType string) *models.ContentSummary {
	var summary models.ContentSummary
	err := s.db.WithContext(ctx).
		Where("content_item_id = ? AND summary_type = ?", contentItemID, summaryType).
		First(&summary).Error
	if err != nil {
		return nil
	}
	return &summary
}

// Summarize returns the summary for one item, computing and caching it on
// miss.
func (s *SummarizerService) Summarize(ctx context.Context, contentItemID uint, summaryType string) (*models.ContentSummary, error) {
	if _, ok := summaryBands[summaryType]; !ok {
		summaryType = models.SummaryTypeStandard
	}
	if cached := s.CachedSummary(ctx, contentItemID, summaryType); cached != nil {
		return cached, nil
	}

	var item models.ContentItem
	if err := s.db.WithContext(ctx).First(&item, contentItemID).Error; err != nil {
		return nil, err
	}
	return s.summarizeItem(ctx, &item, summaryType)
}

// SummarizeBatch processes a set of item IDs sequentially. Per-item failures
// are recorded and skipped; a rate-limit error aborts the remainder since
// every further call would fail the same pre-check.
func (s *SummarizerService) SummarizeBatch(ctx context.Context, userID uint, contentItemIDs []uint, summaryType string) ([]models.ContentSummary, error) {
	var summaries []models.ContentSummary
	for _, id := range contentItemIDs {
		summary, err := s.Summarize(ctx, id, summaryType)
		if err != nil {
			if _, rateLimited := asRateLimitError(err); rateLimited {
				return summaries, err
			}
			logger.Warn("Summarization failed for item", logger.Fields{
				"user_id": userID, "content_item_id": id, "error": err.Error(),
			})
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// SummarizeRecent finds the user's unsummarized items within the window and
// summarizes them.
func (s *SummarizerService) SummarizeRecent(ctx context.Context, userID uint, daysBack int, summaryType string) ([]models.ContentSummary, error) {
	if daysBack <= 0 {
		daysBack = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack)

	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Where("id NOT IN (?)", s.db.Model(&models.ContentSummary{}).
			Select("content_item_id").
			Where("summary_type = ?", summaryType)).
		Order("created_at DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return s.SummarizeBatch(ctx, userID, ids, summaryType)
}

func (s *SummarizerService) summarizeItem(ctx context.Context, item *models.ContentItem, summaryType string) (*models.ContentSummary, error) {
	band := summaryBands[summaryType]

	content := item.Content
	if len(content) > summarizerContentLimit {
		content = content[:summarizerContentLimit]
	}

	prompt := string(embedded.ContentSummaryPromptTxt)
	prompt = strings.ReplaceAll(prompt, "{KEY_POINT_COUNT}", strconv.Itoa(band.keyPoints))
	prompt = strings.ReplaceAll(prompt, "{SUMMARY_LENGTH}", band.length)
	prompt = strings.ReplaceAll(prompt, "{CONTENT_TYPE}", item.ContentType)
	prompt = strings.ReplaceAll(prompt, "{TITLE}", item.Title)
	prompt = strings.ReplaceAll(prompt, "{CONTENT}", content)

	resp, err := s.gateway.ChatCompletion(ctx, &ChatRequest{
		UserID:      item.UserID,
		ServiceName: "content_summarizer",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.2,
		Metadata:    map[string]interface{}{"content_item_id": item.ID, "summary_type": summaryType},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title          string   `json:"title"`
		KeyPoints      []string `json:"key_points"`
		Summary        string   `json:"summary"`
		Topics         []string `json:"topics"`
		Sentiment      string   `json:"sentiment"`
		RelevanceScore float64  `json:"relevance_score"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &parsed); err != nil {
		return nil, fmt.Errorf("summary response unparseable: %w", err)
	}

	summary := models.ContentSummary{
		ContentItemID: item.ID,
		UserID:        item.UserID,
		SummaryType:   summaryType,
		Title:         parsed.Title,
		KeyPoints:     models.StringList(parsed.KeyPoints),
		Summary:       parsed.Summary,
		Metadata: models.JSONMap{
			"topics":          parsed.Topics,
			"sentiment":       parsed.Sentiment,
			"relevance_score": parsed.RelevanceScore,
		},
	}

	// Upsert on the (content_item_id, summary_type) key so a concurrent
	// compute of the same item wins cleanly.
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_item_id"}, {Name: "summary_type"}},
		UpdateAll: true,
	}).Create(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func asRateLimitError(err error) (*RateLimitExceededError, bool) {
	var rle *RateLimitExceededError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
