package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/metrics"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/pkg/embedded"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	draftDefaultTopicCount = 5
	draftDefaultDaysBack   = 7
	draftMinTrendScore     = 0.3
	draftGenerationTimeout = 3 * time.Minute
)

// ErrDraftBusy is returned when a regeneration races an in-flight generation.
var ErrDraftBusy = fmt.Errorf("draft is currently generating")

// DraftService generates newsletter drafts. A draft is a single row from the
// generating placeholder through ready/failed and across regenerations.
type DraftService struct {
	db          *gorm.DB
	cfg         *config.Config
	gateway     *GatewayService
	preferences *PreferencesService
	trends      *TrendService
	summarizer  *SummarizerService
	feedback    *FeedbackService
	metrics     *metrics.Client
}

func NewDraftService(
	db *gorm.DB,
	cfg *config.Config,
	gateway *GatewayService,
	preferences *PreferencesService,
	trends *TrendService,
	summarizer *SummarizerService,
	feedback *FeedbackService,
	metricsClient *metrics.Client,
) *DraftService {
	return &DraftService{
		db:          db,
		cfg:         cfg,
		gateway:     gateway,
		preferences: preferences,
		trends:      trends,
		summarizer:  summarizer,
		feedback:    feedback,
		metrics:     metricsClient,
	}
}

// GenerateOptions tunes one generation run.
type GenerateOptions struct {
	TopicCount int
	DaysBack   int
}

func (o *GenerateOptions) normalize() {
	if o.TopicCount <= 0 {
		o.TopicCount = draftDefaultTopicCount
	}
	if o.DaysBack <= 0 {
		o.DaysBack = draftDefaultDaysBack
	}
}

// Generate creates the placeholder row and materializes it in the
// background. Callers get the placeholder immediately with
// status=generating; the same row later becomes ready or failed.
func (s *DraftService) Generate(ctx context.Context, userID uint, opts GenerateOptions) (*models.Draft, error) {
	opts.normalize()

	draft := models.Draft{
		UserID:   userID,
		Status:   models.DraftStatusGenerating,
		Sections: models.DraftSections{},
		Metadata: models.JSONMap{},
	}
	if err := s.db.WithContext(ctx).Create(&draft).Error; err != nil {
		return nil, err
	}

	go func() {
		// Detached from the request context; generation outlives the
		// HTTP response.
		bgCtx, cancel := context.WithTimeout(context.Background(), draftGenerationTimeout)
		defer cancel()
		s.Materialize(bgCtx, draft.ID, opts)
	}()

	return &draft, nil
}

// Regenerate overwrites a draft in place. Only drafts in ready, editing or
// failed can be regenerated; the status guard on the UPDATE prevents
// concurrent regenerations of the same row.
func (s *DraftService) Regenerate(ctx context.Context, userID, draftID uint, opts GenerateOptions) (*models.Draft, error) {
	opts.normalize()

	res := s.db.WithContext(ctx).Model(&models.Draft{}).
		Where("id = ? AND user_id = ? AND status IN ?", draftID, userID,
			[]string{models.DraftStatusReady, models.DraftStatusEditing, models.DraftStatusFailed}).
		Update("status", models.DraftStatusGenerating)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var draft models.Draft
		if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", draftID, userID).First(&draft).Error; err != nil {
			return nil, err
		}
		return nil, ErrDraftBusy
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), draftGenerationTimeout)
		defer cancel()
		s.Materialize(bgCtx, draftID, opts)
	}()

	var draft models.Draft
	if err := s.db.WithContext(ctx).First(&draft, draftID).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

// Materialize runs the full generation protocol against an existing
// placeholder row and updates it to ready or failed. Exported so the
// scheduler can run it synchronously inside its own tick.
func (s *DraftService) Materialize(ctx context.Context, draftID uint, opts GenerateOptions) {
	opts.normalize()
	start := time.Now()

	var draft models.Draft
	if err := s.db.First(&draft, draftID).Error; err != nil {
		logger.Error("Draft placeholder vanished before materialization", err, logger.Fields{"draft_id": draftID})
		return
	}

	if err := s.materialize(ctx, &draft, opts); err != nil {
		s.markFailed(&draft, err)
		if s.metrics != nil {
			s.metrics.RecordGenerationDuration(time.Since(start), false)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordGenerationDuration(time.Since(start), true)
	}
}

func (s *DraftService) materialize(ctx context.Context, draft *models.Draft, opts GenerateOptions) error {
	prefs, err := s.preferences.Get(ctx, draft.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve preferences: %w", err)
	}

	trends, err := s.trends.DetectTrends(ctx, draft.UserID, opts.DaysBack, draftMinTrendScore, opts.TopicCount)
	if err != nil {
		return fmt.Errorf("trend detection failed: %w", err)
	}

	if len(trends) == 0 {
		return s.writeFallbackDraft(draft, opts)
	}

	// Enrich each trend with standard summaries of its supporting items.
	briefings := s.buildBriefings(ctx, trends)

	voiceProfile, err := s.preferences.GetVoiceProfile(ctx, draft.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve voice profile: %w", err)
	}
	styleInstruction := ""
	voiceUsed := false
	if voiceProfile != nil {
		styleInstruction = VoiceInstruction(voiceProfile)
		voiceUsed = true
	} else {
		styleInstruction = ToneInstruction(prefs)
	}

	feedbackInstruction := ""
	if insights, err := s.feedback.GenerateInsights(ctx, draft.UserID, feedbackDefaultDaysBack); err == nil && insights != nil {
		feedbackInstruction = insights.PromptAddendum()
	}

	prompt := string(embedded.DraftGenerationPromptTxt)
	prompt = strings.ReplaceAll(prompt, "{STYLE_INSTRUCTION}", styleInstruction)
	prompt = strings.ReplaceAll(prompt, "{FEEDBACK_INSTRUCTION}", feedbackInstruction)
	prompt = strings.ReplaceAll(prompt, "{TRENDS}", briefings)

	model := s.cfg.DefaultModel
	resp, err := s.gateway.ChatCompletion(ctx, &ChatRequest{
		UserID:      draft.UserID,
		ServiceName: "draft_generator",
		Model:       model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: string(embedded.DraftSystemPromptTxt)},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.7,
		Metadata:    map[string]interface{}{"draft_id": draft.ID, "trend_count": len(trends)},
	})
	if err != nil {
		return fmt.Errorf("draft generation call failed: %w", err)
	}

	title, sections, err := parseDraftResponse(resp.Text)
	if err != nil {
		return err
	}

	trendIDs := make([]int64, 0, len(trends))
	for _, t := range trends {
		trendIDs = append(trendIDs, int64(t.ID))
	}

	now := time.Now().UTC()
	return s.db.Model(draft).Updates(map[string]interface{}{
		"title":    title,
		"sections": sections,
		"status":   models.DraftStatusReady,
		"metadata": models.JSONMap{
			"voice_profile_used": voiceUsed,
			"trends_used":        trendIDs,
			"model_used":         model,
			"topic_count":        len(trends),
		},
		"generated_at": now,
	}).Error
}

// writeFallbackDraft emits the intro+conclusion-only draft used when the
// window holds no trends. A terminal, valid outcome: status is ready.
func (s *DraftService) writeFallbackDraft(draft *models.Draft, opts GenerateOptions) error {
	now := time.Now().UTC()
	sections := models.DraftSections{
		{
			ID:      uuid.NewString(),
			Type:    models.SectionTypeIntro,
			Content: "It's been a quiet stretch: no standout topics emerged from your sources this period.",
		},
		{
			ID:      uuid.NewString(),
			Type:    models.SectionTypeConclusion,
			Content: "Check back after the next crawl, or add more sources to widen the net.",
		},
	}
	return s.db.Model(draft).Updates(map[string]interface{}{
		"title":    "Newsletter Draft - " + now.Format("Jan 2, 2006"),
		"sections": sections,
		"status":   models.DraftStatusReady,
		"metadata": models.JSONMap{
			"no_trends": true,
			"fallback":  true,
			"days_back": opts.DaysBack,
		},
		"generated_at": now,
	}).Error
}

func (s *DraftService) buildBriefings(ctx context.Context, trends []models.Trend) string {
	var b strings.Builder
	for i, trend := range trends {
		fmt.Fprintf(&b, "Trend %d: %s (score %.2f)\n%s\n", i+1, trend.Topic, trend.Score, trend.Rationale)
		for _, contentID := range trend.SupportingContentIDs {
			summary, err := s.summarizer.Summarize(ctx, uint(contentID), models.SummaryTypeStandard)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "  - %s: %s\n", summary.Title, summary.Summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// markFailed records the failure on the same row. The traceback makes
// background failures debuggable from the API.
func (s *DraftService) markFailed(draft *models.Draft, cause error) {
	logger.Error("Draft generation failed", cause, logger.Fields{
		"draft_id": draft.ID, "user_id": draft.UserID,
	})

	errorType := "generation_error"
	if _, ok := asRateLimitError(cause); ok {
		errorType = "rate_limit"
	}

	err := s.db.Model(draft).Updates(map[string]interface{}{
		"status": models.DraftStatusFailed,
		"metadata": models.JSONMap{
			"error":      cause.Error(),
			"error_type": errorType,
			"traceback":  string(debug.Stack()),
		},
	}).Error
	if err != nil {
		logger.Error("Failed to mark draft failed", err, logger.Fields{"draft_id": draft.ID})
	}
}

// parseDraftResponse decodes the structured draft and normalizes it: intro
// first, conclusion last, every section gets a stable ID.
func parseDraftResponse(text string) (string, models.DraftSections, error) {
	var parsed struct {
		Title    string `json:"title"`
		Sections []struct {
			Type    string `json:"type"`
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err != nil {
		return "", nil, fmt.Errorf("draft response unparseable: %w", err)
	}
	if len(parsed.Sections) == 0 {
		return "", nil, fmt.Errorf("draft response contained no sections")
	}

	sections := make(models.DraftSections, 0, len(parsed.Sections))
	for _, sec := range parsed.Sections {
		switch sec.Type {
		case models.SectionTypeIntro, models.SectionTypeTopic, models.SectionTypeConclusion:
		default:
			sec.Type = models.SectionTypeTopic
		}
		sections = append(sections, models.DraftSection{
			ID:      uuid.NewString(),
			Type:    sec.Type,
			Title:   sec.Title,
			Content: sec.Content,
		})
	}
	return parsed.Title, sections, nil
}

// List returns the user's drafts, newest first.
func (s *DraftService) List(ctx context.Context, userID uint, limit int) ([]models.Draft, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var drafts []models.Draft
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&drafts).Error
	return drafts, err
}

// Get returns one draft scoped to its owner.
func (s *DraftService) Get(ctx context.Context, userID, draftID uint) (*models.Draft, error) {
	var draft models.Draft
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", draftID, userID).
		First(&draft).Error
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// UpdateSections replaces the section list of a ready or editing draft and
// moves it to editing.
func (s *DraftService) UpdateSections(ctx context.Context, userID, draftID uint, title string, sections models.DraftSections) (*models.Draft, error) {
	draft, err := s.Get(ctx, userID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusReady && draft.Status != models.DraftStatusEditing {
		return nil, fmt.Errorf("draft in status %q cannot be edited", draft.Status)
	}

	for i := range sections {
		if sections[i].ID == "" {
			sections[i].ID = uuid.NewString()
		}
	}

	updates := map[string]interface{}{
		"sections": sections,
		"status":   models.DraftStatusEditing,
	}
	if title != "" {
		updates["title"] = title
	}
	if err := s.db.WithContext(ctx).Model(draft).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, draftID)
}

// MarkPublished flips a draft to published. Email delivery is the caller's
// concern (the publish handler runs C11 first).
func (s *DraftService) MarkPublished(ctx context.Context, userID, draftID uint) (*models.Draft, error) {
	draft, err := s.Get(ctx, userID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusReady && draft.Status != models.DraftStatusEditing {
		return nil, fmt.Errorf("draft in status %q cannot be published", draft.Status)
	}
	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Model(draft).Updates(map[string]interface{}{
		"status":       models.DraftStatusPublished,
		"published_at": now,
	}).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, draftID)
}

// Delete soft-deletes a draft, scoped to the owner.
func (s *DraftService) Delete(ctx context.Context, userID, draftID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", draftID, userID).
		Delete(&models.Draft{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DebugInfo reports the inputs available for generation.
type DebugInfo struct {
	ContentItems7d int64 `json:"content_items_7d"`
	Trends7d       int64 `json:"trends_7d"`
	VoiceSamples   int64 `json:"voice_samples"`
	ActiveSources  int64 `json:"active_sources"`
	CanGenerate    bool  `json:"can_generate"`
}

// Debug returns content/trend/voice-sample counts and whether a draft can
// currently be generated.
func (s *DraftService) Debug(ctx context.Context, userID uint) (*DebugInfo, error) {
	info := &DebugInfo{}
	since := time.Now().UTC().AddDate(0, 0, -draftDefaultDaysBack)

	if err := s.db.WithContext(ctx).Model(&models.ContentItem{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&info.ContentItems7d).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Trend{}).
		Where("user_id = ? AND detected_at >= ?", userID, since).
		Count(&info.Trends7d).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.VoiceSample{}).
		Where("user_id = ?", userID).
		Count(&info.VoiceSamples).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Source{}).
		Where("user_id = ? AND status = ?", userID, models.SourceStatusActive).
		Count(&info.ActiveSources).Error; err != nil {
		return nil, err
	}

	// Generation is always possible; without content it just produces the
	// fallback draft. CanGenerate reports whether a real draft is likely.
	info.CanGenerate = info.ContentItems7d > 0
	return info, nil
}
