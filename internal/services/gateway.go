// Package services implements the application core: the LLM gateway,
// preferences, trends, summaries, voice, drafts, feedback and email delivery.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/llm"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/metrics"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/observability"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// safeDefaultLimit is returned for windows with no per-user row and no
// configured global default, so callers always observe a finite quota.
const safeDefaultLimit = 1000

// RateLimitExceededError is returned when a pre-call check fails. It carries
// the window that tripped and when it resets.
type RateLimitExceededError struct {
	LimitType  string    `json:"limit_type"`
	LimitValue int       `json:"limit_value"`
	ResetAt    time.Time `json:"reset_at"`
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("LLM rate limit exceeded (%s limit of %d, resets at %s)",
		e.LimitType, e.LimitValue, e.ResetAt.UTC().Format(time.RFC3339))
}

// GatewayService is the single funnel for model calls. It enforces per-user
// rate limits, records usage, and is the only code that talks to the provider.
type GatewayService struct {
	db       *gorm.DB
	cfg      *config.Config
	provider llm.Provider
	metrics  *metrics.Client
}

// NewGatewayService creates the LLM gateway. metricsClient may be nil.
func NewGatewayService(db *gorm.DB, cfg *config.Config, provider llm.Provider, metricsClient *metrics.Client) *GatewayService {
	return &GatewayService{db: db, cfg: cfg, provider: provider, metrics: metricsClient}
}

// ChatRequest is one gateway call. ServiceName labels the calling feature
// (e.g. "draft_generator") so usage can be sliced per feature.
type ChatRequest struct {
	UserID      uint
	ServiceName string
	Model       string
	Messages    []llm.Message
	Temperature float64
	MaxTokens   int
	Metadata    map[string]interface{}
}

// ChatCompletion runs the full gateway protocol: pre-call rate-limit check,
// provider call, usage log, counter update. Logging failures never fail the
// call.
func (s *GatewayService) ChatCompletion(ctx context.Context, req *ChatRequest) (*llm.ChatResponse, error) {
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel
	}

	if err := s.checkLimits(ctx, req.UserID); err != nil {
		s.logUsage(req, nil, models.LLMStatusRateLimited, err.Error(), 0)
		return nil, err
	}

	trace := observability.GetClient().StartTrace(ctx, req.ServiceName, map[string]interface{}{
		"user_id": req.UserID,
	})
	defer trace.Finish()
	gen := trace.Generation("chat_completion", nil)

	start := time.Now()
	resp, err := s.provider.ChatCompletion(ctx, &llm.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	duration := time.Since(start)

	if err != nil {
		gen.SetLevel("ERROR")
		gen.Finish()
		s.logUsage(req, nil, models.LLMStatusError, err.Error(), duration)
		return nil, fmt.Errorf("llm call failed: %w", err)
	}

	gen.LogChatCompletion(req.Model, req.Messages, resp, req.Metadata)
	gen.Finish()

	s.logUsage(req, resp, models.LLMStatusSuccess, "", duration)
	s.incrementCounters(req.UserID)
	if s.metrics != nil {
		s.metrics.RecordTokenUsage(req.Model, resp.Usage.TotalTokens, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	logger.LogLLMCall(req.UserID, req.ServiceName, req.Model, models.LLMStatusSuccess, resp.Usage.TotalTokens, duration)

	return resp, nil
}

// checkLimits consults the minute and day windows. Absent rows mean no usage
// yet; rows past their reset are treated as empty.
func (s *GatewayService) checkLimits(ctx context.Context, userID uint) error {
	now := time.Now().UTC()
	for _, limitType := range []string{models.LimitTypeMinute, models.LimitTypeDay} {
		var row models.LLMRateLimit
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND limit_type = ?", userID, limitType).
			First(&row).Error
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if now.Before(row.ResetAt) && row.CurrentCount >= row.LimitValue {
			return &RateLimitExceededError{
				LimitType:  limitType,
				LimitValue: row.LimitValue,
				ResetAt:    row.ResetAt,
			}
		}
	}
	return nil
}

// incrementCounters bumps every window after a successful call. Rows are
// created lazily on first use; the unique (user_id, limit_type) key collapses
// concurrent first-ever calls to a single row.
func (s *GatewayService) incrementCounters(userID uint) {
	now := time.Now().UTC()
	for _, limitType := range []string{models.LimitTypeMinute, models.LimitTypeDay} {
		row := models.LLMRateLimit{
			UserID:       userID,
			LimitType:    limitType,
			CurrentCount: 1,
			LimitValue:   s.limitFor(limitType),
			ResetAt:      NextReset(limitType, now),
		}
		res := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "limit_type"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			logger.Error("Failed to upsert rate-limit row", res.Error, logger.Fields{
				"user_id": userID, "limit_type": limitType,
			})
			continue
		}
		if res.RowsAffected == 1 {
			continue // fresh row with count=1
		}

		// Row exists: either the window expired (compare-reset) or we
		// increment in place. Both forms are single guarded statements.
		reset := s.db.Model(&models.LLMRateLimit{}).
			Where("user_id = ? AND limit_type = ? AND reset_at <= ?", userID, limitType, now).
			Updates(map[string]interface{}{
				"current_count": 1,
				"reset_at":      NextReset(limitType, now),
			})
		if reset.Error != nil {
			logger.Error("Failed to reset rate-limit window", reset.Error, logger.Fields{
				"user_id": userID, "limit_type": limitType,
			})
			continue
		}
		if reset.RowsAffected == 1 {
			continue
		}

		err := s.db.Model(&models.LLMRateLimit{}).
			Where("user_id = ? AND limit_type = ?", userID, limitType).
			Update("current_count", gorm.Expr("current_count + 1")).Error
		if err != nil {
			logger.Error("Failed to increment rate-limit counter", err, logger.Fields{
				"user_id": userID, "limit_type": limitType,
			})
		}
	}
}

func (s *GatewayService) limitFor(limitType string) int {
	switch limitType {
	case models.LimitTypeMinute:
		if s.cfg.LLMMinuteLimit > 0 {
			return s.cfg.LLMMinuteLimit
		}
	case models.LimitTypeDay:
		if s.cfg.LLMDayLimit > 0 {
			return s.cfg.LLMDayLimit
		}
	}
	return safeDefaultLimit
}

// NextReset aligns a window reset: minute and hour to the next whole
// boundary, day to the next UTC midnight, month to the first instant of the
// next month.
func NextReset(limitType string, now time.Time) time.Time {
	now = now.UTC()
	switch limitType {
	case models.LimitTypeMinute:
		return now.Truncate(time.Minute).Add(time.Minute)
	case models.LimitTypeHour:
		return now.Truncate(time.Hour).Add(time.Hour)
	case models.LimitTypeDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	case models.LimitTypeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default:
		return now.Add(time.Hour)
	}
}

// logUsage appends to llm_usage_logs. Failures degrade observability only.
func (s *GatewayService) logUsage(req *ChatRequest, resp *llm.ChatResponse, status, errMsg string, duration time.Duration) {
	metadata := models.JSONMap{"service_name": req.ServiceName}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	entry := models.LLMUsageLog{
		UserID:       req.UserID,
		ServiceName:  req.ServiceName,
		Model:        req.Model,
		Endpoint:     "chat_completion",
		Status:       status,
		ErrorMessage: errMsg,
		DurationMS:   duration.Milliseconds(),
		Metadata:     metadata,
	}
	if resp != nil {
		entry.TotalTokens = resp.Usage.TotalTokens
		entry.PromptTokens = resp.Usage.PromptTokens
		entry.CompletionTokens = resp.Usage.CompletionTokens
	}
	if err := s.db.Create(&entry).Error; err != nil {
		logger.Error("Failed to write LLM usage log", err, logger.Fields{
			"user_id": req.UserID, "service_name": req.ServiceName,
		})
	}
}

// RateLimitStatus is the caller-visible view of one window.
type RateLimitStatus struct {
	LimitType    string    `json:"limit_type"`
	CurrentCount int       `json:"current_count"`
	LimitValue   int       `json:"limit_value"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"reset_at"`
}

// GetRateLimitStatus returns the minute and day windows. Rows are not created
// by reads; absent or expired windows report zero usage with a computed reset.
func (s *GatewayService) GetRateLimitStatus(ctx context.Context, userID uint) ([]RateLimitStatus, error) {
	now := time.Now().UTC()
	statuses := make([]RateLimitStatus, 0, 2)
	for _, limitType := range []string{models.LimitTypeMinute, models.LimitTypeDay} {
		status := RateLimitStatus{
			LimitType:  limitType,
			LimitValue: s.limitFor(limitType),
			ResetAt:    NextReset(limitType, now),
		}

		var row models.LLMRateLimit
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND limit_type = ?", userID, limitType).
			First(&row).Error
		if err == nil && now.Before(row.ResetAt) {
			status.CurrentCount = row.CurrentCount
			status.LimitValue = row.LimitValue
			status.ResetAt = row.ResetAt
		} else if err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}

		status.Remaining = status.LimitValue - status.CurrentCount
		if status.Remaining < 0 {
			status.Remaining = 0
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// UsageSummary aggregates today's and this month's usage plus both windows.
type UsageSummary struct {
	CallsToday       int64             `json:"calls_today"`
	TokensToday      int64             `json:"tokens_today"`
	CallsThisMonth   int64             `json:"calls_this_month"`
	TokensThisMonth  int64             `json:"tokens_this_month"`
	RateLimits       []RateLimitStatus `json:"rate_limits"`
	EstimatedCostUSD float64           `json:"estimated_cost_usd"`
}

// GetUsageSummary returns the per-user usage rollup the dashboard shows.
func (s *GatewayService) GetUsageSummary(ctx context.Context, userID uint) (*UsageSummary, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	summary := &UsageSummary{}
	type agg struct {
		Calls  int64
		Tokens int64
	}

	var today agg
	err := s.db.WithContext(ctx).Model(&models.LLMUsageLog{}).
		Where("user_id = ? AND created_at >= ? AND status = ?", userID, dayStart, models.LLMStatusSuccess).
		Select("COUNT(*) as calls", "COALESCE(SUM(total_tokens), 0) as tokens").
		Scan(&today).Error
	if err != nil {
		return nil, err
	}
	summary.CallsToday = today.Calls
	summary.TokensToday = today.Tokens

	var month agg
	err = s.db.WithContext(ctx).Model(&models.LLMUsageLog{}).
		Where("user_id = ? AND created_at >= ? AND status = ?", userID, monthStart, models.LLMStatusSuccess).
		Select("COUNT(*) as calls", "COALESCE(SUM(total_tokens), 0) as tokens").
		Scan(&month).Error
	if err != nil {
		return nil, err
	}
	summary.CallsThisMonth = month.Calls
	summary.TokensThisMonth = month.Tokens

	summary.RateLimits, err = s.GetRateLimitStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Rough cost estimate over the month, priced per model.
	type modelAgg struct {
		Model            string
		PromptTokens     int64
		CompletionTokens int64
	}
	var perModel []modelAgg
	err = s.db.WithContext(ctx).Model(&models.LLMUsageLog{}).
		Where("user_id = ? AND created_at >= ? AND status = ?", userID, monthStart, models.LLMStatusSuccess).
		Select("model", "COALESCE(SUM(prompt_tokens), 0) as prompt_tokens", "COALESCE(SUM(completion_tokens), 0) as completion_tokens").
		Group("model").
		Scan(&perModel).Error
	if err != nil {
		return nil, err
	}
	for _, m := range perModel {
		summary.EstimatedCostUSD += observability.CalculateCost(m.Model, llm.Usage{
			PromptTokens:     int(m.PromptTokens),
			CompletionTokens: int(m.CompletionTokens),
		})
	}

	return summary, nil
}

// UsageStats is the N-day rollup, sliced per service.
type UsageStats struct {
	TotalCalls      int64            `json:"total_calls"`
	TotalTokens     int64            `json:"total_tokens"`
	ErrorCalls      int64            `json:"error_calls"`
	AvgDurationMS   float64          `json:"avg_duration_ms"`
	CallsPerService map[string]int64 `json:"calls_per_service"`
}

// GetUsageStats aggregates usage over the last days.
func (s *GatewayService) GetUsageStats(ctx context.Context, userID uint, days int) (*UsageStats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats := &UsageStats{CallsPerService: map[string]int64{}}
	err := s.db.WithContext(ctx).Model(&models.LLMUsageLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select(
			"COUNT(*) as total_calls",
			"COALESCE(SUM(total_tokens), 0) as total_tokens",
			"COALESCE(AVG(duration_ms), 0) as avg_duration_ms",
		).Scan(stats).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(&models.LLMUsageLog{}).
		Where("user_id = ? AND created_at >= ? AND status = ?", userID, since, models.LLMStatusError).
		Count(&stats.ErrorCalls).Error
	if err != nil {
		return nil, err
	}

	type serviceCount struct {
		ServiceName string
		Calls       int64
	}
	var perService []serviceCount
	err = s.db.WithContext(ctx).Model(&models.LLMUsageLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("service_name", "COUNT(*) as calls").
		Group("service_name").
		Scan(&perService).Error
	if err != nil {
		return nil, err
	}
	for _, sc := range perService {
		stats.CallsPerService[sc.ServiceName] = sc.Calls
	}

	return stats, nil
}

// GetUsageLogs returns the most recent usage log rows.
func (s *GatewayService) GetUsageLogs(ctx context.Context, userID uint, limit int) ([]models.LLMUsageLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.LLMUsageLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
