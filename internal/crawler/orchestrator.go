// Package crawler runs per-user batch crawls over the connector registry.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/connectors"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrBatchInProgress is returned when a user's batch mutex is already held.
var ErrBatchInProgress = errors.New("a batch crawl is already in progress for this user")

// Cross-user batches run in parallel up to this bound; within one user,
// sources are crawled strictly in order.
const maxParallelUsers = 4

// Orchestrator crawls every active source of a user as one batch, guarded by
// the schedule row's is_crawling mutex.
type Orchestrator struct {
	db       *gorm.DB
	registry *connectors.Registry
}

// NewOrchestrator creates a crawl orchestrator.
func NewOrchestrator(db *gorm.DB, registry *connectors.Registry) *Orchestrator {
	return &Orchestrator{db: db, registry: registry}
}

// BatchResult summarizes one user's batch.
type BatchResult struct {
	UserID       uint    `json:"user_id"`
	Sources      int     `json:"sources"`
	ItemsFetched int     `json:"items_fetched"`
	ItemsNew     int     `json:"items_new"`
	Errors       int     `json:"errors"`
	Skipped      bool    `json:"skipped"`
	DurationSecs float64 `json:"duration_seconds"`
}

// CrawlAllSources iterates every user owning at least one active source and
// runs their batch. Users whose mutex is held are skipped, never blocked on.
func (o *Orchestrator) CrawlAllSources(ctx context.Context) ([]BatchResult, error) {
	var userIDs []uint
	err := o.db.WithContext(ctx).Model(&models.Source{}).
		Where("status = ?", models.SourceStatusActive).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate users: %w", err)
	}

	results := make([]BatchResult, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUsers)
	for i, userID := range userIDs {
		g.Go(func() error {
			result, err := o.CrawlUser(gctx, userID)
			if errors.Is(err, ErrBatchInProgress) {
				logger.Info("Skipping user, batch already in progress", logger.Fields{"user_id": userID})
				results[i] = BatchResult{UserID: userID, Skipped: true}
				return nil
			}
			if err != nil {
				logger.Error("Batch crawl failed", err, logger.Fields{"user_id": userID})
				results[i] = BatchResult{UserID: userID, Errors: 1}
				return nil
			}
			results[i] = *result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// CrawlUser runs one batch for one user. The is_crawling flag is acquired
// atomically; a second concurrent batch gets ErrBatchInProgress.
func (o *Orchestrator) CrawlUser(ctx context.Context, userID uint) (*BatchResult, error) {
	schedule, err := o.ensureSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Atomic batch start: flip is_crawling only if it was false.
	acquire := o.db.WithContext(ctx).Model(&models.UserSchedule{}).
		Where("id = ? AND is_crawling = ?", schedule.ID, false).
		Update("is_crawling", true)
	if acquire.Error != nil {
		return nil, acquire.Error
	}
	if acquire.RowsAffected == 0 {
		return nil, ErrBatchInProgress
	}

	start := time.Now().UTC()
	result := &BatchResult{UserID: userID}

	var sources []models.Source
	if err := o.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SourceStatusActive).
		Order("id").
		Find(&sources).Error; err != nil {
		o.completeBatch(schedule, result, start)
		return nil, err
	}

	for i := range sources {
		if ctx.Err() != nil {
			// Cancelled mid-batch: partial source updates stay durable,
			// the mutex is released by completeBatch below.
			break
		}
		fetched, inserted, err := o.crawlSource(ctx, &sources[i])
		result.Sources++
		result.ItemsFetched += fetched
		result.ItemsNew += inserted
		if err != nil {
			result.Errors++
		}
	}

	o.completeBatch(schedule, result, start)
	logger.LogCrawlBatch(userID, result.Sources, result.ItemsFetched, result.ItemsNew, time.Since(start))
	return result, nil
}

// completeBatch releases the mutex and records the run. It deliberately
// does not use the request context so cancellation cannot leave the flag
// stuck.
func (o *Orchestrator) completeBatch(schedule *models.UserSchedule, result *BatchResult, start time.Time) {
	now := time.Now().UTC()
	duration := now.Sub(start)
	result.DurationSecs = duration.Seconds()

	next := now.Add(time.Duration(schedule.CrawlFrequencyHours) * time.Hour)
	err := o.db.Model(&models.UserSchedule{}).Where("id = ?", schedule.ID).
		Updates(map[string]interface{}{
			"is_crawling":                 false,
			"last_batch_crawl_at":         now,
			"next_scheduled_crawl_at":     next,
			"last_crawl_sources":          result.Sources,
			"last_crawl_items_fetched":    result.ItemsFetched,
			"last_crawl_items_new":        result.ItemsNew,
			"last_crawl_duration_seconds": result.DurationSecs,
		}).Error
	if err != nil {
		logger.Error("Failed to complete batch", err, logger.Fields{"user_id": schedule.UserID})
	}
}

// crawlSource crawls one source and records its outcome. Failures mark the
// source but never abort the batch; rate-limit errors return immediately
// with a retry hint instead of sleeping.
func (o *Orchestrator) crawlSource(ctx context.Context, source *models.Source) (fetched, inserted int, err error) {
	start := time.Now()

	connector, err := o.registry.New(source.Kind, source.ID, source.Config, source.Credentials)
	if err != nil {
		o.markSourceError(ctx, source, err)
		o.logCrawl(source, models.CrawlLog{Status: "error", ErrorMessage: err.Error()}, start)
		return 0, 0, err
	}

	if err := connector.Validate(ctx); err != nil {
		o.markSourceError(ctx, source, err)
		o.logCrawl(source, models.CrawlLog{Status: "error", ErrorMessage: err.Error()}, start)
		return 0, 0, err
	}
	// Validate may have normalized config (e.g. resolving a handle);
	// persist so the resolution happens only once.
	o.db.WithContext(ctx).Model(source).Update("config", source.Config)

	items, err := connector.Fetch(ctx, source.LastCrawledAt)
	if err != nil {
		o.markSourceError(ctx, source, err)
		o.logCrawl(source, models.CrawlLog{Status: "error", ErrorMessage: err.Error()}, start)
		return 0, 0, err
	}

	fetched = len(items)
	for _, item := range items {
		if item.URL == "" {
			continue
		}
		var publishedAt *time.Time
		if !item.PublishedAt.IsZero() {
			t := item.PublishedAt.UTC()
			publishedAt = &t
		}
		row := models.ContentItem{
			SourceID:    source.ID,
			UserID:      source.UserID,
			ContentType: item.ContentType,
			Title:       item.Title,
			Content:     item.Content,
			URL:         item.URL,
			PublishedAt: publishedAt,
			Metadata:    models.JSONMap(item.Metadata),
		}
		// (source_id, url) dedup: conflicting inserts are no-ops.
		res := o.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_id"}, {Name: "url"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			logger.Error("Failed to insert content item", res.Error, logger.Fields{
				"source_id": source.ID, "url": item.URL,
			})
			continue
		}
		inserted += int(res.RowsAffected)
	}

	now := time.Now().UTC()
	source.Status = models.SourceStatusActive
	source.ErrorMessage = ""
	source.LastCrawledAt = &now
	if err := o.db.WithContext(ctx).Model(source).
		Updates(map[string]interface{}{
			"status":          models.SourceStatusActive,
			"error_message":   "",
			"last_crawled_at": now,
		}).Error; err != nil {
		return fetched, inserted, err
	}

	o.logCrawl(source, models.CrawlLog{
		Status:       "success",
		ItemsFetched: fetched,
		ItemsNew:     inserted,
	}, start)
	return fetched, inserted, nil
}

func (o *Orchestrator) markSourceError(ctx context.Context, source *models.Source, cause error) {
	message := cause.Error()
	if errors.Is(cause, connectors.ErrRateLimited) {
		message = cause.Error() // carries the 15-minute retry hint
	}
	source.Status = models.SourceStatusError
	source.ErrorMessage = message
	if err := o.db.WithContext(ctx).Model(source).
		Updates(map[string]interface{}{
			"status":        models.SourceStatusError,
			"error_message": message,
		}).Error; err != nil {
		logger.Error("Failed to mark source error", err, logger.Fields{"source_id": source.ID})
	}
}

func (o *Orchestrator) logCrawl(source *models.Source, entry models.CrawlLog, start time.Time) {
	entry.UserID = source.UserID
	entry.SourceID = source.ID
	entry.DurationSeconds = time.Since(start).Seconds()
	if err := o.db.Create(&entry).Error; err != nil {
		logger.Error("Failed to write crawl log", err, logger.Fields{"source_id": source.ID})
	}
}

// ensureSchedule returns the user's schedule row, creating it with defaults
// when absent.
func (o *Orchestrator) ensureSchedule(ctx context.Context, userID uint) (*models.UserSchedule, error) {
	var schedule models.UserSchedule
	err := o.db.WithContext(ctx).
		Where(models.UserSchedule{UserID: userID}).
		Attrs(models.UserSchedule{CrawlFrequencyHours: 24}).
		FirstOrCreate(&schedule).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule for user %d: %w", userID, err)
	}
	return &schedule, nil
}

// SyncSource crawls a single source outside a batch. The batch mutex is not
// taken; per-source sync is a user-triggered action on one row.
func (o *Orchestrator) SyncSource(ctx context.Context, userID, sourceID uint) (fetched, inserted int, err error) {
	var source models.Source
	if err := o.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sourceID, userID).
		First(&source).Error; err != nil {
		return 0, 0, err
	}
	return o.crawlSource(ctx, &source)
}

// ReactivateSource flips one errored source back to active and clears the
// error message atomically. It does not trigger a crawl.
func (o *Orchestrator) ReactivateSource(ctx context.Context, userID, sourceID uint) error {
	res := o.db.WithContext(ctx).Model(&models.Source{}).
		Where("id = ? AND user_id = ? AND status = ?", sourceID, userID, models.SourceStatusError).
		Updates(map[string]interface{}{
			"status":        models.SourceStatusActive,
			"error_message": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("source %d is not in error state", sourceID)
	}
	return nil
}

// ReactivateAllSources reactivates every errored source of a user and
// returns how many were flipped.
func (o *Orchestrator) ReactivateAllSources(ctx context.Context, userID uint) (int64, error) {
	res := o.db.WithContext(ctx).Model(&models.Source{}).
		Where("user_id = ? AND status = ?", userID, models.SourceStatusError).
		Updates(map[string]interface{}{
			"status":        models.SourceStatusActive,
			"error_message": "",
		})
	return res.RowsAffected, res.Error
}

// BatchStatus returns the schedule row and recent crawl logs for a user.
func (o *Orchestrator) BatchStatus(ctx context.Context, userID uint, logLimit int) (*models.UserSchedule, []models.CrawlLog, error) {
	schedule, err := o.ensureSchedule(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var logs []models.CrawlLog
	if logLimit <= 0 {
		logLimit = 50
	}
	err = o.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(logLimit).
		Find(&logs).Error
	return schedule, logs, err
}
