// Package scheduler maintains the per-user crawl and draft jobs. All timing
// is UTC; per-user timezones are a known limitation.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/crawler"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	// Reconciliation re-reads every user's preferences on a fixed period.
	reconcileInterval = 30 * time.Minute
	// Due crawls are swept more often so next_scheduled_crawl_at is honored
	// within a few minutes.
	crawlSweepInterval = 5 * time.Minute

	draftTickTimeout = 5 * time.Minute
	crawlTickTimeout = 15 * time.Minute

	defaultScheduleTime = "08:00"
)

// Scheduler runs the cron loop: a reconcile tick, a crawl sweep, and one
// draft job per user derived from their preferences.
type Scheduler struct {
	db           *gorm.DB
	cron         *cron.Cron
	orchestrator *crawler.Orchestrator
	drafts       *services.DraftService
	preferences  *services.PreferencesService
	email        *services.EmailService

	mu        sync.Mutex
	draftJobs map[uint]draftJob
}

type draftJob struct {
	spec    string
	entryID cron.EntryID
}

func New(
	db *gorm.DB,
	orchestrator *crawler.Orchestrator,
	drafts *services.DraftService,
	preferences *services.PreferencesService,
	email *services.EmailService,
) *Scheduler {
	return &Scheduler{
		db:           db,
		cron:         cron.New(cron.WithLocation(time.UTC)),
		orchestrator: orchestrator,
		drafts:       drafts,
		preferences:  preferences,
		email:        email,
		draftJobs:    make(map[uint]draftJob),
	}
}

// Start installs the fixed jobs, runs one reconciliation immediately, and
// starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(everySpec(reconcileInterval), s.reconcile)
	if err != nil {
		return fmt.Errorf("failed to install reconcile job: %w", err)
	}
	_, err = s.cron.AddFunc(everySpec(crawlSweepInterval), s.sweepDueCrawls)
	if err != nil {
		return fmt.Errorf("failed to install crawl sweep job: %w", err)
	}

	s.reconcile()
	s.cron.Start()
	logger.Info("Scheduler started", logger.Fields{"draft_jobs": len(s.draftJobs)})
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// reconcile installs or updates each active user's draft job from their
// preferences. Idempotent: identical preferences leave jobs unchanged;
// changed times replace the entry atomically. Missed ticks are not
// back-filled.
func (s *Scheduler) reconcile() {
	var userIDs []uint
	err := s.db.Model(&models.User{}).
		Where("is_active = ?", true).
		Order("id").
		Pluck("id", &userIDs).Error
	if err != nil {
		logger.Error("Scheduler reconcile failed to list users", err, nil)
		return
	}

	seen := make(map[uint]bool, len(userIDs))
	for _, userID := range userIDs {
		prefs, err := s.preferences.Get(context.Background(), userID)
		if err != nil {
			logger.Error("Scheduler reconcile failed to read preferences", err, logger.Fields{"user_id": userID})
			continue
		}
		spec := DraftCronSpec(
			prefs.GetString("newsletter_frequency", "weekly"),
			prefs.GetString("draft_schedule_time", defaultScheduleTime),
		)
		seen[userID] = true
		s.installDraftJob(userID, spec)
	}

	// Drop jobs for deactivated users.
	s.mu.Lock()
	for userID, job := range s.draftJobs {
		if !seen[userID] {
			s.cron.Remove(job.entryID)
			delete(s.draftJobs, userID)
		}
	}
	s.mu.Unlock()
}

func (s *Scheduler) installDraftJob(userID uint, spec string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.draftJobs[userID]; ok {
		if existing.spec == spec {
			return
		}
		s.cron.Remove(existing.entryID)
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.draftTick(userID) })
	if err != nil {
		logger.Error("Failed to install draft job", err, logger.Fields{"user_id": userID, "spec": spec})
		delete(s.draftJobs, userID)
		return
	}
	s.draftJobs[userID] = draftJob{spec: spec, entryID: entryID}
}

// DraftCronSpec maps newsletter_frequency + draft_schedule_time onto a cron
// spec: daily fires every day at the hour:minute, weekly every Monday.
// Unrecognized frequencies behave as daily.
func DraftCronSpec(frequency, scheduleTime string) string {
	hour, minute := ParseScheduleTime(scheduleTime)
	switch frequency {
	case "weekly":
		return fmt.Sprintf("%d %d * * 1", minute, hour)
	default: // "daily", "custom"
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}
}

// ParseScheduleTime parses "HH:MM", falling back to 08:00 on bad input.
func ParseScheduleTime(s string) (hour, minute int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 8, 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 8, 0
	}
	return h, m
}

// draftTick generates one scheduled draft for the user and notifies them
// when it lands.
func (s *Scheduler) draftTick(userID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), draftTickTimeout)
	defer cancel()

	draft, err := s.drafts.Generate(ctx, userID, services.GenerateOptions{})
	if err != nil {
		logger.Error("Scheduled draft generation failed", err, logger.Fields{"user_id": userID})
		return
	}

	// Generation runs in the background; poll the row briefly so the
	// ready notification fires from the same tick.
	deadline := time.Now().Add(draftTickTimeout)
	for time.Now().Before(deadline) {
		var row models.Draft
		if err := s.db.First(&row, draft.ID).Error; err != nil {
			return
		}
		switch row.Status {
		case models.DraftStatusReady:
			if err := s.email.SendDraftReadyNotification(ctx, userID, draft.ID); err != nil {
				logger.Error("Draft-ready notification failed", err, logger.Fields{"user_id": userID, "draft_id": draft.ID})
			}
			return
		case models.DraftStatusFailed:
			return
		}
		time.Sleep(2 * time.Second)
	}
}

// sweepDueCrawls runs a batch for every user whose next_scheduled_crawl_at
// has passed (or was never set despite active sources).
func (s *Scheduler) sweepDueCrawls() {
	now := time.Now().UTC()
	var due []models.UserSchedule
	err := s.db.
		Where("is_crawling = ?", false).
		Where("next_scheduled_crawl_at IS NULL OR next_scheduled_crawl_at <= ?", now).
		Find(&due).Error
	if err != nil {
		logger.Error("Crawl sweep query failed", err, nil)
		return
	}

	for _, schedule := range due {
		var activeSources int64
		if err := s.db.Model(&models.Source{}).
			Where("user_id = ? AND status = ?", schedule.UserID, models.SourceStatusActive).
			Count(&activeSources).Error; err != nil || activeSources == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), crawlTickTimeout)
		if _, err := s.orchestrator.CrawlUser(ctx, schedule.UserID); err != nil {
			logger.Warn("Scheduled crawl skipped or failed", logger.Fields{
				"user_id": schedule.UserID, "error": err.Error(),
			})
		}
		cancel()
	}
}
