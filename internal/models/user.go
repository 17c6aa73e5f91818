package models

import (
	"time"

	"gorm.io/gorm"
)

// Voice profile discriminants. Only VoiceSourceAnalyzed counts as a
// personalized voice; every other value is a default document.
const (
	VoiceSourceAnalyzed        = "analyzed"
	VoiceSourceDefault         = "default"
	VoiceSourceDefaultError    = "default_error"
	VoiceSourceDefaultFallback = "default_fallback"
)

type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Name         string         `json:"name"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	Tier         string         `gorm:"default:'standard'" json:"tier"` // "standard", "workspace"
	Preferences  JSONMap        `gorm:"type:jsonb" json:"preferences"`
	VoiceProfile JSONMap        `gorm:"type:jsonb" json:"voice_profile"`
}

// UserSchedule is the per-user batch-crawl schedule row. Exactly one exists
// per user; IsCrawling doubles as the batch mutex.
type UserSchedule struct {
	ID                       uint       `gorm:"primarykey" json:"id"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	UserID                   uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	User                     User       `gorm:"foreignKey:UserID" json:"-"`
	IsCrawling               bool       `gorm:"default:false" json:"is_crawling"`
	CrawlFrequencyHours      int        `gorm:"default:24" json:"crawl_frequency_hours"`
	LastBatchCrawlAt         *time.Time `json:"last_batch_crawl_at,omitempty"`
	NextScheduledCrawlAt     *time.Time `json:"next_scheduled_crawl_at,omitempty"`
	LastCrawlSources         int        `gorm:"default:0" json:"last_crawl_sources"`
	LastCrawlItemsFetched    int        `gorm:"default:0" json:"last_crawl_items_fetched"`
	LastCrawlItemsNew        int        `gorm:"default:0" json:"last_crawl_items_new"`
	LastCrawlDurationSeconds float64    `gorm:"default:0" json:"last_crawl_duration_seconds"`
}

// HasAnalyzedVoice reports whether the stored profile is a real analyzed
// voice rather than one of the default documents.
func (u *User) HasAnalyzedVoice() bool {
	return u.VoiceProfile.GetString("source", VoiceSourceDefault) == VoiceSourceAnalyzed
}
