package models

import (
	"time"

	"gorm.io/gorm"
)

// Source statuses
const (
	SourceStatusActive  = "active"
	SourceStatusError   = "error"
	SourceStatusPending = "pending"
)

// Source is a configured external provider endpoint owned by one user.
// Kind keys the connector registry; Config and Credentials are kind-specific.
type Source struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	User          User           `gorm:"foreignKey:UserID" json:"-"`
	Kind          string         `gorm:"not null;index" json:"kind"`
	Name          string         `gorm:"not null" json:"name"`
	URL           string         `json:"url,omitempty"`
	Config        JSONMap        `gorm:"type:jsonb" json:"config"`
	Credentials   JSONMap        `gorm:"type:jsonb" json:"-"`
	Status        string         `gorm:"default:'pending';index" json:"status"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message,omitempty"`
	LastCrawledAt *time.Time     `json:"last_crawled_at,omitempty"`
}

// ContentItem is a normalized unit of fetched source material.
// (source_id, url) is the delta-dedup key.
type ContentItem struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	SourceID    uint       `gorm:"not null;uniqueIndex:idx_source_url" json:"source_id"`
	Source      Source     `gorm:"foreignKey:SourceID" json:"-"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	ContentType string     `gorm:"not null" json:"content_type"`
	Title       string     `gorm:"type:text" json:"title"`
	Content     string     `gorm:"type:text" json:"content"`
	URL         string     `gorm:"not null;uniqueIndex:idx_source_url" json:"url"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	Metadata    JSONMap    `gorm:"type:jsonb" json:"metadata"`
}

// CrawlLog records the outcome of one source crawl within a batch.
type CrawlLog struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	SourceID        uint      `gorm:"not null;index" json:"source_id"`
	Status          string    `gorm:"not null" json:"status"` // "success", "error"
	ItemsFetched    int       `gorm:"default:0" json:"items_fetched"`
	ItemsNew        int       `gorm:"default:0" json:"items_new"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message,omitempty"`
	DurationSeconds float64   `gorm:"default:0" json:"duration_seconds"`
}
