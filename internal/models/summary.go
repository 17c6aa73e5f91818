package models

import "time"

// Summary length bands
const (
	SummaryTypeBrief    = "brief"
	SummaryTypeStandard = "standard"
	SummaryTypeDetailed = "detailed"
)

// ContentSummary is the cached structured summary of one content item.
// (content_item_id, summary_type) is unique; recomputation overwrites.
type ContentSummary struct {
	ID            uint        `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ContentItemID uint        `gorm:"not null;uniqueIndex:idx_content_summary_type" json:"content_item_id"`
	ContentItem   ContentItem `gorm:"foreignKey:ContentItemID" json:"-"`
	UserID        uint        `gorm:"not null;index" json:"user_id"`
	SummaryType   string      `gorm:"not null;uniqueIndex:idx_content_summary_type" json:"summary_type"`
	Title         string      `gorm:"type:text" json:"title"`
	KeyPoints     StringList  `gorm:"type:jsonb" json:"key_points"`
	Summary       string      `gorm:"type:text" json:"summary"`
	Metadata      JSONMap     `gorm:"type:jsonb" json:"metadata"` // topics, sentiment, relevance_score
}

// VoiceSample is one uploaded writing sample, already decoded to plain text
// by the upload layer.
type VoiceSample struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Filename  string    `json:"filename,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	WordCount int       `gorm:"default:0" json:"word_count"`
}
