package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Draft statuses
const (
	DraftStatusGenerating = "generating"
	DraftStatusReady      = "ready"
	DraftStatusEditing    = "editing"
	DraftStatusPublished  = "published"
	DraftStatusFailed     = "failed"
)

// Draft section types
const (
	SectionTypeIntro      = "intro"
	SectionTypeTopic      = "topic"
	SectionTypeConclusion = "conclusion"
)

// DraftSection is one ordered block of a newsletter draft.
type DraftSection struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "intro", "topic", "conclusion"
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// DraftSections is the ordered section list stored as a JSON array.
type DraftSections []DraftSection

// Value implements driver.Valuer
func (s DraftSections) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *DraftSections) Scan(value interface{}) error {
	if value == nil {
		*s = DraftSections{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into DraftSections", value)
	}
	if len(data) == 0 {
		*s = DraftSections{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Draft is a structured newsletter artifact. A single row represents the
// draft from the generating placeholder through ready/failed and across
// regenerations; the ID never changes.
type Draft struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	User        User           `gorm:"foreignKey:UserID" json:"-"`
	Title       string         `gorm:"type:text" json:"title"`
	Sections    DraftSections  `gorm:"type:jsonb" json:"sections"`
	Status      string         `gorm:"default:'generating';index" json:"status"`
	Metadata    JSONMap        `gorm:"type:jsonb" json:"metadata"`
	GeneratedAt *time.Time     `json:"generated_at,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	EmailSent   bool           `gorm:"default:false" json:"email_sent"`
	EmailSentAt *time.Time     `json:"email_sent_at,omitempty"`
}

// Trend is a topic the detector judged significant for a user.
type Trend struct {
	ID                   uint      `gorm:"primarykey" json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	UserID               uint      `gorm:"not null;index" json:"user_id"`
	Topic                string    `gorm:"not null" json:"topic"`
	Score                float64   `gorm:"not null" json:"score"`
	Rationale            string    `gorm:"type:text" json:"rationale,omitempty"`
	SupportingContentIDs Int64List `gorm:"type:jsonb" json:"supporting_content_ids"`
	DetectedAt           time.Time `gorm:"index" json:"detected_at"`
}

// Feedback types
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

// Feedback is a reader signal on a draft, optionally scoped to a section.
type Feedback struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	DraftID   uint           `gorm:"not null;index" json:"draft_id"`
	Draft     Draft          `gorm:"foreignKey:DraftID" json:"-"`
	SectionID string         `json:"section_id,omitempty"`
	Type      string         `gorm:"not null" json:"type"` // "thumbs_up", "thumbs_down"
	Comment   string         `gorm:"type:text" json:"comment,omitempty"`
}
