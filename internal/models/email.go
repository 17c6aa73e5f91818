package models

import "time"

// Email delivery statuses
const (
	EmailStatusQueued  = "queued"
	EmailStatusSending = "sending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// Tracking event types
const (
	TrackingEventOpen  = "open"
	TrackingEventClick = "click"
)

// EmailDeliveryLog records one delivery attempt chain per recipient.
type EmailDeliveryLog struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	DraftID      uint       `gorm:"not null;index" json:"draft_id"`
	Recipient    string     `gorm:"not null" json:"recipient"`
	Subject      string     `gorm:"type:text" json:"subject"`
	Status       string     `gorm:"not null;index" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`
	MessageID    string     `json:"message_id,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// EmailRateLimit is the per-user daily send counter, reset at UTC midnight.
type EmailRateLimit struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	CurrentCount int       `gorm:"default:0" json:"current_count"`
	LimitValue   int       `gorm:"not null" json:"limit_value"`
	ResetAt      time.Time `gorm:"not null" json:"reset_at"`
}

// Unsubscribe is the per-user suppression set. An address present here never
// receives another newsletter from that user.
type Unsubscribe struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_unsub_email" json:"user_id"`
	Email     string    `gorm:"not null;uniqueIndex:idx_user_unsub_email" json:"email"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
}

// Recipient statuses
const (
	RecipientStatusActive       = "active"
	RecipientStatusUnsubscribed = "unsubscribed"
)

// Recipient is one address on a user's newsletter list. Token authenticates
// unsubscribe and tracking links for this recipient.
type Recipient struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_recipient_email" json:"user_id"`
	Email     string    `gorm:"not null;uniqueIndex:idx_user_recipient_email" json:"email"`
	Name      string    `json:"name,omitempty"`
	Status    string    `gorm:"default:'active';index" json:"status"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
}

// EmailTrackingEvent records one open or click.
type EmailTrackingEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	DraftID   uint      `gorm:"not null;index" json:"draft_id"`
	Recipient string    `json:"recipient,omitempty"`
	EventType string    `gorm:"not null" json:"event_type"` // "open", "click"
	URL       string    `gorm:"type:text" json:"url,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}
