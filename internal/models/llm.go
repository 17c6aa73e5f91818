package models

import "time"

// Rate-limit windows
const (
	LimitTypeMinute = "minute"
	LimitTypeHour   = "hour"
	LimitTypeDay    = "day"
	LimitTypeMonth  = "month"
)

// LLM call statuses
const (
	LLMStatusSuccess     = "success"
	LLMStatusError       = "error"
	LLMStatusRateLimited = "rate_limited"
)

// LLMUsageLog is the append-only record of one model call.
type LLMUsageLog struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	User             User      `gorm:"foreignKey:UserID" json:"-"`
	ServiceName      string    `gorm:"not null;index" json:"service_name"`
	Model            string    `gorm:"not null" json:"model"`
	Endpoint         string    `json:"endpoint,omitempty"`
	Status           string    `gorm:"not null" json:"status"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message,omitempty"`
	TotalTokens      int       `gorm:"default:0" json:"total_tokens"`
	PromptTokens     int       `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int       `gorm:"default:0" json:"completion_tokens"`
	DurationMS       int64     `gorm:"default:0" json:"duration_ms"`
	Metadata         JSONMap   `gorm:"type:jsonb" json:"metadata"`
}

// LLMRateLimit is the per-(user, window) sliding counter. Rows are created
// lazily by the gateway on first use; CurrentCount never exceeds LimitValue
// between resets.
type LLMRateLimit struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_user_limit_type" json:"user_id"`
	LimitType    string    `gorm:"not null;uniqueIndex:idx_user_limit_type" json:"limit_type"`
	CurrentCount int       `gorm:"default:0" json:"current_count"`
	LimitValue   int       `gorm:"not null" json:"limit_value"`
	ResetAt      time.Time `gorm:"not null" json:"reset_at"`
}
