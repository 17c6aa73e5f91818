package database

import (
	"fmt"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres connection pool.
func Connect(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate runs schema migrations for every entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserSchedule{},
		&models.Source{},
		&models.ContentItem{},
		&models.CrawlLog{},
		&models.Trend{},
		&models.ContentSummary{},
		&models.VoiceSample{},
		&models.Draft{},
		&models.Feedback{},
		&models.LLMUsageLog{},
		&models.LLMRateLimit{},
		&models.EmailDeliveryLog{},
		&models.EmailRateLimit{},
		&models.Unsubscribe{},
		&models.Recipient{},
		&models.EmailTrackingEvent{},
	)
}
