package services

import (
	"context"

	"github.com/creatorpulse/creatorpulse-api/internal/connectors"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"gorm.io/gorm"
)

// SourceService manages a user's configured sources. Creation and updates
// validate against the provider synchronously, so a persisted source has
// already passed its connector's shape and reachability checks.
type SourceService struct {
	db       *gorm.DB
	registry *connectors.Registry
}

func NewSourceService(db *gorm.DB, registry *connectors.Registry) *SourceService {
	return &SourceService{db: db, registry: registry}
}

// CreateSourceInput is the caller-supplied shape of a new source.
type CreateSourceInput struct {
	Kind        string                 `json:"kind"`
	Name        string                 `json:"name"`
	URL         string                 `json:"url"`
	Config      map[string]interface{} `json:"config"`
	Credentials map[string]interface{} `json:"credentials"`
}

// Create validates the source against its provider and persists it active.
// Validation failures surface synchronously; nothing is stored.
func (s *SourceService) Create(ctx context.Context, userID uint, input CreateSourceInput) (*models.Source, error) {
	if input.Config == nil {
		input.Config = map[string]interface{}{}
	}
	if input.Credentials == nil {
		input.Credentials = map[string]interface{}{}
	}

	connector, err := s.registry.New(input.Kind, 0, input.Config, input.Credentials)
	if err != nil {
		return nil, err
	}
	if err := connector.Validate(ctx); err != nil {
		return nil, err
	}

	source := models.Source{
		UserID:      userID,
		Kind:        input.Kind,
		Name:        input.Name,
		URL:         input.URL,
		Config:      models.JSONMap(input.Config), // may have been normalized by Validate
		Credentials: models.JSONMap(input.Credentials),
		Status:      models.SourceStatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&source).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// UpdateSourceInput carries the mutable fields; nil maps mean "unchanged".
type UpdateSourceInput struct {
	Name        *string                `json:"name"`
	URL         *string                `json:"url"`
	Config      map[string]interface{} `json:"config"`
	Credentials map[string]interface{} `json:"credentials"`
}

// Update applies changes and re-validates when config or credentials moved.
func (s *SourceService) Update(ctx context.Context, userID, sourceID uint, input UpdateSourceInput) (*models.Source, error) {
	source, err := s.Get(ctx, userID, sourceID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		source.Name = *input.Name
	}
	if input.URL != nil {
		source.URL = *input.URL
	}

	revalidate := false
	if input.Config != nil {
		source.Config = models.JSONMap(input.Config)
		revalidate = true
	}
	if input.Credentials != nil {
		source.Credentials = models.JSONMap(input.Credentials)
		revalidate = true
	}

	if revalidate {
		connector, err := s.registry.New(source.Kind, source.ID, source.Config, source.Credentials)
		if err != nil {
			return nil, err
		}
		if err := connector.Validate(ctx); err != nil {
			return nil, err
		}
		source.Status = models.SourceStatusActive
		source.ErrorMessage = ""
	}

	if err := s.db.WithContext(ctx).Save(source).Error; err != nil {
		return nil, err
	}
	return source, nil
}

// Get returns one source scoped to its owner.
func (s *SourceService) Get(ctx context.Context, userID, sourceID uint) (*models.Source, error) {
	var source models.Source
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sourceID, userID).
		First(&source).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

// List returns the user's sources in creation order.
func (s *SourceService) List(ctx context.Context, userID uint) ([]models.Source, error) {
	var sources []models.Source
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&sources).Error
	return sources, err
}

// Delete removes a source and its content items.
func (s *SourceService) Delete(ctx context.Context, userID, sourceID uint) error {
	source, err := s.Get(ctx, userID, sourceID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", source.ID).Delete(&models.ContentItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(source).Error
	})
}

// Kinds enumerates the registered source kinds.
func (s *SourceService) Kinds() []string {
	return s.registry.Kinds()
}

// CredentialSchema returns the required credential and config keys for one
// kind, for UI introspection.
func (s *SourceService) CredentialSchema(kind string) (credentials, config []string, err error) {
	return s.registry.CredentialSchema(kind)
}
