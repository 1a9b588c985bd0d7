package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tiko/mediacache/models"
	"github.com/tiko/mediacache/utils"
)

// MediaSource is the source of truth behind the public media cache.
type MediaSource interface {
	// ListPublic returns every non-private media item, newest first.
	ListPublic(ctx context.Context) ([]models.MediaItem, error)
}

// GormMediaSource reads media rows through gorm.
type GormMediaSource struct {
	db *gorm.DB
}

// NewGormMediaSource creates a new GormMediaSource instance.
func NewGormMediaSource(db *gorm.DB) *GormMediaSource {
	return &GormMediaSource{db: db}
}

func (s *GormMediaSource) publicQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("is_private = ?", false).
		Order("created_at DESC")
}

func (s *GormMediaSource) ListPublic(ctx context.Context) ([]models.MediaItem, error) {
	var items []models.MediaItem
	if err := s.publicQuery(ctx).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("query public media: %w", err)
	}
	return sanitizePublic(items), nil
}

// sanitizePublic strips markup from caption fields and re-applies the privacy filter.
func sanitizePublic(items []models.MediaItem) []models.MediaItem {
	for i := range items {
		items[i].AltText = utils.SanitizePtr(items[i].AltText)
		items[i].Title = utils.SanitizePtr(items[i].Title)
		items[i].Description = utils.SanitizePtr(items[i].Description)
	}
	return models.PublicNewestFirst(items)
}
