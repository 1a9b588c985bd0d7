package models

import (
	"sort"
	"time"
)

// MediaItem describes one uploaded media asset as stored in the media table.
type MediaItem struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Filename    string    `gorm:"size:512;not null" json:"filename"`
	FileSize    int64     `gorm:"not null" json:"file_size"`
	MimeType    string    `gorm:"size:128;not null" json:"mime_type"`
	Width       *int      `json:"width"`
	Height      *int      `json:"height"`
	AltText     *string   `gorm:"size:1024" json:"alt_text"`
	Title       *string   `gorm:"size:255" json:"title"`
	Description *string   `gorm:"type:text" json:"description"`
	Folder      *string   `gorm:"size:512" json:"folder"`
	Tags        []string  `gorm:"serializer:json;type:json" json:"tags"`
	IsPrivate   bool      `gorm:"index;not null;default:false" json:"is_private"`
	OriginalURL string    `gorm:"size:1024;not null" json:"original_url"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName keeps the table name shared with the upload pipeline.
func (MediaItem) TableName() string {
	return "media"
}

// PublicNewestFirst drops private items and orders the rest by creation time, newest first.
// The result is never nil.
func PublicNewestFirst(items []MediaItem) []MediaItem {
	out := make([]MediaItem, 0, len(items))
	for _, it := range items {
		if it.IsPrivate {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
