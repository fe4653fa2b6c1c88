package models

import (
	"time"
)

// LinkPreview caches the outcome of fetching a URL, including failures.
// Status is HTTP-like: 200 on success, 408 timeout, 413 oversize, the upstream
// status for non-2xx, 0 for network errors.
type LinkPreview struct {
	URL         string    `gorm:"type:text;primaryKey;column:url" json:"url"`
	Status      int       `gorm:"not null;column:status" json:"status"`
	Title       string    `gorm:"type:text;column:title" json:"title,omitempty"`
	Description string    `gorm:"type:text;column:description" json:"description,omitempty"`
	ImageURL    string    `gorm:"type:text;column:image_url" json:"imageUrl,omitempty"`
	SiteName    string    `gorm:"type:text;column:site_name" json:"siteName,omitempty"`
	FetchedAt   time.Time `gorm:"not null;column:fetched_at" json:"fetchedAt"`
	ExpiresAt   time.Time `gorm:"not null;index;column:expires_at" json:"expiresAt"`
}

// TableName specifies the table name for LinkPreview
func (LinkPreview) TableName() string {
	return "link_previews"
}

// OK reports whether the fetch succeeded.
func (p *LinkPreview) OK() bool {
	return p.Status == 200
}
