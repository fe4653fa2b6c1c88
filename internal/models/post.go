package models

import (
	"time"
)

// Post is a top-level feed item. Posts are never hard-deleted.
type Post struct {
	ID           string     `gorm:"type:varchar(36);primaryKey;column:id" json:"id"`
	AuthorID     string     `gorm:"type:varchar(36);not null;index:idx_posts_author_created,priority:1;column:author_id" json:"authorId"`
	Body         string     `gorm:"type:text;not null;column:body" json:"body"`
	Visibility   string     `gorm:"type:varchar(16);not null;column:visibility" json:"visibility"`
	GroupID      *string    `gorm:"type:varchar(36);column:group_id" json:"groupId,omitempty"`
	Imported     bool       `gorm:"not null;column:imported" json:"imported"`
	IsDeleted    bool       `gorm:"not null;column:is_deleted" json:"isDeleted"`
	DeletedAt    *time.Time `gorm:"column:deleted_at" json:"deletedAt,omitempty"`
	LikeCount    int64      `gorm:"not null;column:like_count" json:"likeCount"`
	ShareCount   int64      `gorm:"not null;column:share_count" json:"shareCount"`
	CommentCount int64      `gorm:"not null;column:comment_count" json:"commentCount"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_posts_author_created,priority:2;index:idx_posts_created;column:created_at" json:"createdAt"`

	Media []Media `gorm:"foreignKey:PostID;references:ID" json:"media"`

	// Viewer state, filled per request
	LikedByUser    bool             `gorm:"-" json:"likedByUser"`
	ViewerReaction *string          `gorm:"-" json:"viewerReaction"`
	Reactions      map[string]int64 `gorm:"-" json:"reactions,omitempty"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// Media is an ordered, immutable attachment of a post.
type Media struct {
	ID         string `gorm:"type:varchar(36);primaryKey;column:id" json:"-"`
	PostID     string `gorm:"type:varchar(36);not null;index;column:post_id" json:"-"`
	Position   int    `gorm:"not null;column:position" json:"position"`
	Type       string `gorm:"type:varchar(8);not null;column:type" json:"type"`
	URL        string `gorm:"type:text;not null;column:url" json:"url"`
	MediumURL  string `gorm:"type:text;column:medium_url" json:"mediumUrl,omitempty"`
	SmallURL   string `gorm:"type:text;column:small_url" json:"smallUrl,omitempty"`
	PosterURL  string `gorm:"type:text;column:poster_url" json:"posterUrl,omitempty"`
	Width      int    `gorm:"column:width" json:"width,omitempty"`
	Height     int    `gorm:"column:height" json:"height,omitempty"`
	Bytes      int64  `gorm:"column:bytes" json:"bytes,omitempty"`
	DurationMS *int   `gorm:"column:duration_ms" json:"durationMs,omitempty"`
	AltText    string `gorm:"type:text;column:alt_text" json:"altText,omitempty"`
}

// TableName specifies the table name for Media
func (Media) TableName() string {
	return "post_media"
}

// Post visibility values
const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends"
	VisibilityPrivate = "private"
)

// Media types
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Timestamp returns the current UTC time at the store's microsecond precision, so cursors
// built from in-memory rows match what the store returns.
func Timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
