package models

import (
	"time"
)

// Like marks one user liking one post or comment. The primary key makes a second like a no-op.
type Like struct {
	TargetKind string    `gorm:"type:varchar(8);primaryKey;column:target_kind"`
	TargetID   string    `gorm:"type:varchar(36);primaryKey;column:target_id"`
	UserID     string    `gorm:"type:varchar(36);primaryKey;column:user_id"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "likes"
}

// Reaction is one user's single emoji on a target.
type Reaction struct {
	TargetKind string    `gorm:"type:varchar(8);primaryKey;column:target_kind"`
	TargetID   string    `gorm:"type:varchar(36);primaryKey;column:target_id"`
	UserID     string    `gorm:"type:varchar(36);primaryKey;column:user_id"`
	Emoji      string    `gorm:"type:varchar(16);not null;column:emoji"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
	UpdatedAt  time.Time `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Reaction
func (Reaction) TableName() string {
	return "reactions"
}

// ReactionCount is the denormalized per-emoji aggregate of a target.
type ReactionCount struct {
	TargetKind string `gorm:"type:varchar(8);primaryKey;column:target_kind"`
	TargetID   string `gorm:"type:varchar(36);primaryKey;column:target_id"`
	Emoji      string `gorm:"type:varchar(16);primaryKey;column:emoji"`
	Total      int64  `gorm:"not null;column:total"`
}

// TableName specifies the table name for ReactionCount
func (ReactionCount) TableName() string {
	return "reaction_counts"
}

// Target kinds
const (
	TargetPost    = "post"
	TargetComment = "comment"
)

// Reaction emoji
const (
	EmojiThumbsUp = "👍"
	EmojiHeart    = "❤️"
	EmojiLaugh    = "😂"
	EmojiWow      = "😮"
	EmojiSad      = "😢"
	EmojiFire     = "🔥"
)

// Emojis is the closed set of allowed reactions, in display order.
var Emojis = []string{EmojiThumbsUp, EmojiHeart, EmojiLaugh, EmojiWow, EmojiSad, EmojiFire}

// IsValidEmoji reports whether e is in the reaction set.
func IsValidEmoji(e string) bool {
	for _, allowed := range Emojis {
		if e == allowed {
			return true
		}
	}
	return false
}
