package models

import (
	"time"
)

// Comment is a two-tier thread entry. ParentID, when set, always names a top-level comment.
// Deleted comments keep their row with an empty body.
type Comment struct {
	ID         string     `gorm:"type:varchar(36);primaryKey;column:id" json:"id"`
	PostID     string     `gorm:"type:varchar(36);not null;index:idx_comments_post_created,priority:1;column:post_id" json:"postId"`
	AuthorID   string     `gorm:"type:varchar(36);not null;column:author_id" json:"authorId"`
	ParentID   *string    `gorm:"type:varchar(36);index:idx_comments_parent_created,priority:1;column:parent_id" json:"parentId"`
	Body       string     `gorm:"type:text;not null;column:body" json:"body"`
	LikeCount  int64      `gorm:"not null;column:like_count" json:"likeCount"`
	ReplyCount int64      `gorm:"not null;column:reply_count" json:"replyCount"`
	IsDeleted  bool       `gorm:"not null;column:is_deleted" json:"isDeleted"`
	EditedAt   *time.Time `gorm:"column:edited_at" json:"editedAt,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;index:idx_comments_post_created,priority:2;index:idx_comments_parent_created,priority:2;column:created_at" json:"createdAt"`

	Replies        []Comment `gorm:"-" json:"replies,omitempty"`
	LikedByUser    bool      `gorm:"-" json:"likedByUser"`
	ViewerReaction *string   `gorm:"-" json:"viewerReaction"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}

// State reports active, edited or deleted.
func (c *Comment) State() string {
	switch {
	case c.IsDeleted:
		return CommentStateDeleted
	case c.EditedAt != nil:
		return CommentStateEdited
	default:
		return CommentStateActive
	}
}

// Comment states
const (
	CommentStateActive  = "active"
	CommentStateEdited  = "edited"
	CommentStateDeleted = "deleted"
)
