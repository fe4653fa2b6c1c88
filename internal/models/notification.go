package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is one row in a recipient's inbox
type Notification struct {
	ID          string            `gorm:"type:varchar(36);primaryKey;column:id" json:"id"`
	RecipientID string            `gorm:"type:varchar(36);not null;index:idx_notifications_recipient_created,priority:1;column:recipient_id" json:"recipientId"`
	ActorID     string            `gorm:"type:varchar(36);not null;column:actor_id" json:"actorId"`
	Type        string            `gorm:"type:varchar(32);not null;column:type" json:"type"`
	PostID      *string           `gorm:"type:varchar(36);column:post_id" json:"postId,omitempty"`
	CommentID   *string           `gorm:"type:varchar(36);column:comment_id" json:"commentId,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	ReadAt      *time.Time        `gorm:"column:read_at" json:"readAt"`
	CreatedAt   time.Time         `gorm:"not null;index:idx_notifications_recipient_created,priority:2;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// Notification types
const (
	NotifyPostLike      = "post_like"
	NotifyPostComment   = "post_comment"
	NotifyCommentReply  = "comment_reply"
	NotifyCommentLike   = "comment_like"
	NotifyPostReaction  = "post_reaction"
	NotifyFollow        = "follow"
	NotifyFollowRequest = "follow_request"
	NotifyFollowAccept  = "follow_accept"
)

// PushSubscription is a registered device token
type PushSubscription struct {
	ID        string    `gorm:"type:varchar(36);primaryKey;column:id"`
	UserID    string    `gorm:"type:varchar(36);not null;index;column:user_id"`
	Token     string    `gorm:"type:varchar(512);not null;uniqueIndex;column:token"`
	Platform  string    `gorm:"type:varchar(16);not null;column:platform"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for PushSubscription
func (PushSubscription) TableName() string {
	return "push_subscriptions"
}

// NotificationPreference holds per-category push switches and a quiet-hours window.
// QuietStart and QuietEnd are minutes after local midnight in Timezone.
type NotificationPreference struct {
	UserID     string `gorm:"type:varchar(36);primaryKey;column:user_id" json:"-"`
	Likes      bool   `gorm:"not null;column:likes" json:"likes"`
	Comments   bool   `gorm:"not null;column:comments" json:"comments"`
	Follows    bool   `gorm:"not null;column:follows" json:"follows"`
	QuietStart *int   `gorm:"column:quiet_start" json:"quietStart"`
	QuietEnd   *int   `gorm:"column:quiet_end" json:"quietEnd"`
	Timezone   string `gorm:"type:varchar(64);column:timezone" json:"timezone"`
}

// TableName specifies the table name for NotificationPreference
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// DefaultPreference is used for users who never saved preferences
func DefaultPreference(userID string) *NotificationPreference {
	return &NotificationPreference{UserID: userID, Likes: true, Comments: true, Follows: true, Timezone: "UTC"}
}
