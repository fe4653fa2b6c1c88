package models

import (
	"time"
)

// Relationship is the directed edge follower -> followee
type Relationship struct {
	FollowerID string    `gorm:"type:varchar(36);primaryKey;column:follower_id"`
	FolloweeID string    `gorm:"type:varchar(36);primaryKey;index;column:followee_id"`
	State      string    `gorm:"type:varchar(16);not null;column:state"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`
	UpdatedAt  time.Time `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for Relationship
func (Relationship) TableName() string {
	return "relationships"
}

// Relationship states
const (
	RelationRequested = "requested"
	RelationAccepted  = "accepted"
	RelationBlocked   = "blocked"
)

// AccountSettings holds the account flags this service reads
type AccountSettings struct {
	UserID    string    `gorm:"type:varchar(36);primaryKey;column:user_id"`
	IsPrivate bool      `gorm:"not null;column:is_private"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`
}

// TableName specifies the table name for AccountSettings
func (AccountSettings) TableName() string {
	return "account_settings"
}

// Award is a gamification grant
type Award struct {
	ID        string    `gorm:"type:varchar(36);primaryKey;column:id"`
	UserID    string    `gorm:"type:varchar(36);not null;index;column:user_id"`
	Reason    string    `gorm:"type:varchar(64);not null;column:reason"`
	Points    int       `gorm:"not null;column:points"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Award
func (Award) TableName() string {
	return "awards"
}
