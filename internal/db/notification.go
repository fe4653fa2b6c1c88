package db

import (
	"context"

	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/pagination"
)

// NotificationRepository provides notification-related database operations
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// CreateBatch inserts notifications in one statement
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

// List returns a recipient's notifications, newest first
func (r *NotificationRepository) List(ctx context.Context, recipientID string, cursor *pagination.Cursor, limit int) ([]models.Notification, error) {
	q := r.db.WithContext(ctx).Model(&models.Notification{}).Where("notifications.recipient_id = ?", recipientID)
	q = pagination.Apply(q, "notifications", cursor, pagination.Descending, limit)

	notifications := []models.Notification{}
	if err := q.Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnread counts notifications with no read_at
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&n).Error
	return n, err
}

// MarkRead stamps read_at on the recipient's unread rows among ids
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND id IN ? AND read_at IS NULL", recipientID, ids).
		Update("read_at", models.Timestamp())
	return res.RowsAffected, res.Error
}

// MarkAllRead stamps read_at on every unread row of the recipient
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Update("read_at", models.Timestamp())
	return res.RowsAffected, res.Error
}

// Delete removes one of the recipient's notifications
func (r *NotificationRepository) Delete(ctx context.Context, recipientID, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("recipient_id = ? AND id = ?", recipientID, id).
		Delete(&models.Notification{})
	return res.RowsAffected > 0, res.Error
}
