package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/underpines/pines/internal/models"
)

// PushRepository stores device tokens and notification preferences
type PushRepository struct {
	*Repository
}

// NewPushRepository creates a new push repository
func NewPushRepository(repo *Repository) *PushRepository {
	return &PushRepository{Repository: repo}
}

// Subscriptions returns every device registered by userID
func (r *PushRepository) Subscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	subs := []models.PushSubscription{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&subs).Error
	return subs, err
}

// Register stores a device token. A token re-registered by another user moves to that user.
func (r *PushRepository) Register(ctx context.Context, userID, token, platform string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform"}),
	}).Create(&models.PushSubscription{
		ID:       uuid.NewString(),
		UserID:   userID,
		Token:    token,
		Platform: platform,
	}).Error
}

// DeleteToken removes a token regardless of owner. Used when the transport reports it gone.
func (r *PushRepository) DeleteToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.PushSubscription{}).Error
}

// DeleteUserToken removes a token owned by userID
func (r *PushRepository) DeleteUserToken(ctx context.Context, userID, token string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND token = ?", userID, token).Delete(&models.PushSubscription{}).Error
}

// Preferences returns the saved preferences, or nil when the user never saved any
func (r *PushRepository) Preferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pref, nil
}

// SavePreferences upserts a user's preferences
func (r *PushRepository) SavePreferences(ctx context.Context, pref *models.NotificationPreference) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(pref).Error
}
