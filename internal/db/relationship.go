package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/underpines/pines/internal/models"
)

// RelationshipRepository provides follow and block operations
type RelationshipRepository struct {
	*Repository
}

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(repo *Repository) *RelationshipRepository {
	return &RelationshipRepository{Repository: repo}
}

// Get retrieves the edge follower -> followee
func (r *RelationshipRepository) Get(ctx context.Context, followerID, followeeID string) (*models.Relationship, error) {
	var rel models.Relationship
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

// Save upserts an edge and its state
func (r *RelationshipRepository) Save(ctx context.Context, rel *models.Relationship) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
	}).Create(rel).Error
}

// Delete removes the edge follower -> followee
func (r *RelationshipRepository) Delete(ctx context.Context, followerID, followeeID string) error {
	return r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Relationship{}).Error
}

// Block removes any edge between the pair in both directions and stores blocker -> blocked
func (r *RelationshipRepository) Block(ctx context.Context, blockerID, blockedID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("(follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?)",
			blockerID, blockedID, blockedID, blockerID).
			Delete(&models.Relationship{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Relationship{
			FollowerID: blockerID,
			FolloweeID: blockedID,
			State:      models.RelationBlocked,
		}).Error
	})
}

// BlockedEither reports whether either user blocks the other
func (r *RelationshipRepository) BlockedEither(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Relationship{}).
		Where("state = ? AND ((follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?))",
			models.RelationBlocked, a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// Followees returns the users followerID follows with an accepted edge
func (r *RelationshipRepository) Followees(ctx context.Context, followerID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.Relationship{}).
		Where("follower_id = ? AND state = ?", followerID, models.RelationAccepted).
		Order("followee_id").
		Pluck("followee_id", &ids).Error
	return ids, err
}

// AccountSettingsRepository reads and writes account flags
type AccountSettingsRepository struct {
	*Repository
}

// NewAccountSettingsRepository creates a new account settings repository
func NewAccountSettingsRepository(repo *Repository) *AccountSettingsRepository {
	return &AccountSettingsRepository{Repository: repo}
}

// IsPrivate reports whether the account requires follow approval. Unknown accounts are public.
func (r *AccountSettingsRepository) IsPrivate(ctx context.Context, userID string) (bool, error) {
	var settings models.AccountSettings
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return settings.IsPrivate, nil
}

// SetPrivate upserts the private flag
func (r *AccountSettingsRepository) SetPrivate(ctx context.Context, userID string, private bool) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_private", "updated_at"}),
	}).Create(&models.AccountSettings{UserID: userID, IsPrivate: private}).Error
}
