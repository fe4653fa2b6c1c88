package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/underpines/pines/internal/models"
)

// AwardRepository records gamification grants
type AwardRepository struct {
	*Repository
}

// NewAwardRepository creates a new award repository
func NewAwardRepository(repo *Repository) *AwardRepository {
	return &AwardRepository{Repository: repo}
}

// Award grants points to userID
func (r *AwardRepository) Award(ctx context.Context, userID, reason string, points int) error {
	return r.db.WithContext(ctx).Create(&models.Award{
		ID:     uuid.NewString(),
		UserID: userID,
		Reason: reason,
		Points: points,
	}).Error
}

// Total sums the points granted to userID
func (r *AwardRepository) Total(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Award{}).
		Select("COALESCE(SUM(points), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}
