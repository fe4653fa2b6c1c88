package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/underpines/pines/internal/models"
)

// PreviewRepository stores link preview fetch outcomes
type PreviewRepository struct {
	*Repository
}

// NewPreviewRepository creates a new preview repository
func NewPreviewRepository(repo *Repository) *PreviewRepository {
	return &PreviewRepository{Repository: repo}
}

// Get retrieves the stored preview for url, expired or not
func (r *PreviewRepository) Get(ctx context.Context, url string) (*models.LinkPreview, error) {
	var p models.LinkPreview
	if err := r.db.WithContext(ctx).Where("url = ?", url).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Upsert stores a fetch outcome, replacing any previous one
func (r *PreviewRepository) Upsert(ctx context.Context, p *models.LinkPreview) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		UpdateAll: true,
	}).Create(p).Error
}

// DeleteExpired drops rows whose expiry has passed
func (r *PreviewRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", models.Timestamp()).Delete(&models.LinkPreview{})
	return res.RowsAffected, res.Error
}
