package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/pagination"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// clampedAdd returns "column + delta" floored at zero. column must be a trusted identifier.
func clampedAdd(column string, delta int) clause.Expr {
	return gorm.Expr(fmt.Sprintf("CASE WHEN %s + ? < 0 THEN 0 ELSE %s + ? END", column, column), delta, delta)
}

func counterTable(kind string) (string, error) {
	switch kind {
	case models.TargetPost:
		return "posts", nil
	case models.TargetComment:
		return "comments", nil
	default:
		return "", fmt.Errorf("unknown target kind %q", kind)
	}
}

func orderedMedia(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// PostRepository provides post-related database operations
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// PostFilter narrows a post listing. An empty ViewerID sees public posts only.
type PostFilter struct {
	AuthorIDs        []string
	ExcludeAuthorIDs []string
	ViewerID         string
	// FollowedIDs are the viewer's accepted followees; their friends-only posts are visible.
	FollowedIDs []string
	PublicOnly  bool
	Cursor      *pagination.Cursor
	Limit       int
}

// Create inserts a post with its media
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// GetByID retrieves a post with its ordered media, including soft-deleted posts
func (r *PostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Media", orderedMedia).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// SoftDelete flags a post deleted and clears its body and media. Reports whether a live post changed.
func (r *PostRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).
			Where("id = ? AND is_deleted = ?", id, false).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"body":       "",
				"deleted_at": models.Timestamp(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return tx.Where("post_id = ?", id).Delete(&models.Media{}).Error
	})
	return changed, err
}

// List returns live posts matching f, newest first
func (r *PostRepository) List(ctx context.Context, f PostFilter) ([]models.Post, error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("posts.is_deleted = ?", false)

	if len(f.AuthorIDs) > 0 {
		q = q.Where("posts.author_id IN ?", f.AuthorIDs)
	}
	if len(f.ExcludeAuthorIDs) > 0 {
		q = q.Where("posts.author_id NOT IN ?", f.ExcludeAuthorIDs)
	}

	switch {
	case f.PublicOnly || f.ViewerID == "":
		q = q.Where("posts.visibility = ?", models.VisibilityPublic)
	case len(f.FollowedIDs) > 0:
		q = q.Where("(posts.visibility = ? OR posts.author_id = ? OR (posts.visibility = ? AND posts.author_id IN ?))",
			models.VisibilityPublic, f.ViewerID, models.VisibilityFriends, f.FollowedIDs)
	default:
		q = q.Where("(posts.visibility = ? OR posts.author_id = ?)", models.VisibilityPublic, f.ViewerID)
	}

	q = pagination.Apply(q, "posts", f.Cursor, pagination.Descending, f.Limit)

	posts := []models.Post{}
	if err := q.Preload("Media", orderedMedia).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// AdjustCommentCount applies delta to comment_count, never going below zero
func (r *PostRepository) AdjustCommentCount(ctx context.Context, postID string, delta int) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		Update("comment_count", clampedAdd("comment_count", delta)).Error
}
