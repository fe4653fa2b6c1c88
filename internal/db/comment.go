package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/pagination"
)

// CommentRepository provides comment-related database operations
type CommentRepository struct {
	*Repository
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(repo *Repository) *CommentRepository {
	return &CommentRepository{Repository: repo}
}

// Create inserts a comment
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// GetByID retrieves a comment, including deleted ones
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &comment, nil
}

// UpdateBody replaces the body of a live comment and stamps edited_at
func (r *CommentRepository) UpdateBody(ctx context.Context, id, body string) error {
	return r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"body": body, "edited_at": models.Timestamp()}).Error
}

// SoftDelete clears the body and flags the comment deleted. Reports whether a live comment changed.
func (r *CommentRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "body": ""})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListTopLevel returns top-level comments of a post, newest first, tombstones included
func (r *CommentRepository) ListTopLevel(ctx context.Context, postID string, cursor *pagination.Cursor, limit int) ([]models.Comment, error) {
	q := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("comments.post_id = ? AND comments.parent_id IS NULL", postID)
	q = pagination.Apply(q, "comments", cursor, pagination.Descending, limit)

	comments := []models.Comment{}
	if err := q.Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// ListReplies returns replies to a top-level comment, oldest first
func (r *CommentRepository) ListReplies(ctx context.Context, parentID string, after *pagination.Cursor, limit int) ([]models.Comment, error) {
	q := r.db.WithContext(ctx).Model(&models.Comment{}).Where("comments.parent_id = ?", parentID)
	q = pagination.Apply(q, "comments", after, pagination.Ascending, limit)

	replies := []models.Comment{}
	if err := q.Find(&replies).Error; err != nil {
		return nil, err
	}
	return replies, nil
}

// PreviewReplies returns up to n oldest replies for each parent
func (r *CommentRepository) PreviewReplies(ctx context.Context, parentIDs []string, n int) (map[string][]models.Comment, error) {
	out := make(map[string][]models.Comment, len(parentIDs))
	for _, parentID := range parentIDs {
		replies, err := r.ListReplies(ctx, parentID, nil, n)
		if err != nil {
			return nil, err
		}
		if len(replies) > 0 {
			out[parentID] = replies
		}
	}
	return out, nil
}

// AdjustReplyCount applies delta to reply_count, never going below zero
func (r *CommentRepository) AdjustReplyCount(ctx context.Context, commentID string, delta int) error {
	return r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("id = ?", commentID).
		Update("reply_count", clampedAdd("reply_count", delta)).Error
}
