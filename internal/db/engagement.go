package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/underpines/pines/internal/models"
)

const reactionAttempts = 3

// ErrReactionContended is returned when a reaction row keeps appearing and disappearing
// under concurrent writers
var ErrReactionContended = errors.New("reaction row contended")

// EngagementRepository provides like, reaction and share operations
type EngagementRepository struct {
	*Repository
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(repo *Repository) *EngagementRepository {
	return &EngagementRepository{Repository: repo}
}

// InsertLike records a like. It reports false when the like already existed.
func (r *EngagementRepository) InsertLike(ctx context.Context, kind, targetID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Like{TargetKind: kind, TargetID: targetID, UserID: userID})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteLike removes a like. It reports false when there was nothing to remove.
func (r *EngagementRepository) DeleteLike(ctx context.Context, kind, targetID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("target_kind = ? AND target_id = ? AND user_id = ?", kind, targetID, userID).
		Delete(&models.Like{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdjustLikeCount applies delta to the target's like_count, never going below zero
func (r *EngagementRepository) AdjustLikeCount(ctx context.Context, kind, targetID string, delta int) error {
	table, err := counterTable(kind)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Table(table).
		Where("id = ?", targetID).
		Update("like_count", clampedAdd("like_count", delta)).Error
}

// LikeCount reads the target's like_count
func (r *EngagementRepository) LikeCount(ctx context.Context, kind, targetID string) (int64, error) {
	table, err := counterTable(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.WithContext(ctx).Table(table).Select("like_count").Where("id = ?", targetID).Scan(&n).Error
	return n, err
}

// LikedBy returns which of targetIDs userID likes
func (r *EngagementRepository) LikedBy(ctx context.Context, kind string, targetIDs []string, userID string) (map[string]bool, error) {
	out := make(map[string]bool)
	if userID == "" || len(targetIDs) == 0 {
		return out, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("target_kind = ? AND user_id = ? AND target_id IN ?", kind, userID, targetIDs).
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// ApplyReaction sets userID's reaction on the target to emoji. Replacing a different emoji
// moves one unit between the two aggregates in the same transaction. It returns the previous
// emoji ("" when none) and whether anything changed.
//
// The row is claimed with INSERT ... ON CONFLICT DO NOTHING and an existing row is locked
// before it is read, so concurrent writers for the same user never both insert and never
// both move the same unit.
func (r *EngagementRepository) ApplyReaction(ctx context.Context, kind, targetID, userID, emoji string) (string, bool, error) {
	var previous string
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < reactionAttempts; attempt++ {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Reaction{
				TargetKind: kind, TargetID: targetID, UserID: userID, Emoji: emoji,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				changed = true
				return adjustReactionCount(tx, kind, targetID, emoji, 1)
			}

			existing, err := lockReaction(tx, kind, targetID, userID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// removed after our insert conflicted; claim it again
				continue
			}
			if err != nil {
				return err
			}
			if existing.Emoji == emoji {
				previous = emoji
				return nil
			}

			previous = existing.Emoji
			if err := tx.Model(&models.Reaction{}).
				Where("target_kind = ? AND target_id = ? AND user_id = ?", kind, targetID, userID).
				Updates(map[string]interface{}{"emoji": emoji, "updated_at": models.Timestamp()}).Error; err != nil {
				return err
			}
			if err := adjustReactionCount(tx, kind, targetID, previous, -1); err != nil {
				return err
			}
			changed = true
			return adjustReactionCount(tx, kind, targetID, emoji, 1)
		}
		return ErrReactionContended
	})
	return previous, changed, err
}

// RemoveReaction deletes userID's reaction and decrements its aggregate.
// It returns the removed emoji, or "" when there was none.
func (r *EngagementRepository) RemoveReaction(ctx context.Context, kind, targetID, userID string) (string, error) {
	var removed string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockReaction(tx, kind, targetID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		res := tx.Where("target_kind = ? AND target_id = ? AND user_id = ?", kind, targetID, userID).
			Delete(&models.Reaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = existing.Emoji
		return adjustReactionCount(tx, kind, targetID, existing.Emoji, -1)
	})
	return removed, err
}

// lockReaction reads the user's reaction row FOR UPDATE. SQLite ignores the lock and
// relies on its single writer.
func lockReaction(tx *gorm.DB, kind, targetID, userID string) (*models.Reaction, error) {
	var existing models.Reaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("target_kind = ? AND target_id = ? AND user_id = ?", kind, targetID, userID).
		Take(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func adjustReactionCount(tx *gorm.DB, kind, targetID, emoji string, delta int) error {
	if delta < 0 {
		return tx.Model(&models.ReactionCount{}).
			Where("target_kind = ? AND target_id = ? AND emoji = ?", kind, targetID, emoji).
			Update("total", clampedAdd("total", delta)).Error
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_kind"}, {Name: "target_id"}, {Name: "emoji"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"total": gorm.Expr("reaction_counts.total + ?", delta)}),
	}).Create(&models.ReactionCount{TargetKind: kind, TargetID: targetID, Emoji: emoji, Total: int64(delta)}).Error
}

// ReactionCounts returns the positive per-emoji aggregates of each target
func (r *EngagementRepository) ReactionCounts(ctx context.Context, kind string, targetIDs []string) (map[string]map[string]int64, error) {
	out := make(map[string]map[string]int64)
	if len(targetIDs) == 0 {
		return out, nil
	}
	var rows []models.ReactionCount
	err := r.db.WithContext(ctx).
		Where("target_kind = ? AND target_id IN ? AND total > 0", kind, targetIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if out[row.TargetID] == nil {
			out[row.TargetID] = make(map[string]int64)
		}
		out[row.TargetID][row.Emoji] = row.Total
	}
	return out, nil
}

// ViewerReactions returns userID's emoji on each of targetIDs
func (r *EngagementRepository) ViewerReactions(ctx context.Context, kind string, targetIDs []string, userID string) (map[string]string, error) {
	out := make(map[string]string)
	if userID == "" || len(targetIDs) == 0 {
		return out, nil
	}
	var rows []models.Reaction
	err := r.db.WithContext(ctx).
		Where("target_kind = ? AND user_id = ? AND target_id IN ?", kind, userID, targetIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.TargetID] = row.Emoji
	}
	return out, nil
}

// IncrementShareCount adds one share to a post and returns the new total
func (r *EngagementRepository) IncrementShareCount(ctx context.Context, postID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			Update("share_count", gorm.Expr("share_count + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Select("share_count").Where("id = ?", postID).Scan(&total).Error
	})
	return total, err
}
