package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/underpines/pines/internal/models"
)

// CounterRepository recomputes denormalized counters from child rows
type CounterRepository struct {
	*Repository
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(repo *Repository) *CounterRepository {
	return &CounterRepository{Repository: repo}
}

type recount struct {
	name  string
	table string
	// column is set to the result of count for every row where they differ
	column string
	count  string
}

var recounts = []recount{
	{
		name:   "post_likes",
		table:  "posts",
		column: "like_count",
		count:  "SELECT COUNT(*) FROM likes WHERE likes.target_kind = 'post' AND likes.target_id = posts.id",
	},
	{
		name:   "post_comments",
		table:  "posts",
		column: "comment_count",
		count:  "SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id AND comments.is_deleted = ?",
	},
	{
		name:   "comment_likes",
		table:  "comments",
		column: "like_count",
		count:  "SELECT COUNT(*) FROM likes WHERE likes.target_kind = 'comment' AND likes.target_id = comments.id",
	},
	{
		name:   "comment_replies",
		table:  "comments",
		column: "reply_count",
		count:  "SELECT COUNT(*) FROM comments AS r WHERE r.parent_id = comments.id",
	},
}

// Recount repairs every drifted counter and returns the number of rows fixed per counter.
// It is idempotent: a second run on a quiet store fixes nothing. batchSize bounds the
// insert batches used to rebuild reaction aggregates.
func (r *CounterRepository) Recount(ctx context.Context, batchSize int) (map[string]int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	fixed := make(map[string]int64, len(recounts)+1)
	for _, rc := range recounts {
		n, err := r.recount(ctx, rc)
		if err != nil {
			return fixed, fmt.Errorf("recount %s: %w", rc.name, err)
		}
		fixed[rc.name] = n
	}

	n, err := r.rebuildReactionCounts(ctx, batchSize)
	if err != nil {
		return fixed, fmt.Errorf("recount reactions: %w", err)
	}
	fixed["reactions"] = n
	return fixed, nil
}

func (r *CounterRepository) recount(ctx context.Context, rc recount) (int64, error) {
	var args []interface{}
	if rc.name == "post_comments" {
		// once for SET, once for WHERE
		args = []interface{}{false, false}
	}
	sql := fmt.Sprintf("UPDATE %s SET %s = (%s) WHERE %s <> (%s)", rc.table, rc.column, rc.count, rc.column, rc.count)
	res := r.db.WithContext(ctx).Exec(sql, args...)
	return res.RowsAffected, res.Error
}

// rebuildReactionCounts replaces reaction_counts with the grouped truth from reactions.
// It returns the number of aggregates that changed.
func (r *CounterRepository) rebuildReactionCounts(ctx context.Context, batchSize int) (int64, error) {
	var changed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var truth []models.ReactionCount
		if err := tx.Model(&models.Reaction{}).
			Select("target_kind, target_id, emoji, COUNT(*) AS total").
			Group("target_kind, target_id, emoji").
			Scan(&truth).Error; err != nil {
			return err
		}

		var stored []models.ReactionCount
		if err := tx.Where("total > 0").Find(&stored).Error; err != nil {
			return err
		}

		current := make(map[string]int64, len(stored))
		for _, rc := range stored {
			current[reactionKey(rc)] = rc.Total
		}
		for _, rc := range truth {
			k := reactionKey(rc)
			if current[k] != rc.Total {
				changed++
			}
			delete(current, k)
		}
		changed += int64(len(current))

		if changed == 0 {
			return nil
		}
		if err := tx.Where("1 = 1").Delete(&models.ReactionCount{}).Error; err != nil {
			return err
		}
		if len(truth) == 0 {
			return nil
		}
		return tx.CreateInBatches(&truth, batchSize).Error
	})
	return changed, err
}

func reactionKey(rc models.ReactionCount) string {
	return rc.TargetKind + "|" + rc.TargetID + "|" + rc.Emoji
}
