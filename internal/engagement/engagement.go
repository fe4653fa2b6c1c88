// Package engagement maintains like, reaction and share counters with idempotent toggles.
package engagement

import (
	"context"

	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/notify"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

// Store is the persistence the aggregator needs. *db.EngagementRepository implements it.
type Store interface {
	InsertLike(ctx context.Context, kind, targetID, userID string) (bool, error)
	DeleteLike(ctx context.Context, kind, targetID, userID string) (bool, error)
	AdjustLikeCount(ctx context.Context, kind, targetID string, delta int) error
	LikeCount(ctx context.Context, kind, targetID string) (int64, error)
	ApplyReaction(ctx context.Context, kind, targetID, userID, emoji string) (string, bool, error)
	RemoveReaction(ctx context.Context, kind, targetID, userID string) (string, error)
	ReactionCounts(ctx context.Context, kind string, targetIDs []string) (map[string]map[string]int64, error)
	ViewerReactions(ctx context.Context, kind string, targetIDs []string, userID string) (map[string]string, error)
	IncrementShareCount(ctx context.Context, postID string) (int64, error)
}

// Notifier receives best-effort notices. *notify.Service implements it.
type Notifier interface {
	Notify(ctx context.Context, actorID string, notices ...notify.Notice)
}

// Target identifies what is being engaged with and who owns it
type Target struct {
	Kind    string
	ID      string
	OwnerID string
	// PostID is the containing post; equal to ID for posts
	PostID string
}

// LikeResult is the outcome of a like toggle
type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"likeCount"`
}

// ReactionState is the caller's reaction and the target's aggregates after a change
type ReactionState struct {
	Emoji  *string          `json:"emoji"`
	Counts map[string]int64 `json:"counts"`
}

// Service is the engagement aggregator
type Service struct {
	store    Store
	notifier Notifier
	locks    *KeyedMutex
	logger   *zap.Logger
}

// NewService creates an engagement aggregator
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		locks:    NewKeyedMutex(),
		logger:   logging.WithComponent("engagement"),
	}
}

func lockKey(t Target, userID string) string {
	return t.Kind + ":" + t.ID + ":" + userID
}

// ToggleLike likes the target, or unlikes it when the user already liked it.
// The like row is the primary mutation; the counter follows it and a failed counter
// update is logged, not rolled back.
func (s *Service) ToggleLike(ctx context.Context, t Target, userID string) (LikeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.ToggleLike")
	defer span.End()

	unlock := s.locks.Lock(lockKey(t, userID))
	defer unlock()

	inserted, err := s.store.InsertLike(ctx, t.Kind, t.ID, userID)
	if err != nil {
		return LikeResult{}, apperr.Dependency("insert like", err)
	}

	result := LikeResult{Liked: inserted}
	if inserted {
		s.adjustLikes(ctx, t, 1)
		s.notifyLike(ctx, t, userID)
	} else {
		removed, err := s.store.DeleteLike(ctx, t.Kind, t.ID, userID)
		if err != nil {
			return LikeResult{}, apperr.Dependency("delete like", err)
		}
		if removed {
			s.adjustLikes(ctx, t, -1)
		}
	}

	count, err := s.store.LikeCount(ctx, t.Kind, t.ID)
	if err != nil {
		return LikeResult{}, apperr.Dependency("read like count", err)
	}
	if count < 0 {
		count = 0
	}
	result.LikeCount = count
	return result, nil
}

func (s *Service) adjustLikes(ctx context.Context, t Target, delta int) {
	if err := s.store.AdjustLikeCount(ctx, t.Kind, t.ID, delta); err != nil {
		logging.FromContext(ctx).Error("Like counter update failed",
			zap.String("component", "engagement"),
			zap.String("kind", t.Kind),
			zap.String("target_id", t.ID),
			zap.Int("delta", delta),
			zap.Error(err))
	}
}

func (s *Service) notifyLike(ctx context.Context, t Target, actorID string) {
	if s.notifier == nil {
		return
	}
	notice := notify.Notice{Recipient: t.OwnerID, PostID: t.PostID}
	if t.Kind == models.TargetComment {
		notice.Type = models.NotifyCommentLike
		notice.CommentID = t.ID
	} else {
		notice.Type = models.NotifyPostLike
	}
	s.notifier.Notify(ctx, actorID, notice)
}

// SetReaction sets the user's reaction to emoji, replacing any other emoji.
// Setting the current emoji again changes nothing.
func (s *Service) SetReaction(ctx context.Context, t Target, userID, emoji string) (ReactionState, error) {
	if !models.IsValidEmoji(emoji) {
		return ReactionState{}, apperr.Validation("invalid_emoji", "emoji is not an allowed reaction")
	}

	unlock := s.locks.Lock(lockKey(t, userID))
	defer unlock()

	return s.set(ctx, t, userID, emoji)
}

func (s *Service) set(ctx context.Context, t Target, userID, emoji string) (ReactionState, error) {
	previous, changed, err := s.store.ApplyReaction(ctx, t.Kind, t.ID, userID, emoji)
	if err != nil {
		return ReactionState{}, apperr.Dependency("apply reaction", err)
	}
	if changed && previous == "" && t.Kind == models.TargetPost && s.notifier != nil {
		s.notifier.Notify(ctx, userID, notify.Notice{
			Recipient: t.OwnerID,
			Type:      models.NotifyPostReaction,
			PostID:    t.PostID,
			Metadata:  map[string]interface{}{"emoji": emoji},
		})
	}
	return s.state(ctx, t, &emoji)
}

// ClearReaction removes the user's reaction, if any
func (s *Service) ClearReaction(ctx context.Context, t Target, userID string) (ReactionState, error) {
	unlock := s.locks.Lock(lockKey(t, userID))
	defer unlock()

	return s.clear(ctx, t, userID)
}

func (s *Service) clear(ctx context.Context, t Target, userID string) (ReactionState, error) {
	if _, err := s.store.RemoveReaction(ctx, t.Kind, t.ID, userID); err != nil {
		return ReactionState{}, apperr.Dependency("remove reaction", err)
	}
	return s.state(ctx, t, nil)
}

// ToggleReaction clears the reaction when it already is emoji, otherwise sets it
func (s *Service) ToggleReaction(ctx context.Context, t Target, userID, emoji string) (ReactionState, error) {
	if !models.IsValidEmoji(emoji) {
		return ReactionState{}, apperr.Validation("invalid_emoji", "emoji is not an allowed reaction")
	}

	unlock := s.locks.Lock(lockKey(t, userID))
	defer unlock()

	current, err := s.store.ViewerReactions(ctx, t.Kind, []string{t.ID}, userID)
	if err != nil {
		return ReactionState{}, apperr.Dependency("read reaction", err)
	}
	if current[t.ID] == emoji {
		return s.clear(ctx, t, userID)
	}
	return s.set(ctx, t, userID, emoji)
}

func (s *Service) state(ctx context.Context, t Target, emoji *string) (ReactionState, error) {
	counts, err := s.store.ReactionCounts(ctx, t.Kind, []string{t.ID})
	if err != nil {
		return ReactionState{}, apperr.Dependency("read reaction counts", err)
	}
	c := counts[t.ID]
	if c == nil {
		c = map[string]int64{}
	}
	return ReactionState{Emoji: emoji, Counts: c}, nil
}

// IncrementShareCount records a share. Shares are not deduplicated.
func (s *Service) IncrementShareCount(ctx context.Context, postID string) (int64, error) {
	n, err := s.store.IncrementShareCount(ctx, postID)
	if err != nil {
		return 0, apperr.Dependency("increment share count", err)
	}
	return n, nil
}
