// Package graph manages follow, follow-request and block edges between users.
package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/notify"
	"github.com/underpines/pines/pkg/logging"
)

// Store persists relationship edges. *db.RelationshipRepository implements it.
type Store interface {
	Get(ctx context.Context, followerID, followeeID string) (*models.Relationship, error)
	Save(ctx context.Context, rel *models.Relationship) error
	Delete(ctx context.Context, followerID, followeeID string) error
	Block(ctx context.Context, blockerID, blockedID string) error
	BlockedEither(ctx context.Context, a, b string) (bool, error)
	Followees(ctx context.Context, followerID string) ([]string, error)
}

// Privacy reports whether an account approves followers manually
type Privacy interface {
	IsPrivate(ctx context.Context, userID string) (bool, error)
}

// Notifier receives best-effort notices
type Notifier interface {
	Notify(ctx context.Context, actorID string, notices ...notify.Notice)
}

// Service is the relationship graph
type Service struct {
	store    Store
	privacy  Privacy
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a relationship graph. notifier may be nil.
func NewService(store Store, privacy Privacy, notifier Notifier) *Service {
	return &Service{
		store:    store,
		privacy:  privacy,
		notifier: notifier,
		logger:   logging.WithComponent("graph"),
	}
}

// Follow creates the edge follower -> followee. Private accounts get a request instead of an
// accepted edge. Following again returns the existing state.
func (s *Service) Follow(ctx context.Context, followerID, followeeID string) (string, error) {
	if followerID == followeeID {
		return "", apperr.Validation("self_follow", "you cannot follow yourself")
	}

	blocked, err := s.store.BlockedEither(ctx, followerID, followeeID)
	if err != nil {
		return "", apperr.Dependency("check block", err)
	}
	if blocked {
		return "", apperr.Forbidden("you cannot follow this user")
	}

	existing, err := s.store.Get(ctx, followerID, followeeID)
	if err != nil {
		return "", apperr.Dependency("read relationship", err)
	}
	if existing != nil {
		return existing.State, nil
	}

	private, err := s.privacy.IsPrivate(ctx, followeeID)
	if err != nil {
		return "", apperr.Dependency("read account settings", err)
	}

	state, noticeType := models.RelationAccepted, models.NotifyFollow
	if private {
		state, noticeType = models.RelationRequested, models.NotifyFollowRequest
	}

	now := models.Timestamp()
	if err := s.store.Save(ctx, &models.Relationship{
		FollowerID: followerID,
		FolloweeID: followeeID,
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return "", apperr.Dependency("save relationship", err)
	}

	s.notify(ctx, followerID, notify.Notice{Recipient: followeeID, Type: noticeType})
	return state, nil
}

// Accept approves a pending follow request from followerID
func (s *Service) Accept(ctx context.Context, followeeID, followerID string) error {
	rel, err := s.store.Get(ctx, followerID, followeeID)
	if err != nil {
		return apperr.Dependency("read relationship", err)
	}
	if rel == nil || rel.State == models.RelationBlocked {
		return apperr.NotFound("follow request")
	}
	if rel.State == models.RelationAccepted {
		return nil
	}

	rel.State = models.RelationAccepted
	rel.UpdatedAt = models.Timestamp()
	if err := s.store.Save(ctx, rel); err != nil {
		return apperr.Dependency("save relationship", err)
	}

	s.notify(ctx, followeeID, notify.Notice{Recipient: followerID, Type: models.NotifyFollowAccept})
	return nil
}

// Unfollow removes a follow edge or pending request. Blocks are left intact.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID string) error {
	rel, err := s.store.Get(ctx, followerID, followeeID)
	if err != nil {
		return apperr.Dependency("read relationship", err)
	}
	if rel == nil || rel.State == models.RelationBlocked {
		return nil
	}
	if err := s.store.Delete(ctx, followerID, followeeID); err != nil {
		return apperr.Dependency("delete relationship", err)
	}
	return nil
}

// Block drops every edge between the pair and records the block
func (s *Service) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return apperr.Validation("self_block", "you cannot block yourself")
	}
	if err := s.store.Block(ctx, blockerID, blockedID); err != nil {
		return apperr.Dependency("block", err)
	}
	s.logger.Debug("User blocked", zap.String("blocker", blockerID), zap.String("blocked", blockedID))
	return nil
}

// Unblock removes a block placed by blockerID
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID string) error {
	rel, err := s.store.Get(ctx, blockerID, blockedID)
	if err != nil {
		return apperr.Dependency("read relationship", err)
	}
	if rel == nil || rel.State != models.RelationBlocked {
		return nil
	}
	if err := s.store.Delete(ctx, blockerID, blockedID); err != nil {
		return apperr.Dependency("delete relationship", err)
	}
	return nil
}

// Followees returns the accepted followees of userID
func (s *Service) Followees(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.Followees(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency("read followees", err)
	}
	return ids, nil
}

// IsFollowing reports whether followerID has an accepted edge to followeeID
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	rel, err := s.store.Get(ctx, followerID, followeeID)
	if err != nil {
		return false, apperr.Dependency("read relationship", err)
	}
	return rel != nil && rel.State == models.RelationAccepted, nil
}

func (s *Service) notify(ctx context.Context, actorID string, n notify.Notice) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, actorID, n)
}
