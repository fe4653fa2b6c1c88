// Package notify persists notification rows, serves the inbox and dispatches push messages.
package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/besteffort"
	"github.com/underpines/pines/internal/cache"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/pagination"
	"github.com/underpines/pines/pkg/logging"
)

// Inbox page bounds
const (
	DefaultLimit = 30
	MaxLimit     = 200
)

// Notice is one intended notification of an event
type Notice struct {
	Recipient string
	Type      string
	PostID    string
	CommentID string
	Metadata  map[string]interface{}
}

// Store persists notification rows
type Store interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, recipientID string, cursor *pagination.Cursor, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, recipientID, id string) (bool, error)
}

// UnreadCache caches unread counts. *cache.Cache satisfies it, including when nil.
type UnreadCache interface {
	GetUnread(ctx context.Context, userID string) (int64, error)
	SetUnread(ctx context.Context, userID string, n int64) error
	InvalidateUnread(ctx context.Context, userID string) error
}

// Pusher delivers a persisted notification to the recipient's devices
type Pusher interface {
	Push(ctx context.Context, n models.Notification) error
}

// Service is the notification fan-out
type Service struct {
	store  Store
	cache  UnreadCache
	pusher Pusher
	runner *besteffort.Runner
	logger *zap.Logger
}

// NewService creates a notification service. cache and pusher may be nil.
func NewService(store Store, unread UnreadCache, pusher Pusher, runner *besteffort.Runner) *Service {
	return &Service{
		store:  store,
		cache:  unread,
		pusher: pusher,
		runner: runner,
		logger: logging.WithComponent("notify"),
	}
}

// Notify records notices from actorID. Notices addressed to the actor are dropped and
// each recipient receives at most one row per call; the first notice for a recipient wins.
// Failures are logged and counted, never returned.
func (s *Service) Notify(ctx context.Context, actorID string, notices ...Notice) {
	rows := s.build(actorID, notices)
	if len(rows) == 0 {
		return
	}

	persisted := s.runner.Run(ctx, "notify.persist", func(ctx context.Context) error {
		return s.store.CreateBatch(ctx, rows)
	})
	if !persisted {
		return
	}

	for _, row := range rows {
		s.invalidate(ctx, row.RecipientID)
		if s.pusher == nil {
			continue
		}
		row := row
		s.runner.Run(ctx, "notify.push", func(ctx context.Context) error {
			return s.pusher.Push(ctx, row)
		})
	}
}

func (s *Service) build(actorID string, notices []Notice) []models.Notification {
	seen := make(map[string]bool, len(notices))
	rows := make([]models.Notification, 0, len(notices))
	now := models.Timestamp()

	for _, n := range notices {
		if n.Recipient == "" || n.Recipient == actorID || seen[n.Recipient] {
			continue
		}
		seen[n.Recipient] = true

		row := models.Notification{
			ID:          uuid.NewString(),
			RecipientID: n.Recipient,
			ActorID:     actorID,
			Type:        n.Type,
			Metadata:    n.Metadata,
			CreatedAt:   now,
		}
		if n.PostID != "" {
			postID := n.PostID
			row.PostID = &postID
		}
		if n.CommentID != "" {
			commentID := n.CommentID
			row.CommentID = &commentID
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUnread(ctx, userID); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to invalidate unread count", zap.String("user_id", userID), zap.Error(err))
	}
}

// UnreadCount returns the number of unread notifications, served from cache when fresh
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if s.cache != nil {
		if n, err := s.cache.GetUnread(ctx, userID); err == nil {
			return n, nil
		}
	}

	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperr.Dependency("count unread notifications", err)
	}

	if s.cache != nil {
		if err := s.cache.SetUnread(ctx, userID, n); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Debug("Failed to cache unread count", zap.Error(err))
		}
	}
	return n, nil
}

// List returns a page of the user's notifications, newest first
func (s *Service) List(ctx context.Context, userID, cursor string, limit int) (pagination.Page[models.Notification], error) {
	c, err := pagination.Parse(cursor)
	if err != nil {
		return pagination.Page[models.Notification]{}, err
	}
	limit = pagination.ClampLimit(limit, DefaultLimit, MaxLimit)

	rows, err := s.store.List(ctx, userID, c, limit)
	if err != nil {
		return pagination.Page[models.Notification]{}, apperr.Dependency("list notifications", err)
	}
	return pagination.Build(rows, limit, notificationKey), nil
}

func notificationKey(n models.Notification) pagination.Cursor {
	return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
}

// MarkRead marks the given notifications read. Ids that are not the user's are ignored.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.store.MarkRead(ctx, userID, ids); err != nil {
		return apperr.Dependency("mark notifications read", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// MarkAllRead marks every notification of the user read
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	if _, err := s.store.MarkAllRead(ctx, userID); err != nil {
		return apperr.Dependency("mark all notifications read", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// Delete removes one of the user's notifications
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	removed, err := s.store.Delete(ctx, userID, id)
	if err != nil {
		return apperr.Dependency("delete notification", err)
	}
	if !removed {
		return apperr.NotFound("notification")
	}
	s.invalidate(ctx, userID)
	return nil
}
