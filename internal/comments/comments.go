// Package comments implements the two-tier comment thread of a post.
package comments

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/engagement"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/notify"
	"github.com/underpines/pines/internal/pagination"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

// Thread limits
const (
	MaxBodyRunes = 1000
	PreviewCount = 2

	DefaultLimit = 20
	MaxLimit     = 100
)

// Store persists comments. *db.CommentRepository implements it.
type Store interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	UpdateBody(ctx context.Context, id, body string) error
	SoftDelete(ctx context.Context, id string) (bool, error)
	ListTopLevel(ctx context.Context, postID string, cursor *pagination.Cursor, limit int) ([]models.Comment, error)
	ListReplies(ctx context.Context, parentID string, after *pagination.Cursor, limit int) ([]models.Comment, error)
	PreviewReplies(ctx context.Context, parentIDs []string, n int) (map[string][]models.Comment, error)
	AdjustReplyCount(ctx context.Context, commentID string, delta int) error
}

// Posts resolves the post a thread hangs off. *posts.Service implements it.
type Posts interface {
	Visible(ctx context.Context, postID, viewerID string) (*models.Post, error)
}

// PostCounter maintains a post's comment_count. *db.PostRepository implements it.
type PostCounter interface {
	AdjustCommentCount(ctx context.Context, postID string, delta int) error
}

// Notifier receives best-effort notices
type Notifier interface {
	Notify(ctx context.Context, actorID string, notices ...notify.Notice)
}

// Service is the comment thread engine
type Service struct {
	store      Store
	posts      Posts
	counter    PostCounter
	engagement *engagement.Service
	viewer     *engagement.Viewer
	notifier   Notifier
	logger     *zap.Logger
}

// NewService creates a comment thread engine. notifier may be nil.
func NewService(store Store, posts Posts, counter PostCounter, eng *engagement.Service, viewer *engagement.Viewer, notifier Notifier) *Service {
	return &Service{
		store:      store,
		posts:      posts,
		counter:    counter,
		engagement: eng,
		viewer:     viewer,
		notifier:   notifier,
		logger:     logging.WithComponent("comments"),
	}
}

// ValidateBody trims body and checks its length
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Validation("body_empty", "comment body must not be empty")
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return "", apperr.Validation("body_too_long", "comment body is too long")
	}
	return body, nil
}

// Create adds a comment to a post. A reply to a reply is attached to the top-level
// comment of its thread; the replied-to author is still the one notified.
func (s *Service) Create(ctx context.Context, postID, authorID, body, parentID string) (*models.Comment, error) {
	ctx, span := telemetry.StartSpan(ctx, "comments.Create")
	defer span.End()

	body, err := ValidateBody(body)
	if err != nil {
		return nil, err
	}

	post, err := s.posts.Visible(ctx, postID, authorID)
	if err != nil {
		return nil, err
	}

	var parent *models.Comment
	var threadID *string
	if parentID != "" {
		parent, err = s.store.GetByID(ctx, parentID)
		if err != nil {
			return nil, apperr.Dependency("get parent comment", err)
		}
		if parent == nil || parent.PostID != post.ID {
			return nil, apperr.Validation("invalid_parent", "parent comment does not belong to this post")
		}
		if parent.IsDeleted {
			return nil, apperr.Validation("comment_deleted", "cannot reply to a deleted comment")
		}
		top := parent.ID
		if parent.ParentID != nil {
			top = *parent.ParentID
		}
		threadID = &top
	}

	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    post.ID,
		AuthorID:  authorID,
		ParentID:  threadID,
		Body:      body,
		CreatedAt: models.Timestamp(),
	}
	if err := s.store.Create(ctx, comment); err != nil {
		return nil, apperr.Dependency("create comment", err)
	}

	if err := s.counter.AdjustCommentCount(ctx, post.ID, 1); err != nil {
		s.logCounterFailure(ctx, "comment_count", post.ID, err)
	}
	if threadID != nil {
		if err := s.store.AdjustReplyCount(ctx, *threadID, 1); err != nil {
			s.logCounterFailure(ctx, "reply_count", *threadID, err)
		}
	}

	s.notifyCreated(ctx, post, parent, comment)
	return comment, nil
}

func (s *Service) notifyCreated(ctx context.Context, post *models.Post, parent *models.Comment, comment *models.Comment) {
	if s.notifier == nil {
		return
	}
	notices := make([]notify.Notice, 0, 2)
	// the post author hears about replies to their own comments as post_comment
	if parent != nil && parent.AuthorID != post.AuthorID {
		notices = append(notices, notify.Notice{
			Recipient: parent.AuthorID,
			Type:      models.NotifyCommentReply,
			PostID:    post.ID,
			CommentID: comment.ID,
		})
	}
	notices = append(notices, notify.Notice{
		Recipient: post.AuthorID,
		Type:      models.NotifyPostComment,
		PostID:    post.ID,
		CommentID: comment.ID,
	})
	s.notifier.Notify(ctx, comment.AuthorID, notices...)
}

func (s *Service) logCounterFailure(ctx context.Context, counter, id string, err error) {
	logging.FromContext(ctx).Error("Counter update failed",
		zap.String("component", "comments"),
		zap.String("counter", counter),
		zap.String("target_id", id),
		zap.Error(err))
}

// owned loads a comment and checks callerID wrote it
func (s *Service) owned(ctx context.Context, commentID, callerID string) (*models.Comment, error) {
	comment, err := s.store.GetByID(ctx, commentID)
	if err != nil {
		return nil, apperr.Dependency("get comment", err)
	}
	if comment == nil {
		return nil, apperr.NotFound("comment")
	}
	if comment.AuthorID != callerID {
		return nil, apperr.Forbidden("only the author can change this comment")
	}
	return comment, nil
}

// Edit replaces the body of the caller's comment
func (s *Service) Edit(ctx context.Context, commentID, callerID, body string) (*models.Comment, error) {
	comment, err := s.owned(ctx, commentID, callerID)
	if err != nil {
		return nil, err
	}
	if comment.IsDeleted {
		return nil, apperr.Validation("comment_deleted", "a deleted comment cannot be edited")
	}
	body, err = ValidateBody(body)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateBody(ctx, commentID, body); err != nil {
		return nil, apperr.Dependency("update comment", err)
	}

	updated, err := s.store.GetByID(ctx, commentID)
	if err != nil {
		return nil, apperr.Dependency("get comment", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("comment")
	}
	return updated, nil
}

// Delete tombstones the caller's comment. The row and its replies stay in the thread.
func (s *Service) Delete(ctx context.Context, commentID, callerID string) error {
	comment, err := s.owned(ctx, commentID, callerID)
	if err != nil {
		return err
	}
	if comment.IsDeleted {
		return nil
	}
	changed, err := s.store.SoftDelete(ctx, commentID)
	if err != nil {
		return apperr.Dependency("delete comment", err)
	}
	if changed {
		if err := s.counter.AdjustCommentCount(ctx, comment.PostID, -1); err != nil {
			s.logCounterFailure(ctx, "comment_count", comment.PostID, err)
		}
	}
	return nil
}

// ListTopLevel returns top-level comments newest first, each with its oldest replies
func (s *Service) ListTopLevel(ctx context.Context, postID, viewerID, cursor string, limit int) (pagination.Page[models.Comment], error) {
	c, err := pagination.Parse(cursor)
	if err != nil {
		return pagination.Page[models.Comment]{}, err
	}
	limit = pagination.ClampLimit(limit, DefaultLimit, MaxLimit)

	if _, err := s.posts.Visible(ctx, postID, viewerID); err != nil {
		return pagination.Page[models.Comment]{}, err
	}

	top, err := s.store.ListTopLevel(ctx, postID, c, limit)
	if err != nil {
		return pagination.Page[models.Comment]{}, apperr.Dependency("list comments", err)
	}

	ids := make([]string, 0, len(top))
	for _, cm := range top {
		if cm.ReplyCount > 0 {
			ids = append(ids, cm.ID)
		}
	}
	previews, err := s.store.PreviewReplies(ctx, ids, PreviewCount)
	if err != nil {
		return pagination.Page[models.Comment]{}, apperr.Dependency("preview replies", err)
	}
	for i := range top {
		top[i].Replies = previews[top[i].ID]
	}

	if err := s.decorate(ctx, top, viewerID); err != nil {
		return pagination.Page[models.Comment]{}, err
	}
	return pagination.Build(top, limit, Key), nil
}

// ListReplies returns replies to a top-level comment oldest first, continuing after the cursor
func (s *Service) ListReplies(ctx context.Context, parentID, viewerID, after string, limit int) (pagination.Page[models.Comment], error) {
	c, err := pagination.Parse(after)
	if err != nil {
		return pagination.Page[models.Comment]{}, err
	}
	limit = pagination.ClampLimit(limit, DefaultLimit, MaxLimit)

	parent, err := s.store.GetByID(ctx, parentID)
	if err != nil {
		return pagination.Page[models.Comment]{}, apperr.Dependency("get comment", err)
	}
	if parent == nil {
		return pagination.Page[models.Comment]{}, apperr.NotFound("comment")
	}
	if _, err := s.posts.Visible(ctx, parent.PostID, viewerID); err != nil {
		return pagination.Page[models.Comment]{}, err
	}

	replies, err := s.store.ListReplies(ctx, parentID, c, limit)
	if err != nil {
		return pagination.Page[models.Comment]{}, apperr.Dependency("list replies", err)
	}
	if err := s.decorate(ctx, replies, viewerID); err != nil {
		return pagination.Page[models.Comment]{}, err
	}
	return pagination.Build(replies, limit, Key), nil
}

// Key is the cursor key of a comment
func Key(c models.Comment) pagination.Cursor {
	return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
}

// decorate fills viewer state on comments and their preview replies
func (s *Service) decorate(ctx context.Context, list []models.Comment, viewerID string) error {
	if viewerID == "" {
		return nil
	}
	ids := make([]string, 0, len(list))
	for _, cm := range list {
		ids = append(ids, cm.ID)
		for _, r := range cm.Replies {
			ids = append(ids, r.ID)
		}
	}
	snap, err := s.viewer.Load(ctx, models.TargetComment, ids, viewerID)
	if err != nil {
		return err
	}

	apply := func(cm *models.Comment) {
		cm.LikedByUser = snap.Liked[cm.ID]
		cm.ViewerReaction = snap.ViewerReaction(cm.ID)
	}
	for i := range list {
		apply(&list[i])
		for j := range list[i].Replies {
			apply(&list[i].Replies[j])
		}
	}
	return nil
}

func (s *Service) target(ctx context.Context, commentID, userID string) (engagement.Target, error) {
	comment, err := s.store.GetByID(ctx, commentID)
	if err != nil {
		return engagement.Target{}, apperr.Dependency("get comment", err)
	}
	if comment == nil || comment.IsDeleted {
		return engagement.Target{}, apperr.NotFound("comment")
	}
	if _, err := s.posts.Visible(ctx, comment.PostID, userID); err != nil {
		return engagement.Target{}, err
	}
	return engagement.Target{Kind: models.TargetComment, ID: comment.ID, OwnerID: comment.AuthorID, PostID: comment.PostID}, nil
}

// ToggleLike likes or unlikes a comment
func (s *Service) ToggleLike(ctx context.Context, commentID, userID string) (engagement.LikeResult, error) {
	t, err := s.target(ctx, commentID, userID)
	if err != nil {
		return engagement.LikeResult{}, err
	}
	return s.engagement.ToggleLike(ctx, t, userID)
}

// SetReaction sets the user's reaction on a comment
func (s *Service) SetReaction(ctx context.Context, commentID, userID, emoji string) (engagement.ReactionState, error) {
	if !models.IsValidEmoji(emoji) {
		return engagement.ReactionState{}, apperr.Validation("invalid_emoji", "emoji is not an allowed reaction")
	}
	t, err := s.target(ctx, commentID, userID)
	if err != nil {
		return engagement.ReactionState{}, err
	}
	return s.engagement.SetReaction(ctx, t, userID, emoji)
}

// ClearReaction removes the user's reaction from a comment
func (s *Service) ClearReaction(ctx context.Context, commentID, userID string) (engagement.ReactionState, error) {
	t, err := s.target(ctx, commentID, userID)
	if err != nil {
		return engagement.ReactionState{}, err
	}
	return s.engagement.ClearReaction(ctx, t, userID)
}
