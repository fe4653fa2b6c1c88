// Package posts creates, reads and soft-deletes posts and routes engagement on them.
package posts

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/besteffort"
	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/engagement"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/pagination"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

// Post limits
const (
	MaxBodyRunes         = 280
	MaxImportedBodyRunes = 2500
	MaxMedia             = 4

	DefaultLimit = 20
	MaxLimit     = 50

	awardReason = "post_created"
	awardPoints = 1
)

// Store persists posts. *db.PostRepository implements it.
type Store interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f db.PostFilter) ([]models.Post, error)
}

// Relations answers follow questions for visibility checks. *graph.Service implements it.
type Relations interface {
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
}

// Awarder grants gamification points. *db.AwardRepository implements it.
type Awarder interface {
	Award(ctx context.Context, userID, reason string, points int) error
}

// NewPost is the input of CreatePost
type NewPost struct {
	AuthorID   string
	Body       string
	Media      []models.Media
	Visibility string
	GroupID    *string
	Imported   bool
}

// Service is the post store adapter
type Service struct {
	store      Store
	relations  Relations
	engagement *engagement.Service
	viewer     *engagement.Viewer
	awarder    Awarder
	runner     *besteffort.Runner
	logger     *zap.Logger
}

// NewService creates a post service. awarder may be nil.
func NewService(store Store, relations Relations, eng *engagement.Service, viewer *engagement.Viewer, awarder Awarder, runner *besteffort.Runner) *Service {
	return &Service{
		store:      store,
		relations:  relations,
		engagement: eng,
		viewer:     viewer,
		awarder:    awarder,
		runner:     runner,
		logger:     logging.WithComponent("posts"),
	}
}

// ValidateBody trims body and checks it against the length limit
func ValidateBody(body string, imported bool) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperr.Validation("body_empty", "post body must not be empty")
	}
	max := MaxBodyRunes
	if imported {
		max = MaxImportedBodyRunes
	}
	if utf8.RuneCountInString(body) > max {
		return "", apperr.Validation("body_too_long", "post body is too long")
	}
	return body, nil
}

func validateVisibility(v string) (string, error) {
	switch v {
	case "":
		return models.VisibilityPublic, nil
	case models.VisibilityPublic, models.VisibilityFriends, models.VisibilityPrivate:
		return v, nil
	default:
		return "", apperr.Validation("invalid_visibility", "visibility must be public, friends or private")
	}
}

func validateMedia(media []models.Media) error {
	if len(media) > MaxMedia {
		return apperr.Validation("too_many_media", "a post may carry at most 4 media items")
	}
	for _, m := range media {
		if m.Type != models.MediaTypeImage && m.Type != models.MediaTypeVideo {
			return apperr.Validation("invalid_media", "media type must be image or video")
		}
		if strings.TrimSpace(m.URL) == "" {
			return apperr.Validation("invalid_media", "media url is required")
		}
	}
	return nil
}

// CreatePost validates and stores a post, then grants the author an award
func (s *Service) CreatePost(ctx context.Context, in NewPost) (*models.Post, error) {
	ctx, span := telemetry.StartSpan(ctx, "posts.CreatePost")
	defer span.End()

	body, err := ValidateBody(in.Body, in.Imported)
	if err != nil {
		return nil, err
	}
	visibility, err := validateVisibility(in.Visibility)
	if err != nil {
		return nil, err
	}
	if err := validateMedia(in.Media); err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:         uuid.NewString(),
		AuthorID:   in.AuthorID,
		Body:       body,
		Visibility: visibility,
		GroupID:    in.GroupID,
		Imported:   in.Imported,
		CreatedAt:  models.Timestamp(),
	}
	post.Media = make([]models.Media, len(in.Media))
	for i, m := range in.Media {
		m.ID = uuid.NewString()
		m.PostID = post.ID
		m.Position = i
		post.Media[i] = m
	}

	if err := s.store.Create(ctx, post); err != nil {
		return nil, apperr.Dependency("create post", err)
	}

	if s.awarder != nil {
		s.runner.Run(ctx, "posts.award", func(ctx context.Context) error {
			return s.awarder.Award(ctx, post.AuthorID, awardReason, awardPoints)
		})
	}

	s.logger.Debug("Post created", zap.String("post_id", post.ID), zap.String("author_id", post.AuthorID))
	return post, nil
}

// canSee applies the visibility rules to a live post
func (s *Service) canSee(ctx context.Context, post *models.Post, viewerID string) (bool, error) {
	if post.Visibility == models.VisibilityPublic || (viewerID != "" && viewerID == post.AuthorID) {
		return true, nil
	}
	if post.Visibility != models.VisibilityFriends || viewerID == "" {
		return false, nil
	}
	return s.relations.IsFollowing(ctx, viewerID, post.AuthorID)
}

// Visible loads a live post the viewer may see, or returns NotFound
func (s *Service) Visible(ctx context.Context, postID, viewerID string) (*models.Post, error) {
	post, err := s.store.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.Dependency("get post", err)
	}
	if post == nil || post.IsDeleted {
		return nil, apperr.NotFound("post")
	}
	ok, err := s.canSee(ctx, post, viewerID)
	if err != nil {
		return nil, apperr.Dependency("check visibility", err)
	}
	if !ok {
		return nil, apperr.NotFound("post")
	}
	return post, nil
}

// GetPost returns a visible post with the viewer's engagement state
func (s *Service) GetPost(ctx context.Context, postID, viewerID string) (*models.Post, error) {
	post, err := s.Visible(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	list := []models.Post{*post}
	if err := s.Decorate(ctx, list, viewerID); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListByAuthor returns the author's timeline as the viewer may see it
func (s *Service) ListByAuthor(ctx context.Context, authorID, viewerID, cursor string, limit int) (pagination.Page[models.Post], error) {
	c, err := pagination.Parse(cursor)
	if err != nil {
		return pagination.Page[models.Post]{}, err
	}
	limit = pagination.ClampLimit(limit, DefaultLimit, MaxLimit)

	filter := db.PostFilter{AuthorIDs: []string{authorID}, ViewerID: viewerID, Cursor: c, Limit: limit}
	if viewerID != "" && viewerID != authorID {
		following, err := s.relations.IsFollowing(ctx, viewerID, authorID)
		if err != nil {
			return pagination.Page[models.Post]{}, apperr.Dependency("check follow", err)
		}
		if following {
			filter.FollowedIDs = []string{authorID}
		}
	}

	posts, err := s.store.List(ctx, filter)
	if err != nil {
		return pagination.Page[models.Post]{}, apperr.Dependency("list posts", err)
	}
	if err := s.Decorate(ctx, posts, viewerID); err != nil {
		return pagination.Page[models.Post]{}, err
	}
	return pagination.Build(posts, limit, Key), nil
}

// Decorate fills the viewer's like state and reaction plus reaction aggregates in place
func (s *Service) Decorate(ctx context.Context, posts []models.Post, viewerID string) error {
	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	snap, err := s.viewer.Load(ctx, models.TargetPost, ids, viewerID)
	if err != nil {
		return err
	}
	for i := range posts {
		p := &posts[i]
		p.LikedByUser = snap.Liked[p.ID]
		p.ViewerReaction = snap.ViewerReaction(p.ID)
		p.Reactions = snap.Counts[p.ID]
	}
	return nil
}

// Key is the cursor key of a post
func Key(p models.Post) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// SoftDeletePost tombstones a post. Only its author may delete it; deleting twice is a no-op.
func (s *Service) SoftDeletePost(ctx context.Context, postID, callerID string) error {
	post, err := s.store.GetByID(ctx, postID)
	if err != nil {
		return apperr.Dependency("get post", err)
	}
	if post == nil {
		return apperr.NotFound("post")
	}
	if post.AuthorID != callerID {
		return apperr.Forbidden("only the author can delete this post")
	}
	if post.IsDeleted {
		return nil
	}
	if _, err := s.store.SoftDelete(ctx, postID); err != nil {
		return apperr.Dependency("delete post", err)
	}
	return nil
}

func (s *Service) target(ctx context.Context, postID, userID string) (engagement.Target, error) {
	post, err := s.Visible(ctx, postID, userID)
	if err != nil {
		return engagement.Target{}, err
	}
	return engagement.Target{Kind: models.TargetPost, ID: post.ID, OwnerID: post.AuthorID, PostID: post.ID}, nil
}

// ToggleLike likes or unlikes a post
func (s *Service) ToggleLike(ctx context.Context, postID, userID string) (engagement.LikeResult, error) {
	t, err := s.target(ctx, postID, userID)
	if err != nil {
		return engagement.LikeResult{}, err
	}
	return s.engagement.ToggleLike(ctx, t, userID)
}

// SetReaction sets the user's reaction on a post
func (s *Service) SetReaction(ctx context.Context, postID, userID, emoji string) (engagement.ReactionState, error) {
	if !models.IsValidEmoji(emoji) {
		return engagement.ReactionState{}, apperr.Validation("invalid_emoji", "emoji is not an allowed reaction")
	}
	t, err := s.target(ctx, postID, userID)
	if err != nil {
		return engagement.ReactionState{}, err
	}
	return s.engagement.SetReaction(ctx, t, userID, emoji)
}

// ClearReaction removes the user's reaction from a post
func (s *Service) ClearReaction(ctx context.Context, postID, userID string) (engagement.ReactionState, error) {
	t, err := s.target(ctx, postID, userID)
	if err != nil {
		return engagement.ReactionState{}, err
	}
	return s.engagement.ClearReaction(ctx, t, userID)
}

// ToggleReaction sets emoji, or clears it when it is already the user's reaction
func (s *Service) ToggleReaction(ctx context.Context, postID, userID, emoji string) (engagement.ReactionState, error) {
	if !models.IsValidEmoji(emoji) {
		return engagement.ReactionState{}, apperr.Validation("invalid_emoji", "emoji is not an allowed reaction")
	}
	t, err := s.target(ctx, postID, userID)
	if err != nil {
		return engagement.ReactionState{}, err
	}
	return s.engagement.ToggleReaction(ctx, t, userID, emoji)
}

// IncrementShareCount records a share of a post
func (s *Service) IncrementShareCount(ctx context.Context, postID, userID string) (int64, error) {
	if _, err := s.target(ctx, postID, userID); err != nil {
		return 0, err
	}
	return s.engagement.IncrementShareCount(ctx, postID)
}
