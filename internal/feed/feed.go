// Package feed composes the home timeline from the relationship graph and the post store.
package feed

import (
	"context"

	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/pagination"
	"github.com/underpines/pines/pkg/logging"
	"github.com/underpines/pines/pkg/telemetry"
)

// Feed scopes
const (
	ScopeFollowing = "following"
	ScopeOther     = "other"

	DefaultLimit = 20
	MaxLimit     = 50
)

// PostLister lists posts by filter. *db.PostRepository implements it.
type PostLister interface {
	List(ctx context.Context, f db.PostFilter) ([]models.Post, error)
}

// Graph yields a user's accepted followees. *graph.Service implements it.
type Graph interface {
	Followees(ctx context.Context, userID string) ([]string, error)
}

// Decorator fills viewer engagement state. *posts.Service implements it.
type Decorator interface {
	Decorate(ctx context.Context, posts []models.Post, viewerID string) error
}

// Composer builds feed pages
type Composer struct {
	posts     PostLister
	graph     Graph
	decorator Decorator
	logger    *zap.Logger
}

// NewComposer creates a feed composer
func NewComposer(posts PostLister, graph Graph, decorator Decorator) *Composer {
	return &Composer{
		posts:     posts,
		graph:     graph,
		decorator: decorator,
		logger:    logging.WithComponent("feed"),
	}
}

// ParseScope maps the request scope, defaulting to following
func ParseScope(s string) (string, error) {
	switch s {
	case "", ScopeFollowing:
		return ScopeFollowing, nil
	case ScopeOther:
		return ScopeOther, nil
	default:
		return "", apperr.Validation("invalid_scope", "scope must be following or other")
	}
}

// Compose returns one page of the viewer's feed. The following scope holds the viewer's own
// posts and those of accepted followees; other holds public posts from everyone else.
// A failed followee lookup fails the request rather than widening the feed.
func (c *Composer) Compose(ctx context.Context, viewerID, scope, cursor string, limit int) (pagination.Page[models.Post], error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.Compose")
	defer span.End()

	scope, err := ParseScope(scope)
	if err != nil {
		return pagination.Page[models.Post]{}, err
	}
	cur, err := pagination.Parse(cursor)
	if err != nil {
		return pagination.Page[models.Post]{}, err
	}
	limit = pagination.ClampLimit(limit, DefaultLimit, MaxLimit)

	followees, err := c.graph.Followees(ctx, viewerID)
	if err != nil {
		logging.FromContext(ctx).Error("Followee lookup failed",
			zap.String("component", "feed"),
			zap.String("viewer_id", viewerID),
			zap.Error(err))
		return pagination.Page[models.Post]{}, apperr.Dependency("load followees", err)
	}
	authors := append([]string{viewerID}, followees...)

	filter := db.PostFilter{ViewerID: viewerID, Cursor: cur, Limit: limit}
	if scope == ScopeFollowing {
		filter.AuthorIDs = authors
		filter.FollowedIDs = followees
	} else {
		filter.ExcludeAuthorIDs = authors
		filter.PublicOnly = true
	}

	list, err := c.posts.List(ctx, filter)
	if err != nil {
		return pagination.Page[models.Post]{}, apperr.Dependency("list feed", err)
	}
	if err := c.decorator.Decorate(ctx, list, viewerID); err != nil {
		return pagination.Page[models.Post]{}, err
	}
	return pagination.Build(list, limit, key), nil
}

func key(p models.Post) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}
