// Package api exposes the feed, thread and notification services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/app"
	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/pkg/logging"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router sets up API routes
type Router struct {
	svc      *app.Services
	verifier *identity.Verifier
	checks   map[string]HealthChecker
	logger   *zap.Logger
}

// NewRouter creates a new API router. checks are probed by /health.
func NewRouter(svc *app.Services, verifier *identity.Verifier, checks map[string]HealthChecker) *Router {
	registerValidators()
	return &Router{
		svc:      svc,
		verifier: verifier,
		checks:   checks,
		logger:   logging.WithComponent("api-router"),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(RequestLogger())

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	v1.GET("/health", r.healthHandler)

	public := v1.Group("", r.verifier.OptionalAuth())
	public.GET("/posts/:id", r.getPost)
	public.GET("/users/:id/posts", r.listUserPosts)

	auth := v1.Group("", r.verifier.RequireAuth())

	auth.GET("/feed", r.getFeed)

	auth.POST("/posts", r.createPost)
	auth.DELETE("/posts/:id", r.deletePost)
	auth.POST("/posts/:id/like", r.likePost)
	auth.POST("/posts/:id/share", r.sharePost)
	auth.PUT("/posts/:id/reaction", r.reactPost)
	auth.DELETE("/posts/:id/reaction", r.unreactPost)
	auth.GET("/posts/:id/comments", r.listComments)
	auth.POST("/posts/:id/comments", r.createComment)

	auth.GET("/comments/:id/replies", r.listReplies)
	auth.PATCH("/comments/:id", r.editComment)
	auth.DELETE("/comments/:id", r.deleteComment)
	auth.POST("/comments/:id/like", r.likeComment)
	auth.PUT("/comments/:id/reaction", r.reactComment)
	auth.DELETE("/comments/:id/reaction", r.unreactComment)

	auth.GET("/notifications", r.listNotifications)
	auth.GET("/notifications/unread-count", r.unreadCount)
	auth.POST("/notifications/read", r.markRead)
	auth.DELETE("/notifications/:id", r.deleteNotification)
	auth.POST("/devices", r.registerDevice)
	auth.DELETE("/devices/:token", r.unregisterDevice)
	auth.GET("/notification-preferences", r.getPreferences)
	auth.PUT("/notification-preferences", r.setPreferences)

	auth.POST("/users/:id/follow", r.follow)
	auth.DELETE("/users/:id/follow", r.unfollow)
	auth.POST("/users/:id/accept", r.accept)
	auth.POST("/users/:id/block", r.block)
	auth.DELETE("/users/:id/block", r.unblock)

	auth.GET("/link-preview", r.linkPreview)
	auth.POST("/media/images", r.uploadImage)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range r.checks {
		if err := check.Health(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "OK"
	if status != http.StatusOK {
		state = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "underpines-api",
		"dependencies": deps,
	})
}

// page is the query of a cursor paginated listing
type page struct {
	Cursor string `form:"cursor"`
	After  string `form:"after"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

func bindPage(c *gin.Context) (page, bool) {
	var p page
	if err := c.ShouldBindQuery(&p); err != nil {
		respondError(c, bindError(err))
		return p, false
	}
	return p, true
}
