// Package app assembles the services behind the HTTP API from their stores.
package app

import (
	"github.com/underpines/pines/internal/besteffort"
	"github.com/underpines/pines/internal/cache"
	"github.com/underpines/pines/internal/comments"
	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/engagement"
	"github.com/underpines/pines/internal/feed"
	"github.com/underpines/pines/internal/graph"
	"github.com/underpines/pines/internal/linkpreview"
	"github.com/underpines/pines/internal/media"
	"github.com/underpines/pines/internal/notify"
	"github.com/underpines/pines/internal/posts"
	"github.com/underpines/pines/pkg/config"
)

// Deps are the connections and transports the services run on
type Deps struct {
	Repo *db.Repository
	// Cache may be nil; caching is then skipped
	Cache *cache.Cache
	// Transport delivers push messages. Nil disables push.
	Transport notify.Transport
	// Objects stores uploaded media. Nil disables uploads.
	Objects media.ObjectStore
	Preview config.PreviewConfig
	Runner  *besteffort.Runner
}

// Services is the wired service graph
type Services struct {
	Posts    *posts.Service
	Comments *comments.Service
	Feed     *feed.Composer
	Graph    *graph.Service
	Notify   *notify.Service
	Push     *notify.Dispatcher
	Previews *linkpreview.Fetcher
	// Media is nil when no object store is configured
	Media *media.Pipeline
}

// New wires the services
func New(d Deps) *Services {
	runner := d.Runner
	if runner == nil {
		runner = besteffort.New()
	}

	pushRepo := db.NewPushRepository(d.Repo)
	dispatcher := notify.NewDispatcher(pushRepo, d.Transport)
	var pusher notify.Pusher
	if d.Transport != nil {
		pusher = dispatcher
	}
	notifier := notify.NewService(db.NewNotificationRepository(d.Repo), d.Cache, pusher, runner)

	engRepo := db.NewEngagementRepository(d.Repo)
	eng := engagement.NewService(engRepo, notifier)
	viewer := engagement.NewViewer(engRepo)

	gr := graph.NewService(db.NewRelationshipRepository(d.Repo), db.NewAccountSettingsRepository(d.Repo), notifier)

	postRepo := db.NewPostRepository(d.Repo)
	postSvc := posts.NewService(postRepo, gr, eng, viewer, db.NewAwardRepository(d.Repo), runner)

	s := &Services{
		Posts:    postSvc,
		Comments: comments.NewService(db.NewCommentRepository(d.Repo), postSvc, postRepo, eng, viewer, notifier),
		Feed:     feed.NewComposer(postRepo, gr, postSvc),
		Graph:    gr,
		Notify:   notifier,
		Push:     dispatcher,
		Previews: linkpreview.NewFetcher(db.NewPreviewRepository(d.Repo), d.Cache, d.Preview),
	}
	if d.Objects != nil {
		s.Media = media.NewPipeline(d.Objects)
	}
	return s
}
