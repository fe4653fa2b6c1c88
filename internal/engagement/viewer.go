package engagement

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/underpines/pines/internal/apperr"
)

// ViewerStore reads per-viewer and aggregate engagement. *db.EngagementRepository implements it.
type ViewerStore interface {
	LikedBy(ctx context.Context, kind string, targetIDs []string, userID string) (map[string]bool, error)
	ViewerReactions(ctx context.Context, kind string, targetIDs []string, userID string) (map[string]string, error)
	ReactionCounts(ctx context.Context, kind string, targetIDs []string) (map[string]map[string]int64, error)
}

// Snapshot is the engagement state of a set of targets as seen by one viewer
type Snapshot struct {
	Liked     map[string]bool
	Reactions map[string]string
	Counts    map[string]map[string]int64
}

// ViewerReaction returns the viewer's emoji on id, or nil
func (s Snapshot) ViewerReaction(id string) *string {
	e, ok := s.Reactions[id]
	if !ok {
		return nil
	}
	return &e
}

// Viewer loads engagement snapshots for listings
type Viewer struct {
	store ViewerStore
}

// NewViewer creates a Viewer
func NewViewer(store ViewerStore) *Viewer {
	return &Viewer{store: store}
}

// Load reads like state, reactions and reaction counts of ids concurrently.
// An anonymous viewer gets counts only.
func (v *Viewer) Load(ctx context.Context, kind string, ids []string, viewerID string) (Snapshot, error) {
	snap := Snapshot{
		Liked:     map[string]bool{},
		Reactions: map[string]string{},
		Counts:    map[string]map[string]int64{},
	}
	if len(ids) == 0 {
		return snap, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := v.store.ReactionCounts(gctx, kind, ids)
		if err == nil {
			snap.Counts = counts
		}
		return err
	})
	if viewerID != "" {
		g.Go(func() error {
			liked, err := v.store.LikedBy(gctx, kind, ids, viewerID)
			if err == nil {
				snap.Liked = liked
			}
			return err
		})
		g.Go(func() error {
			reactions, err := v.store.ViewerReactions(gctx, kind, ids, viewerID)
			if err == nil {
				snap.Reactions = reactions
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, apperr.Dependency("load viewer state", err)
	}
	return snap, nil
}
