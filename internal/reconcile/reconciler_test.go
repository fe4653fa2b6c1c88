package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/db/dbtest"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/pkg/config"
)

type countingCounters struct {
	calls     int32
	batchSize int
	err       error
}

func (c *countingCounters) Recount(ctx context.Context, batchSize int) (map[string]int64, error) {
	atomic.AddInt32(&c.calls, 1)
	c.batchSize = batchSize
	return map[string]int64{"post_likes": 0}, c.err
}

func TestRunOnce_RepairsDrift(t *testing.T) {
	repo := dbtest.New(t)
	ctx := context.Background()
	posts := db.NewPostRepository(repo)
	engagement := db.NewEngagementRepository(repo)
	previews := db.NewPreviewRepository(repo)

	post := &models.Post{ID: "p1", AuthorID: "alice", Body: "drift", Visibility: models.VisibilityPublic, CreatedAt: models.Timestamp()}
	if err := posts.Create(ctx, post); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	engagement.InsertLike(ctx, models.TargetPost, "p1", "bob")
	engagement.InsertLike(ctx, models.TargetPost, "p1", "carol")
	// counters were never adjusted, so like_count is stale at 0

	previews.Upsert(ctx, &models.LinkPreview{URL: "https://old.example", Status: 200, ExpiresAt: models.Timestamp().Add(-time.Hour)})

	r := New(db.NewCounterRepository(repo), previews, config.ReconcilerConfig{Interval: time.Hour, BatchSize: 100})
	fixed, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if fixed["post_likes"] != 1 {
		t.Errorf("Fixed = %v, want one post_likes row", fixed)
	}
	if n, _ := engagement.LikeCount(ctx, models.TargetPost, "p1"); n != 2 {
		t.Errorf("LikeCount = %d after reconcile, want 2", n)
	}
	if p, _ := previews.Get(ctx, "https://old.example"); p != nil {
		t.Error("Expected expired preview to be pruned")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	counters := &countingCounters{err: errors.New("transient")}
	r := New(counters, nil, config.ReconcilerConfig{Interval: 10 * time.Millisecond, BatchSize: 42})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if n := atomic.LoadInt32(&counters.calls); n < 2 {
		t.Errorf("Recount called %d times, want repeated passes despite failures", n)
	}
	if counters.batchSize != 42 {
		t.Errorf("Batch size = %d, want 42", counters.batchSize)
	}
}
