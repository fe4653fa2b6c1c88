package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/besteffort"
	"github.com/underpines/pines/internal/db"
	"github.com/underpines/pines/internal/db/dbtest"
	"github.com/underpines/pines/internal/engagement"
	"github.com/underpines/pines/internal/graph"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/posts"
)

type fixture struct {
	composer *Composer
	posts    *posts.Service
	graph    *graph.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := dbtest.New(t)
	engRepo := db.NewEngagementRepository(repo)
	postRepo := db.NewPostRepository(repo)
	gr := graph.NewService(db.NewRelationshipRepository(repo), db.NewAccountSettingsRepository(repo), nil)
	postSvc := posts.NewService(postRepo, gr, engagement.NewService(engRepo, nil), engagement.NewViewer(engRepo), nil,
		besteffort.NewWithMeter(noop.NewMeterProvider().Meter("test")))
	return &fixture{composer: NewComposer(postRepo, gr, postSvc), posts: postSvc, graph: gr}
}

func (f *fixture) seed(t *testing.T, author, visibility string) *models.Post {
	t.Helper()
	p, err := f.posts.CreatePost(context.Background(), posts.NewPost{AuthorID: author, Body: author + " " + visibility, Visibility: visibility})
	if err != nil {
		t.Fatalf("CreatePost() error = %v", err)
	}
	return p
}

func authorsOf(list []models.Post) map[string]int {
	out := map[string]int{}
	for _, p := range list {
		out[p.AuthorID]++
	}
	return out
}

func TestCompose_Scopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seed(t, "viewer", models.VisibilityPrivate)
	f.seed(t, "friend", models.VisibilityPublic)
	f.seed(t, "friend", models.VisibilityFriends)
	f.seed(t, "friend", models.VisibilityPrivate)
	f.seed(t, "stranger", models.VisibilityPublic)
	f.seed(t, "stranger", models.VisibilityFriends)
	gone := f.seed(t, "friend", models.VisibilityPublic)
	f.posts.SoftDeletePost(ctx, gone.ID, "friend")

	if _, err := f.graph.Follow(ctx, "viewer", "friend"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	following, err := f.composer.Compose(ctx, "viewer", ScopeFollowing, "", 0)
	if err != nil {
		t.Fatalf("Compose(following) error = %v", err)
	}
	got := authorsOf(following.Items)
	if got["viewer"] != 1 || got["friend"] != 2 || got["stranger"] != 0 {
		t.Errorf("Following feed authors = %v", got)
	}

	other, err := f.composer.Compose(ctx, "viewer", ScopeOther, "", 0)
	if err != nil {
		t.Fatalf("Compose(other) error = %v", err)
	}
	got = authorsOf(other.Items)
	if len(got) != 1 || got["stranger"] != 1 {
		t.Errorf("Other feed authors = %v", got)
	}
}

func TestCompose_FollowingNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.graph.Follow(ctx, "a", "b"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	for _, p := range []posts.NewPost{
		{AuthorID: "a", Body: "hello"},
		{AuthorID: "b", Body: "world"},
		{AuthorID: "c", Body: "spam"},
	} {
		if _, err := f.posts.CreatePost(ctx, p); err != nil {
			t.Fatalf("CreatePost() error = %v", err)
		}
		// distinct created_at at microsecond precision
		time.Sleep(2 * time.Millisecond)
	}

	page, err := f.composer.Compose(ctx, "a", ScopeFollowing, "", 0)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	var bodies []string
	for _, p := range page.Items {
		bodies = append(bodies, p.Body)
	}
	if len(bodies) != 2 || bodies[0] != "world" || bodies[1] != "hello" {
		t.Errorf("Following feed = %q, want [world hello]", bodies)
	}
}

func TestCompose_PagesAndViewerState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.seed(t, "viewer", models.VisibilityPublic)
	}
	liked := f.seed(t, "viewer", models.VisibilityPublic)
	if _, err := f.posts.ToggleLike(ctx, liked.ID, "viewer"); err != nil {
		t.Fatalf("ToggleLike() error = %v", err)
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := f.composer.Compose(ctx, "viewer", "", cursor, 4)
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		pages++
		for _, p := range page.Items {
			if seen[p.ID] {
				t.Errorf("Post %s repeated across pages", p.ID)
			}
			seen[p.ID] = true
			if p.ID == liked.ID && !p.LikedByUser {
				t.Error("Expected liked_by_user on the liked post")
			}
		}
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	if len(seen) != 6 || pages != 2 {
		t.Errorf("Walked %d posts over %d pages, want 6 over 2", len(seen), pages)
	}
}

type brokenGraph struct{}

func (brokenGraph) Followees(ctx context.Context, userID string) ([]string, error) {
	return nil, errors.New("connection reset")
}

func TestCompose_FolloweeFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "stranger", models.VisibilityPublic)
	composer := NewComposer(nil, brokenGraph{}, f.posts)

	_, err := composer.Compose(context.Background(), "viewer", ScopeFollowing, "", 0)
	if !apperr.Is(err, apperr.KindDependency) {
		t.Errorf("Compose() error = %v, want dependency error", err)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", ScopeFollowing, false},
		{"following", ScopeFollowing, false},
		{"other", ScopeOther, false},
		{"trending", "", true},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseScope(%q) = %q, %v", tt.in, got, err)
		}
	}
}
