package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/internal/notify"
)

type edgeKey struct{ from, to string }

type memStore struct {
	edges map[edgeKey]models.Relationship
}

func newMemStore() *memStore {
	return &memStore{edges: make(map[edgeKey]models.Relationship)}
}

func (m *memStore) Get(ctx context.Context, followerID, followeeID string) (*models.Relationship, error) {
	rel, ok := m.edges[edgeKey{followerID, followeeID}]
	if !ok {
		return nil, nil
	}
	return &rel, nil
}

func (m *memStore) Save(ctx context.Context, rel *models.Relationship) error {
	m.edges[edgeKey{rel.FollowerID, rel.FolloweeID}] = *rel
	return nil
}

func (m *memStore) Delete(ctx context.Context, followerID, followeeID string) error {
	delete(m.edges, edgeKey{followerID, followeeID})
	return nil
}

func (m *memStore) Block(ctx context.Context, blockerID, blockedID string) error {
	delete(m.edges, edgeKey{blockedID, blockerID})
	m.edges[edgeKey{blockerID, blockedID}] = models.Relationship{FollowerID: blockerID, FolloweeID: blockedID, State: models.RelationBlocked}
	return nil
}

func (m *memStore) BlockedEither(ctx context.Context, a, b string) (bool, error) {
	return m.edges[edgeKey{a, b}].State == models.RelationBlocked || m.edges[edgeKey{b, a}].State == models.RelationBlocked, nil
}

func (m *memStore) Followees(ctx context.Context, followerID string) ([]string, error) {
	ids := []string{}
	for k, rel := range m.edges {
		if k.from == followerID && rel.State == models.RelationAccepted {
			ids = append(ids, k.to)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type privacy map[string]bool

func (p privacy) IsPrivate(ctx context.Context, userID string) (bool, error) {
	return p[userID], nil
}

type recordingNotifier struct {
	notices []notify.Notice
}

func (r *recordingNotifier) Notify(ctx context.Context, actorID string, notices ...notify.Notice) {
	r.notices = append(r.notices, notices...)
}

func TestFollow(t *testing.T) {
	tests := []struct {
		name       string
		private    bool
		wantState  string
		wantNotice string
	}{
		{name: "public account", wantState: models.RelationAccepted, wantNotice: models.NotifyFollow},
		{name: "private account", private: true, wantState: models.RelationRequested, wantNotice: models.NotifyFollowRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &recordingNotifier{}
			svc := NewService(newMemStore(), privacy{"bob": tt.private}, notifier)

			state, err := svc.Follow(context.Background(), "alice", "bob")
			if err != nil {
				t.Fatalf("Follow() error = %v", err)
			}
			if state != tt.wantState {
				t.Errorf("Follow() state = %q, want %q", state, tt.wantState)
			}
			if len(notifier.notices) != 1 || notifier.notices[0].Type != tt.wantNotice || notifier.notices[0].Recipient != "bob" {
				t.Errorf("Notices = %+v, want one %s to bob", notifier.notices, tt.wantNotice)
			}

			again, err := svc.Follow(context.Background(), "alice", "bob")
			if err != nil || again != tt.wantState {
				t.Errorf("Repeated Follow() = %q, %v", again, err)
			}
			if len(notifier.notices) != 1 {
				t.Error("Repeated Follow() must not notify again")
			}
		})
	}
}

func TestFollow_Rejections(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, privacy{}, nil)
	ctx := context.Background()

	if _, err := svc.Follow(ctx, "alice", "alice"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Self follow error = %v, want validation", err)
	}

	if err := svc.Block(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if _, err := svc.Follow(ctx, "alice", "bob"); !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("Follow of blocker error = %v, want authorization", err)
	}
	if _, err := svc.Follow(ctx, "bob", "alice"); !apperr.Is(err, apperr.KindAuthorization) {
		t.Errorf("Follow of blocked user error = %v, want authorization", err)
	}
}

func TestAccept(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(newMemStore(), privacy{"bob": true}, notifier)
	ctx := context.Background()

	if err := svc.Accept(ctx, "bob", "alice"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Accept() without request error = %v, want not found", err)
	}

	if _, err := svc.Follow(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	following, _ := svc.IsFollowing(ctx, "alice", "bob")
	if following {
		t.Error("A pending request is not a follow")
	}

	if err := svc.Accept(ctx, "bob", "alice"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	following, _ = svc.IsFollowing(ctx, "alice", "bob")
	if !following {
		t.Error("Expected alice to follow bob after Accept")
	}

	last := notifier.notices[len(notifier.notices)-1]
	if last.Type != models.NotifyFollowAccept || last.Recipient != "alice" {
		t.Errorf("Expected follow_accept to alice, got %+v", last)
	}
}

func TestBlockUnblock(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, privacy{}, nil)
	ctx := context.Background()

	svc.Follow(ctx, "alice", "bob")
	svc.Follow(ctx, "bob", "alice")

	if err := svc.Block(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if ids, _ := svc.Followees(ctx, "bob"); len(ids) != 0 {
		t.Errorf("Block should remove bob's follow, got %v", ids)
	}
	if ids, _ := svc.Followees(ctx, "alice"); len(ids) != 0 {
		t.Errorf("Blocked edge is not a followee, got %v", ids)
	}

	// unfollow leaves blocks in place
	svc.Unfollow(ctx, "alice", "bob")
	if blocked, _ := store.BlockedEither(ctx, "alice", "bob"); !blocked {
		t.Error("Unfollow must not lift a block")
	}

	if err := svc.Unblock(ctx, "alice", "bob"); err != nil {
		t.Fatalf("Unblock() error = %v", err)
	}
	if _, err := svc.Follow(ctx, "bob", "alice"); err != nil {
		t.Errorf("Follow() after unblock error = %v", err)
	}
}

func TestFollowees(t *testing.T) {
	svc := NewService(newMemStore(), privacy{"dave": true}, nil)
	ctx := context.Background()
	for _, u := range []string{"carol", "bob", "dave"} {
		svc.Follow(ctx, "alice", u)
	}

	ids, err := svc.Followees(ctx, "alice")
	if err != nil {
		t.Fatalf("Followees() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "bob" || ids[1] != "carol" {
		t.Errorf("Followees() = %v, want [bob carol]", ids)
	}
}
