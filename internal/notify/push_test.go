package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/models"
)

type memDevices struct {
	subs  []models.PushSubscription
	prefs map[string]*models.NotificationPreference
}

func (m *memDevices) Subscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	var out []models.PushSubscription
	for _, s := range m.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memDevices) Register(ctx context.Context, userID, token, platform string) error {
	m.subs = append(m.subs, models.PushSubscription{UserID: userID, Token: token, Platform: platform})
	return nil
}

func (m *memDevices) DeleteToken(ctx context.Context, token string) error {
	for i, s := range m.subs {
		if s.Token == token {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memDevices) DeleteUserToken(ctx context.Context, userID, token string) error {
	return m.DeleteToken(ctx, token)
}

func (m *memDevices) Preferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	return m.prefs[userID], nil
}

func (m *memDevices) SavePreferences(ctx context.Context, pref *models.NotificationPreference) error {
	if m.prefs == nil {
		m.prefs = make(map[string]*models.NotificationPreference)
	}
	m.prefs[pref.UserID] = pref
	return nil
}

type fakeTransport struct {
	sent []string
	gone map[string]bool
	fail map[string]bool
}

func (f *fakeTransport) Send(ctx context.Context, token string, msg Message) error {
	if f.gone[token] {
		return fmt.Errorf("%w: unregistered", ErrEndpointGone)
	}
	if f.fail[token] {
		return errors.New("unavailable")
	}
	f.sent = append(f.sent, token)
	return nil
}

func intPtr(i int) *int { return &i }

func TestInQuietHours(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 6, 1, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		start, end *int
		tz         string
		now        time.Time
		want       bool
	}{
		{"no window", nil, nil, "UTC", at(3, 0), false},
		{"inside same-day window", intPtr(13 * 60), intPtr(15 * 60), "UTC", at(14, 0), true},
		{"end is exclusive", intPtr(13 * 60), intPtr(15 * 60), "UTC", at(15, 0), false},
		{"wraps midnight late", intPtr(22 * 60), intPtr(7 * 60), "UTC", at(23, 30), true},
		{"wraps midnight early", intPtr(22 * 60), intPtr(7 * 60), "UTC", at(6, 59), true},
		{"wraps midnight outside", intPtr(22 * 60), intPtr(7 * 60), "UTC", at(12, 0), false},
		{"empty window", intPtr(60), intPtr(60), "UTC", at(1, 0), false},
		{"timezone shift", intPtr(22 * 60), intPtr(7 * 60), "Asia/Tokyo", at(14, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pref := &models.NotificationPreference{QuietStart: tt.start, QuietEnd: tt.end, Timezone: tt.tz}
			if got := InQuietHours(pref, tt.now); got != tt.want {
				t.Errorf("InQuietHours() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatcher_Push(t *testing.T) {
	devices := &memDevices{subs: []models.PushSubscription{
		{UserID: "alice", Token: "good", Platform: "ios"},
		{UserID: "alice", Token: "stale", Platform: "android"},
		{UserID: "bob", Token: "bobs", Platform: "web"},
	}}
	transport := &fakeTransport{gone: map[string]bool{"stale": true}}
	d := NewDispatcher(devices, transport)
	d.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	err := d.Push(context.Background(), models.Notification{ID: "n1", RecipientID: "alice", ActorID: "bob", Type: models.NotifyPostLike})
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if len(transport.sent) != 1 || transport.sent[0] != "good" {
		t.Errorf("Expected only the good token sent, got %v", transport.sent)
	}
	subs, _ := devices.Subscriptions(context.Background(), "alice")
	if len(subs) != 1 {
		t.Errorf("Expected stale token pruned, %d subscriptions left", len(subs))
	}
}

func TestDispatcher_PushRespectsPreferences(t *testing.T) {
	devices := &memDevices{
		subs: []models.PushSubscription{{UserID: "alice", Token: "t1", Platform: "ios"}},
		prefs: map[string]*models.NotificationPreference{
			"alice": {UserID: "alice", Likes: false, Comments: true, Follows: true, Timezone: "UTC",
				QuietStart: intPtr(0), QuietEnd: intPtr(6 * 60)},
		},
	}
	transport := &fakeTransport{}
	d := NewDispatcher(devices, transport)
	ctx := context.Background()

	d.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	_ = d.Push(ctx, models.Notification{RecipientID: "alice", Type: models.NotifyPostLike})
	if len(transport.sent) != 0 {
		t.Error("Likes are switched off")
	}
	_ = d.Push(ctx, models.Notification{RecipientID: "alice", Type: models.NotifyPostComment})
	if len(transport.sent) != 1 {
		t.Error("Comments are switched on")
	}

	d.now = func() time.Time { return time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC) }
	_ = d.Push(ctx, models.Notification{RecipientID: "alice", Type: models.NotifyPostComment})
	if len(transport.sent) != 1 {
		t.Error("Quiet hours must suppress delivery")
	}
}

func TestDispatcher_PushReturnsSendFailures(t *testing.T) {
	devices := &memDevices{subs: []models.PushSubscription{{UserID: "alice", Token: "t1", Platform: "ios"}}}
	d := NewDispatcher(devices, &fakeTransport{fail: map[string]bool{"t1": true}})
	if err := d.Push(context.Background(), models.Notification{RecipientID: "alice", Type: models.NotifyFollow}); err == nil {
		t.Error("Expected send failure to be returned")
	}
	subs, _ := devices.Subscriptions(context.Background(), "alice")
	if len(subs) != 1 {
		t.Error("Transient failures must not prune tokens")
	}
}

func TestDispatcher_Preferences(t *testing.T) {
	d := NewDispatcher(&memDevices{}, &fakeTransport{})
	ctx := context.Background()

	pref, err := d.GetPreferences(ctx, "alice")
	if err != nil || !pref.Likes || !pref.Comments || !pref.Follows {
		t.Errorf("Expected defaults, got %+v, %v", pref, err)
	}

	tests := []struct {
		name string
		pref *models.NotificationPreference
		code string
	}{
		{"half window", &models.NotificationPreference{UserID: "alice", QuietStart: intPtr(10)}, "invalid_quiet_hours"},
		{"out of range", &models.NotificationPreference{UserID: "alice", QuietStart: intPtr(10), QuietEnd: intPtr(1440)}, "invalid_quiet_hours"},
		{"bad timezone", &models.NotificationPreference{UserID: "alice", Timezone: "Mars/Olympus"}, "invalid_timezone"},
		{"valid", &models.NotificationPreference{UserID: "alice", QuietStart: intPtr(1320), QuietEnd: intPtr(420), Timezone: "Europe/Berlin"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.SetPreferences(ctx, tt.pref)
			if tt.code == "" {
				if err != nil {
					t.Errorf("SetPreferences() error = %v", err)
				}
				return
			}
			e, ok := apperr.As(err)
			if !ok || e.Code != tt.code {
				t.Errorf("SetPreferences() error = %v, want %s", err, tt.code)
			}
		})
	}

	if err := d.RegisterDevice(ctx, "alice", "tok", "blackberry"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("RegisterDevice(bad platform) error = %v", err)
	}
	if err := d.RegisterDevice(ctx, "alice", "tok", "ios"); err != nil {
		t.Errorf("RegisterDevice() error = %v", err)
	}
}

func TestRenderMessage(t *testing.T) {
	postID := "p1"
	msg := renderMessage(models.Notification{
		ID: "n1", ActorID: "bob", Type: models.NotifyPostReaction, PostID: &postID,
		Metadata: map[string]interface{}{"emoji": models.EmojiFire, "actor_name": "Bob"},
	})
	if msg.Body != "Bob reacted 🔥 to your post" {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.Data["post_id"] != "p1" || msg.Data["type"] != models.NotifyPostReaction {
		t.Errorf("Data = %v", msg.Data)
	}
}
