package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/underpines/pines/internal/app"
	"github.com/underpines/pines/internal/besteffort"
	"github.com/underpines/pines/internal/db/dbtest"
	"github.com/underpines/pines/internal/identity"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/pkg/config"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) URL(key string) string {
	return "https://cdn.test/" + key
}

func (m *memObjects) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return m.URL(key), nil
}

type staticCheck struct {
	err error
}

func (s staticCheck) Health(ctx context.Context) error {
	return s.err
}

type testServer struct {
	engine   *gin.Engine
	verifier *identity.Verifier
}

func newTestServer(t *testing.T, checks map[string]HealthChecker) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := app.New(app.Deps{
		Repo:    dbtest.New(t),
		Objects: &memObjects{objects: map[string][]byte{}},
		Preview: config.PreviewConfig{
			Timeout:    2 * time.Second,
			MaxBytes:   1 << 20,
			SuccessTTL: time.Hour,
			FailureTTL: time.Minute,
			UserAgent:  "test",

			AllowPrivateHosts: true,
		},
		Runner: besteffort.NewWithMeter(noop.NewMeterProvider().Meter("test")),
	})
	verifier := identity.NewVerifier("test-secret", "")

	engine := gin.New()
	NewRouter(svc, verifier, checks).SetupRoutes(engine)
	return &testServer{engine: engine, verifier: verifier}
}

// do sends a JSON request as user; an empty user sends no token
func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	s.authorize(t, req, user)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) authorize(t *testing.T, req *http.Request, user string) {
	t.Helper()
	if user == "" {
		return
	}
	token, err := s.verifier.SignToken(user, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	body := decode[ErrorBody](t, w)
	if body.Error.Code != code {
		t.Errorf("Error code = %q, want %q", body.Error.Code, code)
	}
}

func (s *testServer) createPost(t *testing.T, author, body string) models.Post {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/posts", author, gin.H{"body": body})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /posts status = %d, body %s", w.Code, w.Body.String())
	}
	return decode[models.Post](t, w)
}

type listBody[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	expectError(t, s.do(t, http.MethodGet, "/api/v1/feed", "", nil), http.StatusUnauthorized, "unauthorized")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	expectError(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Header().Get(headerRequestID) == "" {
		t.Error("Expected a generated request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	if got := w.Header().Get(headerRequestID); got != "abc-123" {
		t.Errorf("Request id = %q, want the caller's", got)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthChecker
		want   int
	}{
		{"healthy", map[string]HealthChecker{"database": staticCheck{}}, http.StatusOK},
		{"degraded", map[string]HealthChecker{"database": staticCheck{}, "cache": staticCheck{errors.New("down")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.checks)
			if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	post := s.createPost(t, "alice", "  first light over the ridge  ")
	if post.Body != "first light over the ridge" || post.AuthorID != "alice" {
		t.Errorf("Created post = %+v", post)
	}
	path := "/api/v1/posts/" + post.ID

	if w := s.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
		t.Errorf("Anonymous GET status = %d, want 200", w.Code)
	}

	w := s.do(t, http.MethodPost, path+"/like", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Like status = %d, body %s", w.Code, w.Body.String())
	}
	if like := decode[map[string]interface{}](t, w); like["liked"] != true || like["likeCount"] != float64(1) {
		t.Errorf("Like = %v", like)
	}

	expectError(t, s.do(t, http.MethodPut, path+"/reaction", "bob", gin.H{"emoji": "🦄"}), http.StatusBadRequest, "invalid_emoji")
	w = s.do(t, http.MethodPut, path+"/reaction", "bob", gin.H{"emoji": models.EmojiHeart})
	if w.Code != http.StatusOK {
		t.Fatalf("Reaction status = %d, body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, path, "bob", nil)
	got := decode[models.Post](t, w)
	if !got.LikedByUser || got.ViewerReaction == nil || *got.ViewerReaction != models.EmojiHeart {
		t.Errorf("Viewer state = liked %v reaction %v", got.LikedByUser, got.ViewerReaction)
	}

	if w := s.do(t, http.MethodPost, path+"/share", "bob", nil); w.Code != http.StatusOK {
		t.Errorf("Share status = %d", w.Code)
	}

	expectError(t, s.do(t, http.MethodDelete, path, "bob", nil), http.StatusForbidden, "forbidden")
	if w := s.do(t, http.MethodDelete, path, "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("Delete status = %d", w.Code)
	}
	expectError(t, s.do(t, http.MethodGet, path, "bob", nil), http.StatusNotFound, "not_found")
}

func TestCreatePost_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"empty body", gin.H{"body": "  "}, "body_empty"},
		{"too long", gin.H{"body": strings.Repeat("x", 281)}, "body_too_long"},
		{"bad visibility", gin.H{"body": "hi", "visibility": "everyone"}, "invalid_visibility"},
		{"malformed json", "not an object", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, s.do(t, http.MethodPost, "/api/v1/posts", "alice", tt.body), http.StatusBadRequest, tt.code)
		})
	}
}

func TestFeedThreadAndNotifications(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/users/alice/follow", "bob", nil)
	if state := decode[map[string]string](t, w)["state"]; state != models.RelationAccepted {
		t.Fatalf("Follow state = %q, want accepted", state)
	}
	expectError(t, s.do(t, http.MethodPost, "/api/v1/users/bob/follow", "bob", nil), http.StatusBadRequest, "self_follow")

	post := s.createPost(t, "alice", "trailhead at dawn")
	s.createPost(t, "carol", "unrelated")

	feed := decode[listBody[models.Post]](t, s.do(t, http.MethodGet, "/api/v1/feed?scope=following", "bob", nil))
	if len(feed.Items) != 1 || feed.Items[0].ID != post.ID {
		t.Errorf("Following feed = %+v, want alice's post only", feed.Items)
	}
	other := decode[listBody[models.Post]](t, s.do(t, http.MethodGet, "/api/v1/feed?scope=other", "bob", nil))
	if len(other.Items) != 1 || other.Items[0].AuthorID != "carol" {
		t.Errorf("Other feed = %+v, want carol's post only", other.Items)
	}

	w = s.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", "bob", gin.H{"body": "see you there"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Comment status = %d, body %s", w.Code, w.Body.String())
	}
	comment := decode[models.Comment](t, w)

	w = s.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", "alice", gin.H{"body": "bring water", "parentId": comment.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("Reply status = %d, body %s", w.Code, w.Body.String())
	}

	thread := decode[listBody[models.Comment]](t, s.do(t, http.MethodGet, "/api/v1/posts/"+post.ID+"/comments", "bob", nil))
	if len(thread.Items) != 1 || len(thread.Items[0].Replies) != 1 {
		t.Fatalf("Thread = %+v, want one comment with one reply preview", thread.Items)
	}
	replies := decode[listBody[models.Comment]](t, s.do(t, http.MethodGet, "/api/v1/comments/"+comment.ID+"/replies", "bob", nil))
	if len(replies.Items) != 1 || replies.Items[0].Body != "bring water" {
		t.Errorf("Replies = %+v", replies.Items)
	}

	unread := decode[map[string]int64](t, s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "alice", nil))
	if unread["count"] != 2 {
		t.Errorf("Alice unread = %d, want follow and comment", unread["count"])
	}
	inbox := decode[listBody[models.Notification]](t, s.do(t, http.MethodGet, "/api/v1/notifications", "bob", nil))
	if len(inbox.Items) != 1 || inbox.Items[0].Type != models.NotifyCommentReply {
		t.Errorf("Bob inbox = %+v, want one comment_reply", inbox.Items)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/notifications/read", "alice", gin.H{"all": true}); w.Code != http.StatusNoContent {
		t.Fatalf("Mark read status = %d", w.Code)
	}
	unread = decode[map[string]int64](t, s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "alice", nil))
	if unread["count"] != 0 {
		t.Errorf("Alice unread after read-all = %d, want 0", unread["count"])
	}
}

func TestListing_BadQuery(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		path string
		code string
	}{
		{"/api/v1/feed?cursor=garbage", "invalid_cursor"},
		{"/api/v1/feed?limit=abc", "invalid_request"},
		{"/api/v1/feed?scope=everyone", "invalid_scope"},
		{"/api/v1/notifications?limit=-1", "invalid_request"},
		{"/api/v1/link-preview", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			expectError(t, s.do(t, http.MethodGet, tt.path, "bob", nil), http.StatusBadRequest, tt.code)
		})
	}
}

func TestDevicesAndPreferences(t *testing.T) {
	s := newTestServer(t, nil)

	expectError(t, s.do(t, http.MethodPost, "/api/v1/devices", "bob", gin.H{"token": "t1", "platform": "fridge"}), http.StatusBadRequest, "invalid_platform")
	if w := s.do(t, http.MethodPost, "/api/v1/devices", "bob", gin.H{"token": "t1", "platform": "ios"}); w.Code != http.StatusNoContent {
		t.Fatalf("Register status = %d, body %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/devices/t1", "bob", nil); w.Code != http.StatusNoContent {
		t.Errorf("Unregister status = %d", w.Code)
	}

	pref := decode[models.NotificationPreference](t, s.do(t, http.MethodGet, "/api/v1/notification-preferences", "bob", nil))
	if !pref.Likes || !pref.Comments || !pref.Follows {
		t.Errorf("Default preferences = %+v, want all on", pref)
	}

	expectError(t, s.do(t, http.MethodPut, "/api/v1/notification-preferences", "bob", gin.H{"timezone": "Mars/Olympus"}), http.StatusBadRequest, "invalid_timezone")
	expectError(t, s.do(t, http.MethodPut, "/api/v1/notification-preferences", "bob", gin.H{"quietStart": 1500, "quietEnd": 60}), http.StatusBadRequest, "invalid_request")

	w := s.do(t, http.MethodPut, "/api/v1/notification-preferences", "bob", gin.H{
		"likes": false, "comments": true, "follows": true,
		"quietStart": 22 * 60, "quietEnd": 7 * 60, "timezone": "Europe/Oslo",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Set preferences status = %d, body %s", w.Code, w.Body.String())
	}
	pref = decode[models.NotificationPreference](t, s.do(t, http.MethodGet, "/api/v1/notification-preferences", "bob", nil))
	if pref.Likes || pref.Timezone != "Europe/Oslo" || pref.QuietStart == nil || *pref.QuietStart != 22*60 {
		t.Errorf("Stored preferences = %+v", pref)
	}
}

func TestGraphRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(t, http.MethodPost, "/api/v1/users/bob/block", "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("Block status = %d", w.Code)
	}
	expectError(t, s.do(t, http.MethodPost, "/api/v1/users/alice/follow", "bob", nil), http.StatusForbidden, "forbidden")
	expectError(t, s.do(t, http.MethodPost, "/api/v1/users/bob/accept", "alice", nil), http.StatusNotFound, "not_found")

	if w := s.do(t, http.MethodDelete, "/api/v1/users/bob/block", "alice", nil); w.Code != http.StatusNoContent {
		t.Fatalf("Unblock status = %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/v1/users/alice/follow", "bob", nil); w.Code != http.StatusOK {
		t.Errorf("Follow after unblock status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/users/alice/follow", "bob", nil); w.Code != http.StatusNoContent {
		t.Errorf("Unfollow status = %d", w.Code)
	}
}

func TestLinkPreview(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><meta property="og:title" content="Pine Ridge"></head><body></body></html>`)
	}))
	defer origin.Close()

	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/v1/link-preview?url="+origin.URL+"/trail", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Preview status = %d, body %s", w.Code, w.Body.String())
	}
	p := decode[models.LinkPreview](t, w)
	if p.Status != 200 || p.Title != "Pine Ridge" {
		t.Errorf("Preview = %+v", p)
	}

	expectError(t, s.do(t, http.MethodGet, "/api/v1/link-preview?url=ftp://example.com", "bob", nil), http.StatusBadRequest, "invalid_url")
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t, nil)

	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "pines.png")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write(pngBuf.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.authorize(t, req, "alice")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Upload status = %d, body %s", w.Code, w.Body.String())
	}
	m := decode[models.Media](t, w)
	if m.Width != 64 || m.Height != 48 || !strings.HasPrefix(m.SmallURL, "https://cdn.test/media/alice/") {
		t.Errorf("Media = %+v", m)
	}

	expectError(t, s.do(t, http.MethodPost, "/api/v1/media/images", "alice", nil), http.StatusBadRequest, "file_required")
}
