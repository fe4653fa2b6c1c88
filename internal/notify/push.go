package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/pkg/logging"
)

// ErrEndpointGone is returned by a Transport when a device token is no longer valid
var ErrEndpointGone = errors.New("push endpoint gone")

// Message is a rendered push payload
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Transport sends one message to one device token
type Transport interface {
	Send(ctx context.Context, token string, msg Message) error
}

// DeviceStore persists device tokens and preferences
type DeviceStore interface {
	Subscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
	Register(ctx context.Context, userID, token, platform string) error
	DeleteToken(ctx context.Context, token string) error
	DeleteUserToken(ctx context.Context, userID, token string) error
	Preferences(ctx context.Context, userID string) (*models.NotificationPreference, error)
	SavePreferences(ctx context.Context, pref *models.NotificationPreference) error
}

// Dispatcher filters notifications through preferences and quiet hours and fans them out to devices
type Dispatcher struct {
	store     DeviceStore
	transport Transport
	now       func() time.Time
	logger    *zap.Logger
}

// NewDispatcher creates a push dispatcher
func NewDispatcher(store DeviceStore, transport Transport) *Dispatcher {
	return &Dispatcher{
		store:     store,
		transport: transport,
		now:       time.Now,
		logger:    logging.WithComponent("push"),
	}
}

// Push sends n to every device of its recipient unless preferences suppress it.
// Tokens the transport reports gone are pruned; other send failures are returned joined.
func (d *Dispatcher) Push(ctx context.Context, n models.Notification) error {
	pref, err := d.preferences(ctx, n.RecipientID)
	if err != nil {
		return err
	}
	if !categoryEnabled(pref, n.Type) {
		return nil
	}
	if InQuietHours(pref, d.now()) {
		d.logger.Debug("Push suppressed by quiet hours", zap.String("user_id", n.RecipientID))
		return nil
	}

	subs, err := d.store.Subscriptions(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	msg := renderMessage(n)
	var errs []error
	for _, sub := range subs {
		err := d.transport.Send(ctx, sub.Token, msg)
		switch {
		case err == nil:
		case errors.Is(err, ErrEndpointGone):
			d.logger.Info("Pruning gone push endpoint", zap.String("user_id", sub.UserID), zap.String("platform", sub.Platform))
			if err := d.store.DeleteToken(ctx, sub.Token); err != nil {
				errs = append(errs, fmt.Errorf("prune token: %w", err))
			}
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) preferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	pref, err := d.store.Preferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if pref == nil {
		pref = models.DefaultPreference(userID)
	}
	return pref, nil
}

// RegisterDevice stores a device token for userID
func (d *Dispatcher) RegisterDevice(ctx context.Context, userID, token, platform string) error {
	if token == "" {
		return apperr.Validation("token_required", "device token is required")
	}
	switch platform {
	case "ios", "android", "web":
	default:
		return apperr.Validation("invalid_platform", "platform must be ios, android or web")
	}
	if err := d.store.Register(ctx, userID, token, platform); err != nil {
		return apperr.Dependency("register device", err)
	}
	return nil
}

// UnregisterDevice removes one of userID's device tokens
func (d *Dispatcher) UnregisterDevice(ctx context.Context, userID, token string) error {
	if err := d.store.DeleteUserToken(ctx, userID, token); err != nil {
		return apperr.Dependency("unregister device", err)
	}
	return nil
}

// GetPreferences returns userID's preferences, defaults when never saved
func (d *Dispatcher) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	pref, err := d.preferences(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency("get preferences", err)
	}
	return pref, nil
}

// SetPreferences validates and stores preferences for pref.UserID
func (d *Dispatcher) SetPreferences(ctx context.Context, pref *models.NotificationPreference) error {
	if (pref.QuietStart == nil) != (pref.QuietEnd == nil) {
		return apperr.Validation("invalid_quiet_hours", "quiet hours need both start and end")
	}
	for _, m := range []*int{pref.QuietStart, pref.QuietEnd} {
		if m != nil && (*m < 0 || *m >= 24*60) {
			return apperr.Validation("invalid_quiet_hours", "quiet hours are minutes within a day")
		}
	}
	if pref.Timezone == "" {
		pref.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(pref.Timezone); err != nil {
		return apperr.Validation("invalid_timezone", fmt.Sprintf("unknown timezone %q", pref.Timezone))
	}
	if err := d.store.SavePreferences(ctx, pref); err != nil {
		return apperr.Dependency("save preferences", err)
	}
	return nil
}

func categoryEnabled(pref *models.NotificationPreference, notifyType string) bool {
	switch notifyType {
	case models.NotifyPostLike, models.NotifyCommentLike, models.NotifyPostReaction:
		return pref.Likes
	case models.NotifyPostComment, models.NotifyCommentReply:
		return pref.Comments
	case models.NotifyFollow, models.NotifyFollowRequest, models.NotifyFollowAccept:
		return pref.Follows
	default:
		return true
	}
}

// InQuietHours reports whether now falls in the quiet window of pref. The window
// [start, end) is in the preference's timezone and may wrap midnight.
func InQuietHours(pref *models.NotificationPreference, now time.Time) bool {
	if pref.QuietStart == nil || pref.QuietEnd == nil {
		return false
	}
	start, end := *pref.QuietStart, *pref.QuietEnd
	if start == end {
		return false
	}

	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil || pref.Timezone == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func renderMessage(n models.Notification) Message {
	data := map[string]string{
		"notification_id": n.ID,
		"type":            n.Type,
		"actor_id":        n.ActorID,
	}
	if n.PostID != nil {
		data["post_id"] = *n.PostID
	}
	if n.CommentID != nil {
		data["comment_id"] = *n.CommentID
	}

	var body string
	switch n.Type {
	case models.NotifyPostLike:
		body = "liked your post"
	case models.NotifyPostComment:
		body = "commented on your post"
	case models.NotifyCommentReply:
		body = "replied to your comment"
	case models.NotifyCommentLike:
		body = "liked your comment"
	case models.NotifyPostReaction:
		body = "reacted to your post"
		if emoji, ok := n.Metadata["emoji"].(string); ok {
			body = "reacted " + emoji + " to your post"
		}
	case models.NotifyFollow:
		body = "started following you"
	case models.NotifyFollowRequest:
		body = "requested to follow you"
	case models.NotifyFollowAccept:
		body = "accepted your follow request"
	default:
		body = "sent you a notification"
	}

	actor := n.ActorID
	if name, ok := n.Metadata["actor_name"].(string); ok && name != "" {
		actor = name
	}

	return Message{Title: "Under Pines", Body: actor + " " + body, Data: data}
}
