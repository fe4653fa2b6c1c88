package notify

import (
	"context"
	"fmt"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/underpines/pines/pkg/logging"
)

// FCMTransport sends push messages through Firebase Cloud Messaging
type FCMTransport struct {
	client *messaging.Client
}

// NewFCMTransport initializes a Firebase app from a service account file
func NewFCMTransport(ctx context.Context, credentialsPath, projectID string) (*FCMTransport, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}
	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
	}

	return &FCMTransport{client: client}, nil
}

// Send delivers msg to token. Unregistered or malformed tokens map to ErrEndpointGone.
func (t *FCMTransport) Send(ctx context.Context, token string, msg Message) error {
	_, err := t.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	return sendError(err)
}

var (
	isUnregistered    = messaging.IsUnregistered
	isInvalidArgument = messaging.IsInvalidArgument
)

// sendError maps an FCM send error. Only errors about the token itself mark the device
// gone; INVALID_ARGUMENT is also returned for bad payloads, which say nothing of the token.
func sendError(err error) error {
	if err == nil {
		return nil
	}
	if isUnregistered(err) ||
		(isInvalidArgument(err) && strings.Contains(strings.ToLower(err.Error()), "registration token")) {
		return fmt.Errorf("%w: %v", ErrEndpointGone, err)
	}
	return fmt.Errorf("fcm send: %w", err)
}

// LogTransport drops messages after logging them. Used when push is disabled.
type LogTransport struct{}

// Send implements Transport
func (LogTransport) Send(ctx context.Context, token string, msg Message) error {
	logging.FromContext(ctx).Debug("Push disabled, dropping message",
		zap.String("component", "push"),
		zap.String("type", msg.Data["type"]),
		zap.String("body", msg.Body))
	return nil
}
