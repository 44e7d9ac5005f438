package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const (
	apnsTopic = "com.gidence.scm"
	apnsSound = "ping.flac"
)

// APNS is the Apple push provider, authenticated with a .p8 signing key.
type APNS struct {
	keyPath string
	keyID   string
	teamID  string

	mu     sync.Mutex
	client *apns2.Client
}

// NewAPNS builds a token-authenticated client against the sandbox endpoint.
func NewAPNS(keyPath, keyID, teamID string) (*APNS, error) {
	a := &APNS{keyPath: keyPath, keyID: keyID, teamID: teamID}
	if err := a.Refresh(); err != nil {
		return nil, err
	}
	return a, nil
}

// Refresh rebuilds the client from the key file.
func (a *APNS) Refresh() error {
	authKey, err := token.AuthKeyFromFile(a.keyPath)
	if err != nil {
		return fmt.Errorf("push: load apns key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   a.keyID,
		TeamID:  a.teamID,
	}).Development()

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return nil
}

// Push sends one notification. A 403 or 410 response comes back as a
// TerminalError.
func (a *APNS) Push(ctx context.Context, n Notification) error {
	body := payload.NewPayload().
		AlertTitle(n.Title).
		AlertSubtitle(n.Subtitle).
		Sound(apnsSound)

	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	res, err := client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: n.Token,
		Topic:       apnsTopic,
		Payload:     body,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	if res.Sent() {
		return nil
	}
	if res.StatusCode == 403 || res.StatusCode == 410 {
		return &TerminalError{Code: res.StatusCode, Reason: res.Reason}
	}
	return fmt.Errorf("push: response %d: %s", res.StatusCode, res.Reason)
}
