// Package push delivers new-evidence notifications: batched socket digests
// for connected operators and APNs pushes for everyone else's devices.
package push

import (
	"context"
	"errors"
	"fmt"
)

// Notification is one device push.
type Notification struct {
	Token    string
	Title    string
	Subtitle string
}

// Provider sends notifications to a push service. Refresh rebuilds the
// underlying client; APNs tokens go stale after about an hour.
type Provider interface {
	Push(ctx context.Context, n Notification) error
	Refresh() error
}

// TerminalError marks a provider rejection that will never succeed for this
// token. The subscriber behind it gets deleted.
type TerminalError struct {
	Code   int
	Reason string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("push: terminal response %d: %s", e.Code, e.Reason)
}

// IsTerminal reports whether the error carries a terminal provider code.
func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}
