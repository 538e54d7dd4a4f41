// Package events publishes session lifecycle events.
package events

import (
	"context"
	"time"
)

type Type string

const (
	SessionCreated    Type = "session.created"
	SessionTerminated Type = "session.terminated"
)

// Termination reasons.
const (
	ReasonLogout        = "logout"
	ReasonRefreshFailed = "refresh_failed"
	ReasonOrphaned      = "orphaned"
)

type Event struct {
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id"`
	AccountID  string    `json:"account_id,omitempty"`
	AccountURI string    `json:"account_uri,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
