package domain

import (
	"context"
	"time"
)

// User is the authenticated user record delivered by the welcome handshake.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
}

// ConnState is the connection lifecycle state. Exactly one is current at a time.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// SessionView is the read-only view of session state handed to consumers.
type SessionView interface {
	// CurrentUser returns the authenticated user, or false when none.
	CurrentUser() (User, bool)
	// ServerNow returns local wall-clock time shifted by the server clock offset.
	ServerNow() time.Time
	// ClockOffset is serverTime - localTimeAtReceipt of the last welcome.
	ClockOffset() time.Duration
}

// TokenStore persists the resumable session token between runs. Tokens are
// keyed by server URL so switching servers never replays a foreign token.
type TokenStore interface {
	// Load returns the stored token, or "" when there is none.
	Load(ctx context.Context, server string) (string, error)
	Save(ctx context.Context, server, token string) error
	Delete(ctx context.Context, server string) error
}
