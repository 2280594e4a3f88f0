// Package transport provides the duplex substrates frames travel over:
// a WebSocket connection to the game server, or a gRPC bridge to a
// privileged host process (compiled in with the "hostbridge" build tag).
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Close codes shared by every substrate. Values follow RFC 6455 so the
// WebSocket substrate can pass them through unchanged.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
	// CloseSessionInvalid tells the client its stored session token is no
	// longer accepted and must be discarded.
	CloseSessionInvalid = 4001
)

// Target describes where to connect and the handshake query to send.
type Target struct {
	URL   string
	Query url.Values
}

// String renders the target URL with its query attached.
func (t Target) String() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return t.URL
	}
	q := u.Query()
	for k, vs := range t.Query {
		q[k] = append([]string(nil), vs...)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Conn is one open duplex connection carrying binary frames.
type Conn interface {
	// Send writes one frame.
	Send(ctx context.Context, frame []byte) error
	// Recv blocks for the next frame. Once the connection is closed it
	// returns a *CloseError.
	Recv(ctx context.Context) ([]byte, error)
	// Close closes the connection with the given code and reason.
	Close(code int, reason string) error
}

// Dialer opens connections on one substrate.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Conn, error)
	Name() string
}

// HostNotifier is implemented by connections whose substrate can announce
// that the host process is about to terminate.
type HostNotifier interface {
	HostClosing() <-chan struct{}
}

// CloseError reports how a connection ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("connection closed (%d)", e.Code)
}

// CloseCode extracts the close code from err. Errors that are not a
// *CloseError count as an abnormal close.
func CloseCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormal
}

// SessionInvalid reports whether err carries the session-invalid close code.
func SessionInvalid(err error) bool {
	return CloseCode(err) == CloseSessionInvalid
}
