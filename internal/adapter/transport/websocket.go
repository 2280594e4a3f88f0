package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nhooyr.io/websocket"
)

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit = 1 << 20

// WebSocketDialer dials the game server over WebSocket.
type WebSocketDialer struct {
	ReadLimit int64
	Logger    *slog.Logger
}

// NewWebSocketDialer creates a WebSocketDialer with the default read limit.
func NewWebSocketDialer(logger *slog.Logger) *WebSocketDialer {
	return &WebSocketDialer{ReadLimit: DefaultReadLimit, Logger: logger}
}

func (d *WebSocketDialer) Name() string { return "websocket" }

// Dial opens a WebSocket to target. The handshake query rides on the URL.
func (d *WebSocketDialer) Dial(ctx context.Context, target Target) (Conn, error) {
	ws, resp, err := websocket.Dial(ctx, target.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	if err := c.ws.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return toCloseError(err)
	}
	return nil
}

func (c *wsConn) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, toCloseError(err)
	}
	return data, nil
}

func (c *wsConn) Close(code int, reason string) error {
	return c.ws.Close(websocket.StatusCode(code), reason)
}

func toCloseError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: int(ce.Code), Reason: ce.Reason}
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}
