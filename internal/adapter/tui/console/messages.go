// Package console is the interactive terminal for a shiplink client: a
// status bar with the connection state, a scrolling log of chat pushes and
// call results, and an input line.
package console

import (
	"encoding/json"

	"shiplink/internal/domain"
)

// ConnectionMsg reports a connected/disconnected change.
type ConnectionMsg struct{ Up bool }

// UserMsg carries the user delivered by a handshake.
type UserMsg struct{ User domain.User }

// ChatMsg carries one chat push.
type ChatMsg struct{ Items []domain.ChatItem }

// HostClosingMsg reports that the host is shutting down.
type HostClosingMsg struct{}

// CallResultMsg is the outcome of a call started from the input line.
type CallResultMsg struct {
	Method string
	Result json.RawMessage
	Err    error
}

// QuitMsg asks the program to exit.
type QuitMsg struct{}
