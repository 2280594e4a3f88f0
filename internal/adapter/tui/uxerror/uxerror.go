// Package uxerror translates client errors into short console messages with
// recovery hints.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"shiplink/internal/adapter/tui/theme"
	"shiplink/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for the console log.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(fe.Message)
	}
	for _, h := range fe.Hints {
		sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrSendQueueFull) },
		produce: constantError("Busy", "too many calls queued on this connection.",
			[]string{"Wait for pending calls to finish", "Raise rpc.send_queue in config"}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrNotReady) },
		produce: constantError("Not Connected", "the client is not connected to the server yet.",
			[]string{"Wait for the status bar to show connected"}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrConnectionLost) },
		produce: constantError("Connection Lost", "the connection dropped before the server answered.",
			[]string{"The call may or may not have run; retry once reconnected"}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrRPCFailed) },
		produce: func(err error) FriendlyError {
			fe := FriendlyError{Title: "Server Error", Message: err.Error(), Raw: err.Error()}
			if re, ok := domain.AsRPCError(err); ok {
				fe.Message = fmt.Sprintf("%s (code %d)", re.Message, re.Code)
				if errors.Is(re, domain.ErrMethodNotFound) {
					fe.Hints = []string{"Check the method name"}
				}
			}
			return fe
		},
	},
	{
		match:   containsAny("deadline exceeded", "timeout"),
		produce: constantError("Timed Out", "the server did not answer in time.", []string{"Check your network connection", "Raise rpc.call_timeout in config"}),
	},
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "could not reach the server.", []string{"Verify server.url in config"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Error",
		Message: err.Error(),
		Hints:   []string{"Run with logger.level=debug for more details"},
		Raw:     err.Error(),
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: message, Hints: hints, Raw: err.Error()}
	}
}
