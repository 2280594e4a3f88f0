package console

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"shiplink/internal/domain"
)

// Backend is the client surface the console drives.
type Backend interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	OnConnection(fn func(connected bool)) (unsubscribe func())
	OnUser(fn func(domain.User)) (unsubscribe func())
	OnChat(fn func([]domain.ChatItem)) (unsubscribe func())
	OnHostClosing(fn func()) (unsubscribe func())
}

// Attach forwards the backend's pushes into send (usually
// tea.Program.Send). The returned func detaches every subscription.
func Attach(b Backend, send func(tea.Msg)) (detach func()) {
	unsubs := []func(){
		b.OnConnection(func(up bool) { send(ConnectionMsg{Up: up}) }),
		b.OnUser(func(u domain.User) { send(UserMsg{User: u}) }),
		b.OnChat(func(items []domain.ChatItem) { send(ChatMsg{Items: items}) }),
		b.OnHostClosing(func() { send(HostClosingMsg{}) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// command is a parsed input line.
type command struct {
	kind   string // "chat", "call", "help", "quit", "clear"
	method string
	params []any
}

// parseLine interprets one input line. Plain text is a chat message;
// "/call METHOD [ARGS...]" calls METHOD with each ARG decoded as JSON,
// falling back to a plain string when it is not valid JSON.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, fmt.Errorf("empty input")
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: "chat", method: "chat.send", params: []any{line}}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return command{kind: "quit"}, nil
	case "/help":
		return command{kind: "help"}, nil
	case "/clear":
		return command{kind: "clear"}, nil
	case "/call":
		if len(fields) < 2 {
			return command{}, fmt.Errorf("usage: /call METHOD [ARGS...]")
		}
		return command{kind: "call", method: fields[1], params: ParseArgs(fields[2:])}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
}

// ParseArgs turns command-line words into call params. Valid JSON is passed
// through raw; anything else is sent as a string; "-" is an absent param.
func ParseArgs(args []string) []any {
	params := make([]any, len(args))
	for i, a := range args {
		switch {
		case a == "-":
			params[i] = nil
		case json.Valid([]byte(a)):
			params[i] = json.RawMessage(a)
		default:
			params[i] = a
		}
	}
	return params
}

// callCmd runs a call in the background and reports a CallResultMsg.
func callCmd(b Backend, timeout time.Duration, method string, params []any) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := b.Call(ctx, method, params...)
		return CallResultMsg{Method: method, Result: res, Err: err}
	}
}
