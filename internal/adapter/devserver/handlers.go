package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"shiplink/internal/domain"
)

// Error codes used by the built-in handlers.
const (
	CodeBadRequest     = 400
	CodeInternal       = 500
	CodeMethodNotFound = domain.RPCCodeMethodNotFound
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_ ]{4,20}$`)

// Profile is the result of getProfile and rename.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
}

func profileOf(u domain.User) Profile {
	return Profile{ID: u.ID, Name: u.Name, Platform: u.Platform}
}

func badRequest(msg string) error {
	return &domain.RPCError{Code: CodeBadRequest, Message: msg}
}

// stringParam decodes params[i] as a string. Absent params are "".
func stringParam(params []json.RawMessage, i int) (string, error) {
	if i >= len(params) || params[i] == nil {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return "", badRequest(fmt.Sprintf("param %d must be a string", i))
	}
	return s, nil
}

func registerDefaults(s *Server) {
	var chatSeq atomic.Uint64

	s.RegisterHandler("getProfile", func(_ context.Context, c *Client, _ []json.RawMessage) (any, error) {
		return profileOf(c.User()), nil
	})

	s.RegisterHandler("rename", func(_ context.Context, c *Client, params []json.RawMessage) (any, error) {
		name, err := stringParam(params, 0)
		if err != nil {
			return nil, err
		}
		if !validName.MatchString(name) {
			return nil, badRequest("invalid name")
		}
		u := c.User()
		u.Name = name
		c.setUser(u)
		s.sessions.Update(c.Token, u)
		return profileOf(u), nil
	})

	// echo returns its params, with absent ones as null.
	s.RegisterHandler("echo", func(_ context.Context, _ *Client, params []json.RawMessage) (any, error) {
		out := make([]json.RawMessage, len(params))
		for i, p := range params {
			if p == nil {
				p = json.RawMessage("null")
			}
			out[i] = p
		}
		return out, nil
	})

	s.RegisterHandler("time", func(context.Context, *Client, []json.RawMessage) (any, error) {
		return s.now().UnixMilli(), nil
	})

	// chat.send broadcasts text to every client, sender included.
	s.RegisterHandler("chat.send", func(_ context.Context, c *Client, params []json.RawMessage) (any, error) {
		text, err := stringParam(params, 0)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, badRequest("empty message")
		}
		channel, err := stringParam(params, 1)
		if err != nil {
			return nil, err
		}
		item := domain.ChatItem{
			ID:      fmt.Sprintf("m%d", chatSeq.Add(1)),
			Channel: channel,
			From:    c.User().Name,
			Text:    text,
			SentAt:  s.now().UnixMilli(),
		}
		s.Broadcast(item)
		return nil, nil
	})

	// logout invalidates the caller's session; the connection is closed
	// with the session-invalid code.
	s.RegisterHandler("logout", func(_ context.Context, c *Client, _ []json.RawMessage) (any, error) {
		go s.InvalidateSession(c.Token)
		return true, nil
	})
}
