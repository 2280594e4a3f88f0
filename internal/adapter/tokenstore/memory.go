// Package tokenstore implements domain.TokenStore backends.
package tokenstore

import (
	"context"
	"sync"
)

// Memory keeps tokens for the life of the process only.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) Load(_ context.Context, server string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[server], nil
}

func (m *Memory) Save(_ context.Context, server, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[server] = token
	return nil
}

func (m *Memory) Delete(_ context.Context, server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, server)
	return nil
}
