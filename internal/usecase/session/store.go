// Package session holds the client's authenticated session: the current
// user, the resumable token and the server clock offset.
//
// Only the connection controller writes to a Store; everything else reads
// through domain.SessionView.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"shiplink/internal/domain"
	"shiplink/internal/infra/logger"
)

// Store is the session state for one server.
type Store struct {
	server string
	tokens domain.TokenStore
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	user    *domain.User
	token   string
	offset  time.Duration
	offline time.Duration
}

var _ domain.SessionView = (*Store)(nil)

// NewStore creates a store whose token is persisted in tokens under the
// server key.
func NewStore(server string, tokens domain.TokenStore, clk clock.Clock, log *slog.Logger) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{
		server: server,
		tokens: tokens,
		clock:  clk,
		logger: logger.OrDiscard(log),
	}
}

// Restore loads the persisted token, if any. A failing backend leaves the
// store without a token.
func (s *Store) Restore(ctx context.Context) error {
	tok, err := s.tokens.Load(ctx, s.server)
	if err != nil {
		return domain.WrapOp("session.Restore", err)
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	if tok != "" {
		s.logger.Debug("session token restored", "server", s.server)
	}
	return nil
}

// Token returns the resumable session token, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Welcome records a successful handshake: the user, the fresh token and the
// server clock offset (serverTime - receivedAt). A token that cannot be
// persisted is still used for this process.
func (s *Store) Welcome(ctx context.Context, user domain.User, token string, serverTime time.Time, offline time.Duration, receivedAt time.Time) {
	s.mu.Lock()
	u := user
	s.user = &u
	s.token = token
	s.offset = serverTime.Sub(receivedAt)
	s.offline = offline
	offset := s.offset
	s.mu.Unlock()

	if err := s.tokens.Save(ctx, s.server, token); err != nil {
		s.logger.Warn("persist session token failed", "error", err)
	}
	s.logger.Debug("session established", "user", user.ID, "clock_offset", offset, "offline", offline)
}

// ClearUser forgets the user. The token and offset survive so the next
// connection can resume.
func (s *Store) ClearUser() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// DiscardToken drops the token in memory and in the backing store.
func (s *Store) DiscardToken(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.tokens.Delete(ctx, s.server); err != nil {
		s.logger.Warn("delete session token failed", "error", err)
	}
}

func (s *Store) CurrentUser() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *Store) ServerNow() time.Time {
	s.mu.RLock()
	offset := s.offset
	s.mu.RUnlock()
	return s.clock.Now().Add(offset)
}

func (s *Store) ClockOffset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// OfflineDuration is how long the user was away, as reported by the last
// welcome.
func (s *Store) OfflineDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offline
}
