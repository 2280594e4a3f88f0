package devserver

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"shiplink/internal/domain"
)

// TicketAuth maps platform tickets to user names. Comparison is constant
// time, as with any credential.
type TicketAuth struct {
	entries     []ticketEntry
	allowGuests bool
}

type ticketEntry struct {
	ticket []byte
	name   string
}

// NewTicketAuth builds an authenticator from ticket -> user name pairs.
func NewTicketAuth(tickets map[string]string, allowGuests bool) *TicketAuth {
	a := &TicketAuth{allowGuests: allowGuests}
	for t, name := range tickets {
		a.entries = append(a.entries, ticketEntry{ticket: []byte(t), name: name})
	}
	return a
}

// Authenticate resolves a ticket to a user. "none" admits a guest when
// guests are allowed.
func (a *TicketAuth) Authenticate(ticket, platform string) (domain.User, error) {
	if ticket == "none" {
		if !a.allowGuests {
			return domain.User{}, domain.ErrAuthInvalid
		}
		return domain.User{Name: "Guest", Platform: platform}, nil
	}
	b := []byte(ticket)
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(b, e.ticket) == 1 {
			return domain.User{Name: e.name, Platform: platform}, nil
		}
	}
	return domain.User{}, domain.ErrAuthInvalid
}

// sessionEntry is one resumable session.
type sessionEntry struct {
	user     domain.User
	lastSeen time.Time // zero while connected
}

// Sessions issues and resolves resumable session tokens.
type Sessions struct {
	mu      sync.Mutex
	byToken map[string]*sessionEntry
	entropy io.Reader
	now     func() time.Time
}

// NewSessions creates an empty registry.
func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		byToken: make(map[string]*sessionEntry),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

// Open creates a session for user and returns its token. Users without an
// ID get one.
func (s *Sessions) Open(user domain.User) (string, domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = "u-" + ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
	}
	token := ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
	s.byToken[token] = &sessionEntry{user: user}
	return token, user
}

// Resume looks token up and marks it connected. It returns how long the
// session was offline.
func (s *Sessions) Resume(token string) (domain.User, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byToken[token]
	if !ok {
		return domain.User{}, 0, false
	}
	var offline time.Duration
	if !e.lastSeen.IsZero() {
		offline = s.now().Sub(e.lastSeen)
	}
	e.lastSeen = time.Time{}
	return e.user, offline, true
}

// Disconnected records when the session's connection went away.
func (s *Sessions) Disconnected(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byToken[token]; ok {
		e.lastSeen = s.now()
	}
}

// Update replaces the user stored for token.
func (s *Sessions) Update(token string, user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byToken[token]; ok {
		e.user = user
	}
}

// Invalidate forgets token. Reports whether it existed.
func (s *Sessions) Invalidate(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byToken[token]
	delete(s.byToken, token)
	return ok
}
