// Package platform obtains fresh authentication tickets for connections that
// have no resumable session.
package platform

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"shiplink/internal/infra/config"
	"shiplink/internal/infra/logger"
)

// GuestPlatform is reported when no platform integration is available.
const GuestPlatform = "web"

// NoTicket is the ticket value sent in guest mode.
const NoTicket = "none"

// Ticket is one fresh-auth credential.
type Ticket struct {
	Value    string
	Platform string
	AppID    string // optional
}

// Guest reports whether t is the no-ticket fallback.
func (t Ticket) Guest() bool {
	return t.Value == NoTicket
}

// TicketSource produces a ticket for each fresh connection attempt.
type TicketSource interface {
	Ticket(ctx context.Context) (Ticket, error)
}

// Source reads tickets from config or from the environment a platform
// launcher prepared. It falls back to guest mode when neither has one.
type Source struct {
	cfg    config.PlatformConfig
	getenv func(string) string
	logger *slog.Logger
}

// NewSource creates a ticket source for cfg.
func NewSource(cfg config.PlatformConfig, log *slog.Logger) *Source {
	return &Source{cfg: cfg, getenv: os.Getenv, logger: logger.OrDiscard(log)}
}

// Ticket returns a ticket. The environment is read on every call because
// launchers may rotate the ticket while the client runs.
func (s *Source) Ticket(_ context.Context) (Ticket, error) {
	name := strings.ToLower(strings.TrimSpace(s.cfg.Name))
	if name == "" || name == GuestPlatform {
		return Ticket{Value: NoTicket, Platform: GuestPlatform}, nil
	}

	value := s.cfg.Ticket
	if value == "" && s.cfg.TicketEnv != "" {
		value = strings.TrimSpace(s.getenv(s.cfg.TicketEnv))
	}
	if value == "" {
		s.logger.Warn("platform ticket unavailable, connecting as guest", "platform", name)
		return Ticket{Value: NoTicket, Platform: GuestPlatform}, nil
	}
	return Ticket{Value: value, Platform: name, AppID: s.cfg.AppID}, nil
}

// Static always returns the same ticket. Useful for tests and embedding.
type Static Ticket

func (s Static) Ticket(context.Context) (Ticket, error) {
	return Ticket(s), nil
}
