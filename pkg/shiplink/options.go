package shiplink

import (
	"log/slog"

	"github.com/juju/clock"

	"shiplink/internal/adapter/platform"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
)

// Option customizes a Client beyond its Config.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithDialer forces a substrate instead of selecting one from the config.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithTicketSource replaces the config-driven platform ticket source.
func WithTicketSource(ts platform.TicketSource) Option {
	return func(c *Client) { c.tickets = ts }
}

// WithTokenStore replaces the configured session token store. The caller
// keeps ownership of it.
func WithTokenStore(ts domain.TokenStore) Option {
	return func(c *Client) { c.tokens = ts }
}
