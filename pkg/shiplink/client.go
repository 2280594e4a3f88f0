// Package shiplink is the embeddable client for a shiplink game server.
//
// A Client keeps one connection open for the life of the process: it
// authenticates with a resumable session token or a platform ticket,
// reconnects with exponential backoff, correlates calls with responses and
// fans server pushes out to subscribers.
//
// Example:
//
//	cfg := shiplink.DefaultConfig()
//	cfg.Server.URL = "wss://game.example.com/ws"
//	c, err := shiplink.New(cfg, shiplink.WithLogger(slog.Default()))
//	if err != nil { ... }
//	c.OnConnection(func(up bool) { ... })
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Stop()
//
//	var profile struct{ Name string `json:"name"` }
//	err = c.CallInto(ctx, &profile, "getProfile")
package shiplink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"shiplink/internal/adapter/platform"
	"shiplink/internal/adapter/tokenstore"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
	"shiplink/internal/infra/config"
	"shiplink/internal/infra/logger"
	"shiplink/internal/usecase/connection"
	"shiplink/internal/usecase/pushbus"
	"shiplink/internal/usecase/rpc"
	"shiplink/internal/usecase/session"
)

// Re-exported types.
type (
	Config    = config.Config
	User      = domain.User
	ChatItem  = domain.ChatItem
	ConnState = domain.ConnState
	RPCError  = domain.RPCError
	Call      = rpc.Call
	Result    = rpc.Result
)

// Connection states.
const (
	StateDisconnected      = domain.StateDisconnected
	StateConnecting        = domain.StateConnecting
	StateAwaitingHandshake = domain.StateAwaitingHandshake
	StateReady             = domain.StateReady
)

// Errors callers may test for with errors.Is.
var (
	ErrNotReady       = domain.ErrNotReady
	ErrSendQueueFull  = domain.ErrSendQueueFull
	ErrConnectionLost = domain.ErrConnectionLost
	ErrRPCFailed      = domain.ErrRPCFailed
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config { return config.Defaults() }

// LoadConfig reads a YAML config file with SHIPLINK_* env overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// AsRPCError extracts the server's structured failure from err.
func AsRPCError(err error) (*RPCError, bool) { return domain.AsRPCError(err) }

// Client is a connected game client.
type Client struct {
	cfg     *Config
	logger  *slog.Logger
	clock   clock.Clock
	dialer  transport.Dialer
	tickets platform.TicketSource
	tokens  domain.TokenStore

	closeTokens io.Closer
	session     *session.Store
	router      *pushbus.Router
	calls       *rpc.Client
	ctrl        *connection.Controller

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	runErr  chan error
}

// New builds a client from cfg. Nothing is dialed until Start.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrDiscard(c.logger)
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.dialer == nil {
		c.dialer = transport.Select(cfg.Bridge.Addr, c.logger)
	}
	if c.tickets == nil {
		c.tickets = platform.NewSource(cfg.Platform, c.logger)
	}
	if c.tokens == nil {
		store, closer, err := openTokenStore(cfg.Session)
		if err != nil {
			return nil, err
		}
		c.tokens, c.closeTokens = store, closer
	}

	c.session = session.NewStore(cfg.Server.URL, c.tokens, c.clock, c.logger)
	c.router = pushbus.NewRouter(c.logger)
	c.calls = rpc.NewClient(rpc.Options{
		Logger:      c.logger,
		Clock:       c.clock,
		CallTimeout: cfg.RPC.CallTimeout,
	})
	c.ctrl = connection.New(connection.Config{
		URL:                     cfg.Server.URL,
		Version:                 cfg.Server.Version,
		Build:                   cfg.Server.Build,
		HandshakeTimeout:        cfg.Server.HandshakeTimeout,
		ReconnectBase:           cfg.Reconnect.Base,
		ReconnectCap:            cfg.Reconnect.Cap,
		SendQueue:               cfg.RPC.SendQueue,
		FailPendingOnDisconnect: cfg.RPC.FailPendingOnDisconnect,
	}, connection.Deps{
		Dialer:  c.dialer,
		Tickets: c.tickets,
		Session: c.session,
		Calls:   c.calls,
		Router:  c.router,
		Clock:   c.clock,
		Logger:  c.logger,
	})
	c.calls.Bind(c.ctrl)
	return c, nil
}

func openTokenStore(cfg config.SessionConfig) (domain.TokenStore, io.Closer, error) {
	switch cfg.Store {
	case "sqlite":
		s, err := tokenstore.NewSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return s, s, nil
	default:
		return tokenstore.NewMemory(), nil, nil
	}
}

// Start restores any saved session and begins connecting in the
// background. It returns immediately; watch OnConnection for readiness.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("shiplink: client already started")
	}
	if err := c.session.Restore(ctx); err != nil {
		c.logger.Warn("session restore failed, starting fresh", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.runErr = make(chan error, 1)
	c.started = true
	go func() { c.runErr <- c.ctrl.Run(runCtx) }()
	return nil
}

// Stop closes the connection, ends the reconnect loop and releases the
// session store. The client cannot be restarted.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctrl.Stop()
	var err error
	if c.started {
		c.cancel()
		err = <-c.runErr
		c.started = false
	}
	c.router.Close()
	if c.closeTokens != nil {
		if cerr := c.closeTokens.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.closeTokens = nil
	}
	return err
}

// Invoke sends method(params...) and returns without waiting. It fails
// immediately with ErrNotReady while no connection is open. A nil param is
// sent as absent.
func (c *Client) Invoke(ctx context.Context, method string, params ...any) (*Call, error) {
	return c.calls.Go(ctx, method, params...)
}

// Call sends method(params...) and waits for its result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return c.calls.Call(ctx, method, params...)
}

// CallInto is Call with the result unmarshalled into out.
func (c *Client) CallInto(ctx context.Context, out any, method string, params ...any) error {
	return c.calls.CallInto(ctx, out, method, params...)
}

// OnConnection subscribes to connected (true) / disconnected (false)
// changes. Handlers run on the connection goroutine and must not block.
func (c *Client) OnConnection(fn func(connected bool)) (unsubscribe func()) {
	return c.router.Connection.Subscribe(fn)
}

// OnUser subscribes to the user delivered by each handshake.
func (c *Client) OnUser(fn func(User)) (unsubscribe func()) {
	return c.router.User.Subscribe(fn)
}

// OnChat subscribes to chat pushes.
func (c *Client) OnChat(fn func([]ChatItem)) (unsubscribe func()) {
	return c.router.Chat.Subscribe(fn)
}

// OnHostClosing subscribes to the host bridge's shutdown notice.
func (c *Client) OnHostClosing(fn func()) (unsubscribe func()) {
	return c.router.HostClosing.Subscribe(func(struct{}) { fn() })
}

// CurrentUser returns the authenticated user, if any.
func (c *Client) CurrentUser() (User, bool) { return c.session.CurrentUser() }

// IsConnected reports whether the handshake has completed.
func (c *Client) IsConnected() bool { return c.ctrl.State() == domain.StateReady }

// State returns the connection lifecycle state.
func (c *Client) State() ConnState { return c.ctrl.State() }

// ServerNow estimates the server's current time.
func (c *Client) ServerNow() time.Time { return c.session.ServerNow() }

// OfflineDuration is how long the server says the user was away before the
// latest handshake.
func (c *Client) OfflineDuration() time.Duration { return c.session.OfflineDuration() }

// Session returns a read-only view of the session state.
func (c *Client) Session() domain.SessionView { return c.session }

// Substrate names the transport in use ("websocket" or "hostbridge").
func (c *Client) Substrate() string { return c.dialer.Name() }
