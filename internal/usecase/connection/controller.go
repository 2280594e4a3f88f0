// Package connection owns the client's single server connection: dialing
// with the right credentials, the welcome handshake, inbound frame dispatch
// and the reconnect loop.
package connection

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"shiplink/internal/adapter/codec"
	"shiplink/internal/adapter/platform"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
	"shiplink/internal/infra/logger"
	"shiplink/internal/usecase/pushbus"
	"shiplink/internal/usecase/session"
)

// Calls is the pending-call side the controller feeds responses into.
type Calls interface {
	Complete(resp *codec.Response)
	FailAll(err error) int
}

// Config holds the controller's tunables.
type Config struct {
	URL     string
	Version string
	Build   string
	// HandshakeTimeout drops a connection that gets no welcome in time.
	// 0 disables it.
	HandshakeTimeout time.Duration
	ReconnectBase    time.Duration
	ReconnectCap     time.Duration
	SendQueue        int
	// FailPendingOnDisconnect rejects in-flight calls when the connection
	// drops instead of leaving them to a future response.
	FailPendingOnDisconnect bool
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Dialer  transport.Dialer
	Tickets platform.TicketSource
	Session *session.Store
	Calls   Calls
	Router  *pushbus.Router
	Clock   clock.Clock
	Logger  *slog.Logger
}

// errStopped ends a connection because the controller is shutting down.
var errStopped = errors.New("controller stopped")

// Controller runs the connection state machine on a single goroutine.
// It implements rpc.Link for the call client.
type Controller struct {
	cfg     Config
	dialer  transport.Dialer
	tickets platform.TicketSource
	session *session.Store
	calls   Calls
	router  *pushbus.Router
	clock   clock.Clock
	logger  *slog.Logger

	backoff Backoff
	state   atomic.Int32

	mu  sync.Mutex
	out chan []byte // outbound queue of the open connection, nil otherwise

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	malformed rate.Sometimes
	entropy   io.Reader
}

// New creates a controller in the Disconnected state.
func New(cfg Config, deps Deps) *Controller {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 64
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	c := &Controller{
		cfg:       cfg,
		dialer:    deps.Dialer,
		tickets:   deps.Tickets,
		session:   deps.Session,
		calls:     deps.Calls,
		router:    deps.Router,
		clock:     clk,
		logger:    logger.OrDiscard(deps.Logger),
		backoff:   Backoff{Base: cfg.ReconnectBase, Cap: cfg.ReconnectCap},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		malformed: rate.Sometimes{First: 3, Interval: 30 * time.Second},
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	c.state.Store(int32(domain.StateDisconnected))
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() domain.ConnState {
	return domain.ConnState(c.state.Load())
}

func (c *Controller) setState(s domain.ConnState) {
	if old := domain.ConnState(c.state.Swap(int32(s))); old != s {
		c.logger.Debug("connection state", "from", old.String(), "to", s.String())
	}
}

// Open reports whether frames can be sent: the substrate is open, whether
// or not the welcome has arrived.
func (c *Controller) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out != nil
}

// Enqueue hands frame to the open connection's writer without blocking.
func (c *Controller) Enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return domain.ErrNotReady
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return domain.ErrSendQueueFull
	}
}

// Run connects and keeps reconnecting until ctx is cancelled or Stop is
// called. It may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if c.running.Swap(true) {
		return fmt.Errorf("connection controller already running")
	}
	defer close(c.done)

	for {
		err := c.connect(ctx)
		c.disconnected(ctx, err)

		if c.stopping(ctx) {
			return nil
		}

		delay := c.backoff.Next()
		c.logger.Info("reconnecting",
			"in", delay,
			"attempt", c.backoff.Attempt(),
			"close_code", transport.CloseCode(err),
			"error", err,
		)

		timer := c.clock.NewTimer(delay)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-c.stop:
			timer.Stop()
			return nil
		}
	}
}

// Stop closes the connection with a normal closure and ends Run. It waits
// for Run to return when Run was started.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.running.Load() {
		<-c.done
	}
}

func (c *Controller) stopping(ctx context.Context) bool {
	select {
	case <-c.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// disconnected performs the entry actions of the Disconnected state.
func (c *Controller) disconnected(ctx context.Context, cause error) {
	c.setState(domain.StateDisconnected)
	c.session.ClearUser()

	var lost error = domain.NewDomainError("connection", domain.ErrConnectionLost, errString(cause))
	if transport.SessionInvalid(cause) {
		c.logger.Warn("session rejected by server, discarding token")
		c.session.DiscardToken(context.WithoutCancel(ctx))
		lost = fmt.Errorf("%w: %w", lost, domain.ErrSessionInvalid)
	}
	if c.cfg.FailPendingOnDisconnect {
		c.calls.FailAll(lost)
	}
	c.router.Connection.Publish(false)
}

func (c *Controller) backoffAttempt() int {
	return c.backoff.Attempt()
}

func (c *Controller) newConnID() string {
	return ulid.MustNew(ulid.Timestamp(c.clock.Now()), c.entropy).String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
