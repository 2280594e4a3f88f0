package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"shiplink/internal/adapter/codec"
	"shiplink/internal/adapter/platform"
	"shiplink/internal/adapter/tokenstore"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
	"shiplink/internal/usecase/pushbus"
	"shiplink/internal/usecase/rpc"
	"shiplink/internal/usecase/session"
)

var epoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

// fakeConn is the client end of an in-memory connection. The test plays the
// server through push/expectRequest/serverClose.
type fakeConn struct {
	in     chan []byte
	sent   chan []byte
	closed chan struct{}

	once     sync.Once
	mu       sync.Mutex
	closeErr *transport.CloseError
	closedBy string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		sent:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return c.err()
	default:
	}
	select {
	case c.sent <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, c.err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(code int, reason string) error {
	c.closeWith(code, reason, "client")
	return nil
}

func (c *fakeConn) closeWith(code int, reason, by string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeErr = &transport.CloseError{Code: code, Reason: reason}
		c.closedBy = by
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *fakeConn) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *fakeConn) closedByClient(t *testing.T) *transport.CloseError {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(waitFor):
		t.Fatal("connection not closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedBy != "client" {
		t.Fatalf("connection closed by %s, want client", c.closedBy)
	}
	return c.closeErr
}

func (c *fakeConn) serverClose(code int, reason string) {
	c.closeWith(code, reason, "server")
}

func (c *fakeConn) push(t *testing.T, env codec.Envelope) {
	t.Helper()
	frame, err := codec.Encode(env)
	require.NoError(t, err)
	c.in <- frame
}

func (c *fakeConn) welcome(t *testing.T, user domain.User, token string, serverTime time.Time) {
	t.Helper()
	c.push(t, &codec.Welcome{User: user, SessionToken: token, ServerTime: serverTime.UnixMilli()})
}

func (c *fakeConn) expectRequest(t *testing.T) *codec.Request {
	t.Helper()
	select {
	case frame := <-c.sent:
		env, err := codec.Decode(frame)
		require.NoError(t, err)
		req, ok := env.(*codec.Request)
		require.True(t, ok, "got %T", env)
		return req
	case <-time.After(waitFor):
		t.Fatal("no request sent")
		return nil
	}
}

// hostConn adds the host-closing notice of the bridge substrate.
type hostConn struct {
	*fakeConn
	closing chan struct{}
}

func (c *hostConn) HostClosing() <-chan struct{} { return c.closing }

type dialResult struct {
	conn transport.Conn
	err  error
}

// fakeDialer hands out scripted results, one per Dial.
type fakeDialer struct {
	targets chan transport.Target
	results chan dialResult
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		targets: make(chan transport.Target, 16),
		results: make(chan dialResult, 16),
	}
}

func (d *fakeDialer) Name() string { return "fake" }

func (d *fakeDialer) Dial(ctx context.Context, target transport.Target) (transport.Conn, error) {
	d.targets <- target
	select {
	case r := <-d.results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// accept scripts a successful dial and returns the connection.
func (d *fakeDialer) accept() *fakeConn {
	c := newFakeConn()
	d.results <- dialResult{conn: c}
	return c
}

func (d *fakeDialer) refuse() {
	d.results <- dialResult{err: errors.New("connection refused")}
}

func (d *fakeDialer) nextTarget(t *testing.T) transport.Target {
	t.Helper()
	select {
	case tg := <-d.targets:
		return tg
	case <-time.After(waitFor):
		t.Fatal("no dial attempt")
		return transport.Target{}
	}
}

func (d *fakeDialer) noDial(t *testing.T) {
	t.Helper()
	select {
	case tg := <-d.targets:
		t.Fatalf("unexpected dial to %s", tg)
	case <-time.After(50 * time.Millisecond):
	}
}

// recorder collects router events from the controller goroutine.
type recorder struct {
	mu     sync.Mutex
	states []bool
	users  []domain.User
	chats  [][]domain.ChatItem
	host   int
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		states: append([]bool(nil), r.states...),
		users:  append([]domain.User(nil), r.users...),
		chats:  append([][]domain.ChatItem(nil), r.chats...),
		host:   r.host,
	}
}

type harness struct {
	ctrl    *Controller
	dialer  *fakeDialer
	clock   *testclock.Clock
	client  *rpc.Client
	session *session.Store
	tokens  *tokenstore.Memory
	events  *recorder
	done    chan error
}

func defaultTestConfig() Config {
	return Config{
		URL:                     "ws://game.test/ws",
		Version:                 "1.2.0",
		Build:                   "88",
		ReconnectBase:           time.Second,
		ReconnectCap:            10 * time.Second,
		SendQueue:               8,
		FailPendingOnDisconnect: true,
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWithTickets(t, cfg, platform.Static{Value: platform.NoTicket, Platform: platform.GuestPlatform})
}

func newHarnessWithTickets(t *testing.T, cfg Config, tickets platform.TicketSource) *harness {
	t.Helper()
	clk := testclock.NewClock(epoch)
	tokens := tokenstore.NewMemory()
	store := session.NewStore(cfg.URL, tokens, clk, nil)
	router := pushbus.NewRouter(nil)
	client := rpc.NewClient(rpc.Options{Clock: clk})
	dialer := newFakeDialer()

	ctrl := New(cfg, Deps{
		Dialer:  dialer,
		Tickets: tickets,
		Session: store,
		Calls:   client,
		Router:  router,
		Clock:   clk,
	})
	client.Bind(ctrl)

	ev := &recorder{}
	router.Connection.Subscribe(func(up bool) { ev.mu.Lock(); ev.states = append(ev.states, up); ev.mu.Unlock() })
	router.User.Subscribe(func(u domain.User) { ev.mu.Lock(); ev.users = append(ev.users, u); ev.mu.Unlock() })
	router.Chat.Subscribe(func(items []domain.ChatItem) { ev.mu.Lock(); ev.chats = append(ev.chats, items); ev.mu.Unlock() })
	router.HostClosing.Subscribe(func(struct{}) { ev.mu.Lock(); ev.host++; ev.mu.Unlock() })

	h := &harness{
		ctrl:    ctrl,
		dialer:  dialer,
		clock:   clk,
		client:  client,
		session: store,
		tokens:  tokens,
		events:  ev,
		done:    make(chan error, 1),
	}
	go func() { h.done <- ctrl.Run(context.Background()) }()
	t.Cleanup(ctrl.Stop)
	return h
}

func (h *harness) waitState(t *testing.T, want domain.ConnState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want },
		waitFor, 5*time.Millisecond, "state %s, want %s", h.ctrl.State(), want)
}

// ready dials, accepts and completes the handshake.
func (h *harness) ready(t *testing.T, token string) *fakeConn {
	t.Helper()
	h.dialer.nextTarget(t)
	conn := h.dialer.accept()
	h.waitState(t, domain.StateAwaitingHandshake)
	conn.welcome(t, domain.User{ID: "u1", Name: "Ship"}, token, h.clock.Now())
	h.waitState(t, domain.StateReady)
	return conn
}

// advanceBackoff fires the pending reconnect timer after d.
func (h *harness) advanceBackoff(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, h.clock.WaitAdvance(d, waitFor, 1))
}
