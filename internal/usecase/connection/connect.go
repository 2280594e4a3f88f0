package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"shiplink/internal/adapter/codec"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
	"shiplink/internal/infra/tracer"
)

// Auth modes reported in logs and spans.
const (
	authSession = "session"
	authTicket  = "ticket"
)

type inbound struct {
	data []byte
	at   time.Time
}

// target builds the dial target. A stored session token always wins over
// a fresh ticket.
func (c *Controller) target(ctx context.Context) (transport.Target, string, error) {
	q := url.Values{}
	q.Set("version", c.cfg.Version)
	q.Set("build", c.cfg.Build)

	if tok := c.session.Token(); tok != "" {
		q.Set("session", tok)
		return transport.Target{URL: c.cfg.URL, Query: q}, authSession, nil
	}

	t, err := c.tickets.Ticket(ctx)
	if err != nil {
		return transport.Target{}, "", fmt.Errorf("obtain platform ticket: %w", err)
	}
	q.Set("ticket", t.Value)
	q.Set("platform", t.Platform)
	if t.AppID != "" {
		q.Set("appId", t.AppID)
	}
	return transport.Target{URL: c.cfg.URL, Query: q}, authTicket, nil
}

// connect runs one connection from dial to close and returns why it ended.
func (c *Controller) connect(ctx context.Context) error {
	if c.stopping(ctx) {
		return errStopped
	}
	c.setState(domain.StateConnecting)

	connID := c.newConnID()
	log := c.logger.With("conn_id", connID)

	target, mode, err := c.target(ctx)
	if err != nil {
		return err
	}

	dialCtx, span := tracer.StartClientSpan(ctx, "connection.dial",
		tracer.StringAttr("conn.id", connID),
		tracer.StringAttr("conn.substrate", c.dialer.Name()),
		tracer.StringAttr("conn.auth", mode),
	)
	dialCtx, cancelDial := mergeDone(dialCtx, c.stop)
	if c.cfg.HandshakeTimeout > 0 {
		var cancelTimeout context.CancelFunc
		dialCtx, cancelTimeout = context.WithTimeout(dialCtx, c.cfg.HandshakeTimeout)
		defer cancelTimeout()
	}
	conn, err := c.dialer.Dial(dialCtx, target)
	cancelDial()
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		log.Warn("dial failed", "url", c.cfg.URL, "auth", mode, "error", err)
		return err
	}
	tracer.SetOK(span)
	span.End()
	log.Info("connection open", "url", c.cfg.URL, "substrate", c.dialer.Name(), "auth", mode)

	return c.serve(ctx, conn, log)
}

// serve pumps one open connection until it closes.
func (c *Controller) serve(ctx context.Context, conn transport.Conn, log *slog.Logger) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, c.cfg.SendQueue)
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()
	c.setState(domain.StateAwaitingHandshake)
	defer func() {
		c.mu.Lock()
		c.out = nil
		c.mu.Unlock()
	}()

	frames := make(chan inbound)
	readErr := make(chan error, 1)
	writeErr := make(chan error, 1)
	go c.readLoop(connCtx, conn, frames, readErr)
	go writeLoop(connCtx, conn, out, writeErr)

	var handshake <-chan time.Time
	if c.cfg.HandshakeTimeout > 0 {
		timer := c.clock.NewTimer(c.cfg.HandshakeTimeout)
		defer timer.Stop()
		handshake = timer.Chan()
	}

	var hostClosing <-chan struct{}
	if hn, ok := conn.(transport.HostNotifier); ok {
		hostClosing = hn.HostClosing()
	}

	for {
		select {
		case f := <-frames:
			if c.dispatch(ctx, f, log) {
				handshake = nil
			}
		case err := <-readErr:
			log.Info("connection closed", "code", transport.CloseCode(err), "error", err)
			return err
		case err := <-writeErr:
			log.Warn("send failed", "error", err)
			_ = conn.Close(transport.CloseAbnormal, "send failed")
			return err
		case <-handshake:
			log.Warn("no welcome received", "timeout", c.cfg.HandshakeTimeout)
			_ = conn.Close(transport.CloseNormal, "handshake timeout")
			return domain.NewDomainError("connection.serve", domain.ErrHandshakeTimeout, c.cfg.HandshakeTimeout.String())
		case <-hostClosing:
			hostClosing = nil
			log.Info("host is closing")
			c.router.HostClosing.Publish(struct{}{})
		case <-c.stop:
			_ = conn.Close(transport.CloseNormal, "client stopping")
			return errStopped
		case <-ctx.Done():
			_ = conn.Close(transport.CloseNormal, "client stopping")
			return errStopped
		}
	}
}

// dispatch routes one inbound frame. It reports whether the frame completed
// the handshake.
func (c *Controller) dispatch(ctx context.Context, f inbound, log *slog.Logger) bool {
	env, err := codec.Decode(f.data)
	if err != nil {
		c.malformed.Do(func() {
			log.Warn("dropping malformed frame", "bytes", len(f.data), "error", err)
		})
		return false
	}

	switch e := env.(type) {
	case *codec.Response:
		c.calls.Complete(e)
	case *codec.Chat:
		c.router.Chat.Publish(e.Items)
	case *codec.Welcome:
		if c.State() == domain.StateReady {
			log.Warn("welcome while ready ignored", "user", e.User.ID)
			return false
		}
		c.session.Welcome(ctx, e.User, e.SessionToken,
			time.UnixMilli(e.ServerTime), time.Duration(e.OfflineDuration)*time.Millisecond, f.at)
		c.backoff.Reset()
		c.setState(domain.StateReady)
		log.Info("session ready", "user", e.User.ID, "clock_offset", c.session.ClockOffset())
		c.router.User.Publish(e.User)
		c.router.Connection.Publish(true)
		return true
	case *codec.Request:
		log.Debug("server request ignored", "method", e.Method, "id", e.ID)
	}
	return false
}

func (c *Controller) readLoop(ctx context.Context, conn transport.Conn, frames chan<- inbound, errc chan<- error) {
	for {
		data, err := conn.Recv(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case frames <- inbound{data: data, at: c.clock.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

func writeLoop(ctx context.Context, conn transport.Conn, out <-chan []byte, errc chan<- error) {
	for {
		select {
		case frame := <-out:
			if err := conn.Send(ctx, frame); err != nil {
				errc <- err
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// mergeDone returns a context that is also cancelled when done closes.
func mergeDone(ctx context.Context, done <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
