package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"shiplink/internal/adapter/codec"
	"shiplink/internal/domain"
	"shiplink/internal/infra/logger"
	"shiplink/internal/infra/tracer"
)

// Link is the outbound side of the current connection.
type Link interface {
	// Open reports whether the substrate is open (handshake pending or done).
	Open() bool
	// Enqueue hands a frame to the connection's writer. It never blocks on
	// I/O; it fails with domain.ErrNotReady or domain.ErrSendQueueFull.
	Enqueue(frame []byte) error
}

// Options configures a Client.
type Options struct {
	Logger *slog.Logger
	Clock  clock.Clock
	// CallTimeout bounds Call/CallInto when the caller's ctx has no deadline.
	// 0 disables it.
	CallTimeout time.Duration
}

// Client issues calls over a Link and correlates their responses.
type Client struct {
	mu   sync.RWMutex
	link Link

	nextID      atomic.Uint64
	pending     *PendingTable
	clock       clock.Clock
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a client. Bind must be called before any call can
// succeed; until then every call fails with domain.ErrNotReady.
func NewClient(opts Options) *Client {
	log := logger.OrDiscard(opts.Logger)
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Client{
		pending:     NewPendingTable(log),
		clock:       clk,
		callTimeout: opts.CallTimeout,
		logger:      log,
	}
}

// Bind attaches the link frames are sent through.
func (c *Client) Bind(link Link) {
	c.mu.Lock()
	c.link = link
	c.mu.Unlock()
}

func (c *Client) currentLink() Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link
}

// Go sends method(params...) and returns immediately with the pending call.
// A nil param is sent as absent. When the link is not open it fails with
// domain.ErrNotReady and nothing is registered.
func (c *Client) Go(ctx context.Context, method string, params ...any) (*Call, error) {
	link := c.currentLink()
	if link == nil || !link.Open() {
		return nil, domain.NewDomainError("rpc.Go", domain.ErrNotReady, method)
	}

	id := c.nextID.Add(1)
	req, err := codec.NewRequest(id, method, params...)
	if err != nil {
		return nil, domain.WrapOp("rpc.Go", err)
	}
	frame, err := codec.Encode(req)
	if err != nil {
		return nil, domain.WrapOp("rpc.Go", err)
	}

	_, span := tracer.StartClientSpan(ctx, "rpc."+method,
		tracer.StringAttr("rpc.method", method),
		tracer.Int64Attr("rpc.id", int64(id)),
		tracer.IntAttr("rpc.params", len(req.Params)),
	)
	call := newCall(id, method, c.clock.Now(), span)

	// Registered before the frame can reach the wire so a fast response
	// always finds its entry.
	c.pending.Add(call)
	if err := link.Enqueue(frame); err != nil {
		c.pending.Remove(id)
		tracer.RecordError(span, err)
		span.End()
		return nil, domain.NewDomainError("rpc.Go", err, method)
	}

	c.logger.Debug("call sent", "method", method, "id", id, "params", len(req.Params))
	return call, nil
}

// Call sends method(params...) and waits for the result. If ctx ends first
// the pending entry is dropped and ctx's error is returned; a later
// response is then logged as unmatched.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	call, err := c.Go(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-call.Done():
		return r.Value, r.Err
	case <-ctx.Done():
		if c.pending.Remove(call.ID) == nil {
			// Lost the race: the result is already being delivered.
			r := <-call.Done()
			return r.Value, r.Err
		}
		err := fmt.Errorf("call %s (id %d): %w", method, call.ID, ctx.Err())
		call.resolve(Result{Err: err})
		return nil, err
	}
}

// CallInto is Call followed by unmarshalling the result into out.
// A nil result leaves out untouched.
func (c *Client) CallInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Complete resolves the pending call a response belongs to.
func (c *Client) Complete(resp *codec.Response) {
	var failure *domain.RPCError
	if resp.Error != nil {
		failure = resp.Error.ToRPCError()
	}
	c.pending.Complete(resp.ID, resp.Result, failure)
}

// FailAll rejects every in-flight call with err.
func (c *Client) FailAll(err error) int {
	n := c.pending.RejectAll(err)
	if n > 0 {
		c.logger.Info("pending calls rejected", "count", n, "error", err)
	}
	return n
}

// Pending returns the number of in-flight calls.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// IsNotReady reports whether err is a fast-fail caused by the connection
// not being usable.
func IsNotReady(err error) bool {
	return errors.Is(err, domain.ErrNotReady)
}
