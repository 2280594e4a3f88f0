// Package rpc correlates outbound requests with inbound responses.
//
// A Client hands out monotonically increasing call IDs, registers every
// in-flight call in a PendingTable and resolves it exactly once when the
// matching response (or a bulk rejection) arrives. Frames are handed to a
// Link, which owns the actual connection and its writer goroutine.
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"

	"shiplink/internal/infra/tracer"
)

// Result is the outcome of one call. Exactly one of Value/Err is meaningful;
// Value may be nil for methods that return nothing.
type Result struct {
	Value json.RawMessage
	Err   error
}

// Call is a request that has been sent and awaits its response.
type Call struct {
	ID     uint64
	Method string
	Issued time.Time

	done chan Result
	span trace.Span
}

func newCall(id uint64, method string, issued time.Time, span trace.Span) *Call {
	return &Call{
		ID:     id,
		Method: method,
		Issued: issued,
		done:   make(chan Result, 1),
		span:   span,
	}
}

// Done returns a channel that receives the call's single result.
func (c *Call) Done() <-chan Result {
	return c.done
}

// Wait blocks until the result arrives or ctx is done. A call abandoned by
// ctx stays in the table; use Client.Call to also drop the entry.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case r := <-c.done:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve delivers r. Only the goroutine that removed the call from the
// table may call it, so the buffered send never blocks.
func (c *Call) resolve(r Result) {
	if c.span != nil {
		if r.Err != nil {
			tracer.RecordError(c.span, r.Err)
		} else {
			tracer.SetOK(c.span)
		}
		c.span.End()
	}
	c.done <- r
}
