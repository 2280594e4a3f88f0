package rpc

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shiplink/internal/domain"
	"shiplink/internal/infra/logger"
)

// PendingTable maps call IDs to in-flight calls. An entry is removed before
// its result is delivered, so every call resolves at most once.
type PendingTable struct {
	mu    sync.Mutex
	calls map[uint64]*Call

	logger    *slog.Logger
	unmatched rate.Sometimes
}

// NewPendingTable creates an empty table.
func NewPendingTable(log *slog.Logger) *PendingTable {
	return &PendingTable{
		calls:     make(map[uint64]*Call),
		logger:    logger.OrDiscard(log),
		unmatched: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Add registers c. IDs are never reused, so an existing entry is a bug.
func (t *PendingTable) Add(c *Call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.calls[c.ID]; dup {
		panic("rpc: duplicate call id")
	}
	t.calls[c.ID] = c
}

// Complete resolves the call with the given id. A non-nil failure resolves
// it with that error; otherwise result is the value. Unknown ids (late
// responses, abandoned calls, server bugs) are logged and ignored.
// Reports whether a call was resolved.
func (t *PendingTable) Complete(id uint64, result json.RawMessage, failure *domain.RPCError) bool {
	c := t.Remove(id)
	if c == nil {
		t.unmatched.Do(func() {
			t.logger.Warn("response for unknown call", "id", id)
		})
		return false
	}
	if failure != nil {
		c.resolve(Result{Err: failure})
	} else {
		c.resolve(Result{Value: result})
	}
	return true
}

// Remove drops the entry for id without resolving it and returns it, or nil
// when absent.
func (t *PendingTable) Remove(id uint64) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return nil
	}
	delete(t.calls, id)
	return c
}

// RejectAll resolves every pending call with err and empties the table.
// Returns the number of calls rejected.
func (t *PendingTable) RejectAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[uint64]*Call)
	t.mu.Unlock()

	for _, c := range calls {
		c.resolve(Result{Err: err})
	}
	return len(calls)
}

// Len returns the number of in-flight calls.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
