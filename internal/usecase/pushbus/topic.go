// Package pushbus fans server pushes and connection events out to
// in-process subscribers.
package pushbus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"shiplink/internal/infra/logger"
)

type subscription[T any] struct {
	id      uint64
	handler func(T)
}

// Topic is a typed, goroutine-safe broadcast channel. Handlers run
// synchronously on the publishing goroutine in subscription order, so
// subscribers observe events in the order they were published.
type Topic[T any] struct {
	name   string
	mu     sync.RWMutex
	subs   []subscription[T]
	nextID atomic.Uint64
	closed atomic.Bool
	logger *slog.Logger
}

// NewTopic creates a topic. name only appears in logs.
func NewTopic[T any](name string, log *slog.Logger) *Topic[T] {
	return &Topic[T]{name: name, logger: logger.OrDiscard(log)}
}

// Subscribe registers handler and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (t *Topic[T]) Subscribe(handler func(T)) func() {
	id := t.nextID.Add(1)

	t.mu.Lock()
	t.subs = append(t.subs, subscription[T]{id: id, handler: handler})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				// Copy so an in-progress Publish keeps its snapshot.
				next := make([]subscription[T], 0, len(t.subs)-1)
				next = append(next, t.subs[:i]...)
				t.subs = append(next, t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers v to every current subscriber. A panicking handler is
// logged and does not stop delivery to the rest.
func (t *Topic[T]) Publish(v T) {
	if t.closed.Load() {
		return
	}
	t.mu.RLock()
	subs := t.subs
	t.mu.RUnlock()

	for _, sub := range subs {
		t.dispatch(sub, v)
	}
}

func (t *Topic[T]) dispatch(sub subscription[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("push handler panicked", "topic", t.name, "subscription", sub.id, "panic", r)
		}
	}()
	sub.handler(v)
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Close drops all subscribers and ignores later publishes.
func (t *Topic[T]) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.mu.Lock()
	t.subs = nil
	t.mu.Unlock()
}
