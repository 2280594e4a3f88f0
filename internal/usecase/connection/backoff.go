package connection

import "time"

// Backoff computes reconnect delays: the Nth consecutive delay is
// min(Base * 2^N, Cap). It is not safe for concurrent use; the controller
// loop is its only user.
type Backoff struct {
	Base    time.Duration
	Cap     time.Duration
	attempt int
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	d := b.Delay(b.attempt)
	b.attempt++
	return d
}

// Delay returns the delay for attempt n without changing state.
func (b *Backoff) Delay(n int) time.Duration {
	d := b.Base
	for range n {
		if d >= b.Cap || d > b.Cap/2 {
			return b.Cap
		}
		d *= 2
	}
	return min(d, b.Cap)
}

// Reset returns the counter to zero. Called on every successful handshake.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}
