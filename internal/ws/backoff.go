package ws

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff computes reconnect delays: base * 2^attempt, capped at max, with
// ±jitter applied. It is not safe for concurrent use; the reconnect loop
// owns it.
type Backoff struct {
	exp     *backoff.ExponentialBackOff
	attempt int
}

// NewBackoff creates a backoff calculator. It never gives up: the reconnect
// loop retries until the connection is closed.
func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	if max < base {
		max = base
	}
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: jitter, // 0.2 means ±20%
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return &Backoff{exp: exp}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return b.exp.NextBackOff()
}

// Reset is called after a successful connect.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.exp.Reset()
}

// Attempt returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}
