package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("wss://ws.kraken.com", threshold, timeout)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	dialErr := errors.New("dial tcp: connection refused")

	for i := 0; i < 3; i++ {
		assert.Equal(t, StateClosed, cb.State())
		err := cb.Execute(func() error { return dialErr })
		assert.ErrorIs(t, err, dialErr)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, time.Minute, cb.RetryAfter())
	assert.Equal(t, dialErr, cb.LastError())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		wantState State
	}{
		{"successful probe closes", nil, StateClosed},
		{"failed probe reopens", errors.New("handshake timeout"), StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(1, 30*time.Second)
			require.Error(t, cb.Execute(func() error { return errors.New("refused") }))
			require.Equal(t, StateOpen, cb.State())

			clock.advance(31 * time.Second)
			require.True(t, cb.AllowRequest())
			assert.Equal(t, StateHalfOpen, cb.State())
			assert.False(t, cb.AllowRequest(), "only one probe at a time")

			cb.RecordResult(tt.probeErr)
			assert.Equal(t, tt.wantState, cb.State())
		})
	}
}
