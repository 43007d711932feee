// Package circuitbreaker stops repeated dial attempts against an endpoint
// that keeps failing.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrOpen is returned by Execute while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateOpen                  // Circuit is tripped, requests blocked
	StateHalfOpen              // Testing if service has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern to prevent cascading failures
// by temporarily stopping operations when a threshold of failures is reached.
type CircuitBreaker struct {
	state     State         // Current state of the circuit breaker
	failures  int           // Count of consecutive failures
	threshold int           // Number of failures before opening circuit
	timeout   time.Duration // How long to wait before attempting recovery
	lastError error         // Most recent error that occurred
	mu        sync.Mutex    // Protects concurrent access to state
	openTime  time.Time     // When the circuit was opened
	now       func() time.Time
	logger    *logrus.Entry
}

// NewCircuitBreaker creates a new circuit breaker with the specified failure threshold
// and recovery timeout duration.
//
// Parameters:
//   - name: Identifies the protected endpoint in logs
//   - threshold: Number of consecutive failures before opening the circuit
//   - timeout: Duration to wait before attempting recovery in half-open state
//
// Returns:
//   - *CircuitBreaker: A new circuit breaker instance in the closed state
func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
		logger:    logrus.WithFields(logrus.Fields{"component": "circuitbreaker", "endpoint": name}),
	}
}

// Execute runs the provided function if the circuit breaker allows it.
// Records the result and updates the circuit breaker state accordingly.
//
// Parameters:
//   - fn: The function to execute if circuit is closed
//
// Returns:
//   - error: Error from function execution, or an error wrapping ErrOpen
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowRequest() {
		return fmt.Errorf("%w: %v", ErrOpen, cb.LastError())
	}

	err := fn()
	cb.RecordResult(err)
	return err
}

// AllowRequest checks if a request should be allowed through based on the
// current state of the circuit breaker. An open circuit lets one request
// through (half-open) once the timeout elapsed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openTime) < cb.timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.logger.Warn("Circuit breaker transitioned to half-open")
		return true
	case StateHalfOpen:
		// A probe is already in flight
		return false
	default:
		return true
	}
}

// RecordResult records the result of a request and updates the circuit breaker state.
// Failed requests increment the failure counter and may open the circuit; a
// failed half-open probe reopens it immediately.
// Successful requests reset the failure counter and close the circuit.
func (cb *CircuitBreaker) RecordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastError = err
		if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
			cb.state = StateOpen
			cb.openTime = cb.now()
			cb.logger.WithError(err).WithField("failures", cb.failures).Warn("Circuit breaker opened")
		}
		return
	}

	if cb.state != StateClosed {
		cb.logger.Info("Circuit breaker closed")
	}
	cb.failures = 0
	cb.state = StateClosed
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RetryAfter returns how long an open circuit keeps rejecting requests, or 0.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	if d := cb.timeout - cb.now().Sub(cb.openTime); d > 0 {
		return d
	}
	return 0
}

func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.lastError
}
