// Package kerrors defines the error taxonomy returned by queries,
// subscriptions and the connection layer.
package kerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is matched by every TimeoutError
	ErrTimeout = errors.New("request timed out")
	// ErrConnection is matched by every ConnectionError
	ErrConnection = errors.New("connection error")
	// ErrClosed is returned once the client has been closed
	ErrClosed = errors.New("client closed")
)

// ServerError carries the errorMessage the server returned for a request.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// TimeoutError is returned when no response matched a request id in time.
type TimeoutError struct {
	RequestID int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response for request %d: %s", e.RequestID, ErrTimeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// UnknownError is returned when a response matched but could not be interpreted.
type UnknownError struct {
	Message string
	Err     error
}

func (e *UnknownError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("unknown error: %s", e.Message)
}

func (e *UnknownError) Unwrap() error { return e.Err }

// ConnectionError is returned when the socket failed while a request was in flight.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return ErrConnection.Error()
	}
	return fmt.Sprintf("%s: %v", ErrConnection, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// NewServerError returns a ServerError, substituting a generic message when
// the server did not provide one.
func NewServerError(msg string) *ServerError {
	if msg == "" {
		msg = "unknown error"
	}
	return &ServerError{Message: msg}
}

// IsServerError reports whether err is (or wraps) a ServerError and returns it.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
