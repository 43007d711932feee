// Package ws owns the physical WebSocket connection: it sends frames,
// delivers received frames in arrival order and reconnects after unexpected
// disconnects.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/circuitbreaker"
	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/kerrors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is wrapped in the ConnectionError returned by Send while
// the connection is down.
var ErrNotConnected = errors.New("not connected")

// State of a Connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Limiter is consulted before every send.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Config holds the connection settings.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration // 0 disables the read deadline
	SendQueueSize    int

	Reconnect        bool
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BackoffJitter    float64
	BreakerThreshold int
	BreakerCooldown  time.Duration

	Limiter  Limiter    // Optional
	EventBus events.Bus // Optional, receives ConnectionEvents
}

// session is one physical connection. It ends exactly once.
type session struct {
	conn   *websocket.Conn
	writer *Writer
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *session) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		s.conn.Close()
	})
}

// Connection is one logical WebSocket connection that survives reconnects.
type Connection struct {
	cfg     Config
	dialer  *websocket.Dialer
	breaker *circuitbreaker.CircuitBreaker

	state        atomic.Int32
	reconnecting atomic.Bool

	mu      sync.Mutex
	current *session

	frameMu sync.RWMutex
	onFrame func([]byte)

	disconnected *events.Observers[error]
	reconnected  *events.Observers[struct{}]

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *logrus.Entry
}

// NewConnection creates a connection; nothing is dialed until Connect.
func NewConnection(cfg Config) *Connection {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 100
	}
	return &Connection{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		breaker:      circuitbreaker.NewCircuitBreaker(cfg.URL, cfg.BreakerThreshold, cfg.BreakerCooldown),
		onFrame:      func([]byte) {},
		disconnected: events.NewObservers[error]("ws_disconnect"),
		reconnected:  events.NewObservers[struct{}]("ws_reconnect"),
		closed:       make(chan struct{}),
		logger:       logrus.WithFields(logrus.Fields{"component": "ws_connection", "url": cfg.URL}),
	}
}

// OnFrame sets the callback receiving every inbound frame. It runs on the
// reader goroutine, one frame at a time.
func (c *Connection) OnFrame(fn func([]byte)) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	c.onFrame = fn
}

// OnDisconnect registers an observer called after an unexpected disconnect,
// before reconnecting starts.
func (c *Connection) OnDisconnect(fn func(error)) (remove func()) {
	return c.disconnected.Add(fn)
}

// OnReconnect registers an observer called after a successful reconnect.
func (c *Connection) OnReconnect(fn func(struct{})) (remove func()) {
	return c.reconnected.Add(fn)
}

// State returns the current state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// URL returns the endpoint URL.
func (c *Connection) URL() string {
	return c.cfg.URL
}

// Connect dials the endpoint and starts the reader and writer. A failed
// initial dial is returned as a ConnectionError and is not retried.
func (c *Connection) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return &kerrors.ConnectionError{Err: kerrors.ErrClosed}
	}
	c.setState(StateConnecting, nil)
	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected, err)
		return &kerrors.ConnectionError{Err: err}
	}
	return nil
}

func (c *Connection) dial(ctx context.Context) error {
	var conn *websocket.Conn
	err := c.breaker.Execute(func() error {
		var resp *http.Response
		var err error
		conn, resp, err = c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("dial %s: %w (http status %d)", c.cfg.URL, err, resp.StatusCode)
			}
			return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s := &session{conn: conn, done: make(chan struct{})}
	s.writer = NewWriter(conn, c.cfg.SendQueueSize, c.cfg.WriteTimeout, s.done)

	c.mu.Lock()
	if c.State() == StateClosed {
		c.mu.Unlock()
		conn.Close()
		return kerrors.ErrClosed
	}
	c.current = s
	c.wg.Add(3)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		err := NewReader(conn, c.deliver, c.cfg.ReadTimeout).Run()
		s.end(err)
	}()
	go func() {
		defer c.wg.Done()
		if err := s.writer.Run(); err != nil {
			s.end(err)
		}
	}()
	go func() {
		defer c.wg.Done()
		<-s.done
		c.sessionEnded(s)
	}()

	c.setState(StateConnected, nil)
	c.logger.Info("Connected")
	return nil
}

func (c *Connection) deliver(frame []byte) {
	c.frameMu.RLock()
	fn := c.onFrame
	c.frameMu.RUnlock()
	fn(frame)
}

// sessionEnded runs once per session after it ended.
func (c *Connection) sessionEnded(s *session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	select {
	case <-c.closed:
		return
	default:
	}

	cause := s.err
	if cause == nil {
		cause = errors.New("connection closed by peer")
	}
	c.logger.WithError(cause).Warn("Connection lost")
	c.setState(StateReconnecting, cause)
	c.disconnected.Notify(&kerrors.ConnectionError{Err: cause})

	if !c.cfg.Reconnect {
		c.setState(StateDisconnected, cause)
		return
	}
	if c.reconnecting.CompareAndSwap(false, true) {
		c.wg.Add(1)
		go c.reconnectLoop()
	}
}

// reconnectLoop dials until it succeeds or the connection is closed. At most
// one loop runs at a time.
func (c *Connection) reconnectLoop() {
	defer c.wg.Done()

	backoff := NewBackoff(c.cfg.BackoffBase, c.cfg.BackoffMax, c.cfg.BackoffJitter)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		delay := backoff.Next()
		if wait := c.breaker.RetryAfter(); wait > delay {
			delay = wait
		}
		c.logger.WithFields(logrus.Fields{
			"attempt": backoff.Attempt(),
			"delay":   delay.String(),
		}).Info("Reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-c.closed:
			timer.Stop()
			c.reconnecting.Store(false)
			return
		case <-timer.C:
		}

		err := c.dial(ctx)
		if err == nil {
			backoff.Reset()
			c.reconnected.Notify(struct{}{})
			c.reconnecting.Store(false)
			// The new session may have ended before the flag was cleared.
			if c.sessionGone() && c.reconnecting.CompareAndSwap(false, true) {
				continue
			}
			return
		}
		if errors.Is(err, kerrors.ErrClosed) {
			c.reconnecting.Store(false)
			return
		}
		c.logger.WithError(err).Warn("Reconnect attempt failed")
	}
}

func (c *Connection) sessionGone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == nil && State(c.state.Load()) != StateClosed
}

// Send JSON encodes msg and queues it for writing.
func (c *Connection) Send(ctx context.Context, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.SendRaw(ctx, data)
}

// SendRaw queues data for writing. It fails with a ConnectionError while the
// connection is not established.
func (c *Connection) SendRaw(ctx context.Context, data []byte) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		if c.State() == StateClosed {
			return &kerrors.ConnectionError{Err: kerrors.ErrClosed}
		}
		return &kerrors.ConnectionError{Err: ErrNotConnected}
	}
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	return s.writer.Write(ctx, data)
}

// Close sends a close frame, stops reconnecting and waits for the
// connection goroutines to exit. It is idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Debug("Closing connection")
		close(c.closed)

		c.mu.Lock()
		c.state.Store(int32(StateClosed))
		s := c.current
		c.mu.Unlock()

		if s != nil {
			err := s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			if err != nil {
				c.logger.WithError(err).Debug("Error sending close message")
			}
			s.end(kerrors.ErrClosed)
		}
		c.wg.Wait()
		c.publish(StateClosed, nil)
		c.logger.Info("Connection closed")
	})
	return nil
}

func (c *Connection) setState(s State, err error) {
	c.mu.Lock()
	if State(c.state.Load()) == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(s))
	c.mu.Unlock()
	c.publish(s, err)
}

func (c *Connection) publish(s State, err error) {
	if c.cfg.EventBus == nil {
		return
	}
	c.cfg.EventBus.Publish(common.TypeConnectionState, common.ConnectionEvent{
		URL:   c.cfg.URL,
		State: s.String(),
		Err:   err,
	})
}
