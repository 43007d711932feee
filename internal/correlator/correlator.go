// Package correlator matches object shaped response frames to the queries
// waiting for them by request id.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/kerrors"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks . Sender

// expiredCapacity bounds how many timed out request ids are remembered.
const expiredCapacity = 1024

var lastRequestID atomic.Int64

// NextRequestID returns a process-wide, strictly increasing request id.
// Ids are never reused.
func NextRequestID() int {
	return int(lastRequestID.Add(1))
}

// Sender delivers an outbound message over the socket.
type Sender interface {
	Send(ctx context.Context, msg interface{}) error
}

// Response is the part of an object frame the correlator matches on.
type Response struct {
	RequestID    int
	ErrorMessage string
	Raw          []byte
}

type result struct {
	raw []byte
	err error
}

type pending struct {
	id      int
	event   string
	started time.Time
	result  chan result // buffered, written at most once
}

// Correlator tracks in-flight queries. It is safe for concurrent use.
type Correlator struct {
	sender   Sender
	eventBus events.Bus

	mu      sync.Mutex
	pending map[int]*pending
	expired map[int]struct{}
	order   []int // expired ids in insertion order

	logger *logrus.Entry
}

// New creates a Correlator sending through sender. eventBus may be nil.
func New(sender Sender, eventBus events.Bus) *Correlator {
	return &Correlator{
		sender:   sender,
		eventBus: eventBus,
		pending:  make(map[int]*pending),
		expired:  make(map[int]struct{}),
		logger:   logrus.WithField("component", "correlator"),
	}
}

// Query sends req and waits for the response carrying the same request id.
// On success the response is decoded into out (when out is not nil).
//
// Errors:
//   - *kerrors.ServerError when the response carries an errorMessage
//   - *kerrors.TimeoutError when nothing matched within timeout
//   - *kerrors.ConnectionError when the send failed or the socket dropped
//   - *kerrors.UnknownError when the response could not be decoded
//   - ctx.Err() when ctx is done first
func (c *Correlator) Query(ctx context.Context, req kraken.Request, timeout time.Duration, out interface{}) error {
	p, err := c.register(req)
	if err != nil {
		return err
	}

	if err := c.sender.Send(ctx, req); err != nil {
		c.remove(p.id)
		err = &kerrors.ConnectionError{Err: err}
		c.publish(p, err)
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.result:
		c.publish(p, res.err)
		if res.err != nil {
			return res.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.raw, out); err != nil {
			err = &kerrors.UnknownError{Message: "failed to parse response", Err: err}
			return err
		}
		return nil
	case <-timer.C:
		c.expire(p.id)
		err := &kerrors.TimeoutError{RequestID: p.id}
		c.logger.WithField("reqid", p.id).Warn("Query timed out")
		c.publish(p, err)
		return err
	case <-ctx.Done():
		c.expire(p.id)
		c.publish(p, ctx.Err())
		return ctx.Err()
	}
}

func (c *Correlator) register(req kraken.Request) (*pending, error) {
	id := req.RequestID()
	if id <= 0 {
		return nil, fmt.Errorf("request has no request id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("request id %d already in flight", id)
	}
	p := &pending{
		id:      id,
		event:   eventName(req),
		started: time.Now(),
		result:  make(chan result, 1),
	}
	c.pending[id] = p
	return p, nil
}

// Resolve completes the query waiting for resp.RequestID. It returns false
// when no query is waiting for that id, leaving the frame to other handlers.
func (c *Correlator) Resolve(resp Response) bool {
	c.mu.Lock()
	p, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	if resp.ErrorMessage != "" {
		p.result <- result{err: kerrors.NewServerError(resp.ErrorMessage)}
	} else {
		p.result <- result{raw: resp.Raw}
	}
	c.logger.WithField("reqid", resp.RequestID).Trace("Resolved query")
	return true
}

// Expired reports whether id belonged to a query that already gave up.
// Frames for such ids arrive late and are dropped by the router.
func (c *Correlator) Expired(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.expired[id]
	return ok
}

// FailAll completes every outstanding query with a ConnectionError.
func (c *Correlator) FailAll(cause error) {
	c.mu.Lock()
	failed := c.pending
	c.pending = make(map[int]*pending)
	c.mu.Unlock()

	for id, p := range failed {
		p.result <- result{err: &kerrors.ConnectionError{Err: cause}}
		c.logger.WithField("reqid", id).Debug("Failed pending query on disconnect")
	}
}

// Pending returns the number of queries currently waiting for a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Correlator) expire(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, id)
	if _, ok := c.expired[id]; ok {
		return
	}
	c.expired[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > expiredCapacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.expired, oldest)
	}
}

func (c *Correlator) publish(p *pending, err error) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish(common.TypeQueryCompleted, common.QueryEvent{
		RequestID: p.id,
		Event:     p.event,
		Seconds:   time.Since(p.started).Seconds(),
		Err:       err,
	})
}

func eventName(req kraken.Request) string {
	switch r := req.(type) {
	case kraken.SubscribeRequest:
		return r.Event
	case kraken.UnsubscribeRequest:
		return r.Event
	case kraken.PingRequest:
		return r.Event
	case kraken.AddOrderRequest:
		return r.Event
	case kraken.CancelOrderRequest:
		return r.Event
	case kraken.CancelAllRequest:
		return r.Event
	case kraken.CancelAllAfterRequest:
		return r.Event
	default:
		return fmt.Sprintf("%T", req)
	}
}
