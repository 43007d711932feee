package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a subscription
type Status int

const (
	StatusRequested     Status = iota // Subscribe sent, waiting for the ack
	StatusConfirmed                   // Ack received, updates are delivered
	StatusFailed                      // Rejected, timed out or lost before confirmation
	StatusUnsubscribing               // Unsubscribe sent, waiting for the ack
	StatusUnsubscribed                // Removed from the registry
)

func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "requested"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	case StatusUnsubscribing:
		return "unsubscribing"
	case StatusUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Message is a stream update delivered to a subscription handler.
type Message struct {
	SubscriptionID uuid.UUID
	Topic          string // Subscription name, e.g. "book"
	Channel        string // Channel name as sent by the server, e.g. "book-10"
	Pair           string // The spelling the subscriber used, empty for private feeds
	Raw            []byte // The complete array frame
}

// Handler receives the stream updates of one subscription. Calls for one
// subscription are sequential.
type Handler func(Message)

// Subscription is one logical subscription. Its id stays the same across
// re-subscriptions after reconnects.
type Subscription struct {
	id          uuid.UUID
	details     kraken.SubscriptionDetails
	serverPairs []string
	clientPairs map[string]string // server spelling -> client spelling
	handler     Handler

	mu         sync.Mutex
	reqID      int
	generation int
	status     Status
	channelIDs map[string]int // server pair ("" for private feeds) -> channel id
	acks       int
	err        error
	done       chan struct{}
	ackTimer   *time.Timer
}

func newSubscription(details kraken.SubscriptionDetails, clientPairs, serverPairs []string, handler Handler) *Subscription {
	s := &Subscription{
		id:          uuid.New(),
		details:     details,
		serverPairs: serverPairs,
		clientPairs: make(map[string]string, len(serverPairs)),
		handler:     handler,
		channelIDs:  make(map[string]int),
	}
	for i, sp := range serverPairs {
		s.clientPairs[sp] = clientPairs[i]
	}
	return s
}

// ID returns the stable handle id.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Topic returns the subscription name, e.g. "ticker".
func (s *Subscription) Topic() string { return s.details.Name }

// Details returns the subscription parameters sent to the server.
func (s *Subscription) Details() kraken.SubscriptionDetails { return s.details }

// Pairs returns the client facing pairs of the subscription.
func (s *Subscription) Pairs() []string {
	out := make([]string, 0, len(s.serverPairs))
	for _, sp := range s.serverPairs {
		out = append(out, s.clientPairs[sp])
	}
	return out
}

// Handler returns the update handler.
func (s *Subscription) Handler() Handler { return s.handler }

// Status returns the current lifecycle state.
func (s *Subscription) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RequestID returns the request id of the current subscribe request.
func (s *Subscription) RequestID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqID
}

// ChannelID returns the channel id assigned by the server, or 0 when none
// has been assigned. For multi pair subscriptions it returns the id of the
// first pair that has one.
func (s *Subscription) ChannelID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.channelIDs[""]; ok {
		return id
	}
	for _, sp := range s.serverPairs {
		if id, ok := s.channelIDs[sp]; ok {
			return id
		}
	}
	return 0
}

// ChannelIDs returns every channel id assigned to the subscription, in a
// stable order.
func (s *Subscription) ChannelIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.channelIDs))
	for _, id := range s.channelIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Err returns the failure reason once the subscription failed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the current subscribe request was confirmed or failed.
func (s *Subscription) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current subscribe request was confirmed or failed
// and returns the failure, if any.
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clientPair maps a server spelled pair back to the spelling the subscriber used.
func (s *Subscription) clientPair(serverPair string) string {
	if cp, ok := s.clientPairs[serverPair]; ok {
		return cp
	}
	return serverPair
}

func (s *Subscription) hasPair(serverPair string) bool {
	_, ok := s.clientPairs[serverPair]
	return ok
}

// expectedAcks is the number of subscriptionStatus frames the server sends
// for one subscribe request: one per pair, or one for private feeds.
func (s *Subscription) expectedAcks() int {
	if len(s.serverPairs) == 0 {
		return 1
	}
	return len(s.serverPairs)
}

// resolve closes the done channel of the current generation. Callers hold s.mu.
func (s *Subscription) resolve(status Status, err error) {
	s.status = status
	s.err = err
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
