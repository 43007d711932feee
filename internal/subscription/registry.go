// Package subscription keeps the set of live subscriptions of one connection,
// their subscribe/unsubscribe lifecycle and the re-subscription after
// reconnects.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/correlator"
	"github.com/alejoacosta74/kraken-ws/internal/kerrors"
	"github.com/alejoacosta74/kraken-ws/internal/symbols"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/mock_registry.go -package=mocks . Sender,Querier

// Sender delivers an outbound message over the socket.
type Sender interface {
	Send(ctx context.Context, msg interface{}) error
}

// Querier sends a request and waits for its correlated response.
type Querier interface {
	Query(ctx context.Context, req kraken.Request, timeout time.Duration, out interface{}) error
}

// ErrUnsubscribed is reported to waiters of a subscription that was
// unsubscribed before the server acknowledged it.
var ErrUnsubscribed = errors.New("unsubscribed before acknowledgement")

// Request describes a new subscription.
type Request struct {
	Details kraken.SubscriptionDetails
	Pairs   []string // Client spelled pairs, empty for private feeds
}

// Delivery is a stream update matched to a subscription.
type Delivery struct {
	Subscription *Subscription
	Message      Message
}

// Registry tracks the subscriptions of one connection.
type Registry struct {
	sender     Sender
	querier    Querier
	normalizer *symbols.Normalizer
	ackTimeout time.Duration

	mu      sync.RWMutex
	subs    map[uuid.UUID]*Subscription
	order   []*Subscription // registration order, used when re-subscribing
	byReqID map[int]*Subscription

	logger *logrus.Entry
}

// NewRegistry creates an empty registry. ackTimeout bounds how long a
// subscribe or unsubscribe request waits for its acknowledgement.
func NewRegistry(sender Sender, querier Querier, normalizer *symbols.Normalizer, ackTimeout time.Duration) *Registry {
	return &Registry{
		sender:     sender,
		querier:    querier,
		normalizer: normalizer,
		ackTimeout: ackTimeout,
		subs:       make(map[uuid.UUID]*Subscription),
		byReqID:    make(map[int]*Subscription),
		logger:     logrus.WithField("component", "subscription_registry"),
	}
}

// Validate checks a subscription request before anything is sent.
func Validate(req Request) error {
	name := req.Details.Name
	switch {
	case name == "":
		return fmt.Errorf("subscription name is required")
	case kraken.IsPrivate(name):
		if req.Details.Token == "" {
			return fmt.Errorf("%s subscription requires a websocket token", name)
		}
		if len(req.Pairs) > 0 {
			return fmt.Errorf("%s subscription does not take pairs", name)
		}
		return nil
	case len(req.Pairs) == 0:
		return fmt.Errorf("%s subscription requires at least one pair", name)
	case name == kraken.ChannelBook && !kraken.IsValidBookDepth(req.Details.Depth):
		return fmt.Errorf("invalid book depth %d, expected one of %v", req.Details.Depth, kraken.ValidBookDepths)
	case name == kraken.ChannelOHLC && !kraken.IsValidInterval(req.Details.Interval):
		return fmt.Errorf("invalid ohlc interval %d", req.Details.Interval)
	}
	for _, p := range req.Pairs {
		if err := symbols.Validate(p); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe sends a subscribe request and registers the subscription in the
// Requested state. It returns as soon as the request is sent; use
// Subscription.Wait to block until the server confirmed or rejected it.
func (r *Registry) Subscribe(ctx context.Context, req Request, handler Handler) (*Subscription, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("subscription handler is required")
	}

	clientPairs := make([]string, len(req.Pairs))
	serverPairs := make([]string, len(req.Pairs))
	for i, p := range req.Pairs {
		clientPairs[i] = p
		serverPairs[i] = r.normalizer.ToServer(p)
	}
	sub := newSubscription(req.Details, clientPairs, serverPairs, handler)

	r.mu.Lock()
	r.subs[sub.id] = sub
	r.order = append(r.order, sub)
	r.mu.Unlock()

	msg := r.prepare(sub)
	if err := r.sender.Send(ctx, msg); err != nil {
		r.remove(sub)
		sub.mu.Lock()
		sub.resolve(StatusFailed, &kerrors.ConnectionError{Err: err})
		sub.mu.Unlock()
		return nil, sub.Err()
	}

	r.logger.WithFields(logrus.Fields{
		"subscription": sub.id,
		"topic":        sub.details.Name,
		"pairs":        strings.Join(serverPairs, ","),
		"reqid":        msg.ReqID,
	}).Debug("Sent subscribe request")
	return sub, nil
}

// prepare starts a new generation of sub: fresh request id, no channel id,
// Requested state, ack timer armed. It returns the subscribe request to send.
func (r *Registry) prepare(sub *Subscription) kraken.SubscribeRequest {
	reqID := correlator.NextRequestID()

	r.mu.Lock()
	sub.mu.Lock()
	if sub.reqID != 0 {
		delete(r.byReqID, sub.reqID)
	}
	sub.reqID = reqID
	sub.generation++
	sub.status = StatusRequested
	sub.channelIDs = make(map[string]int)
	sub.acks = 0
	sub.err = nil
	sub.done = make(chan struct{})
	if sub.ackTimer != nil {
		sub.ackTimer.Stop()
	}
	sub.ackTimer = time.AfterFunc(r.ackTimeout, func() { r.ackTimedOut(sub, reqID) })
	sub.mu.Unlock()
	r.byReqID[reqID] = sub
	r.mu.Unlock()

	return kraken.NewSubscribeRequest(reqID, sub.details, sub.serverPairs...)
}

func (r *Registry) ackTimedOut(sub *Subscription, reqID int) {
	sub.mu.Lock()
	if sub.reqID != reqID || sub.status != StatusRequested {
		sub.mu.Unlock()
		return
	}
	sub.ackTimer = nil
	sub.resolve(StatusFailed, &kerrors.TimeoutError{RequestID: reqID})
	sub.mu.Unlock()

	r.remove(sub)
	r.logger.WithFields(logrus.Fields{"subscription": sub.id, "reqid": reqID}).Warn("Subscription not acknowledged in time")
}

// HandleStatus applies a subscriptionStatus frame to the subscription waiting
// for reqID. It returns false when no subscription is waiting for that id.
func (r *Registry) HandleStatus(reqID int, raw []byte) bool {
	r.mu.RLock()
	sub, ok := r.byReqID[reqID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	var status kraken.SubscriptionStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		sub.mu.Lock()
		sub.resolve(StatusFailed, &kerrors.UnknownError{Message: "failed to parse subscription response", Err: err})
		sub.mu.Unlock()
		r.remove(sub)
		return true
	}

	log := r.logger.WithFields(logrus.Fields{
		"subscription": sub.id,
		"reqid":        reqID,
		"pair":         status.Pair,
		"status":       status.Status,
	})

	sub.mu.Lock()
	if sub.reqID != reqID {
		sub.mu.Unlock()
		return false
	}
	sub.acks++
	complete := sub.acks >= sub.expectedAcks()

	if status.Status == kraken.StatusSubscribed {
		if status.ChannelID != 0 {
			sub.channelIDs[r.normalizer.ToServer(status.Pair)] = status.ChannelID
		}
		if sub.status == StatusRequested {
			sub.resolve(StatusConfirmed, nil)
			log.WithField("channel_id", status.ChannelID).Debug("Subscription confirmed")
		}
		sub.mu.Unlock()
		if complete {
			r.forgetRequest(reqID)
		}
		return true
	}

	serverErr := kerrors.NewServerError(status.ErrorMessage)
	if sub.status == StatusRequested {
		sub.resolve(StatusFailed, serverErr)
		sub.mu.Unlock()
		r.remove(sub)
		log.WithError(serverErr).Warn("Subscription rejected")
		return true
	}
	// A later pair of a confirmed multi pair subscription was rejected.
	sub.mu.Unlock()
	if complete {
		r.forgetRequest(reqID)
	}
	log.WithError(serverErr).Warn("Subscription rejected for pair")
	return true
}

// Match returns the confirmed subscriptions a public stream update for
// (channel, serverPair) belongs to, with the pair spelled as each subscriber did.
func (r *Registry) Match(channel, serverPair string, raw []byte) []Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Delivery
	for _, sub := range r.order {
		if sub.details.ChannelName() != channel || !sub.hasPair(serverPair) {
			continue
		}
		if sub.Status() != StatusConfirmed {
			continue
		}
		out = append(out, Delivery{
			Subscription: sub,
			Message: Message{
				SubscriptionID: sub.id,
				Topic:          sub.details.Name,
				Channel:        channel,
				Pair:           sub.clientPair(serverPair),
				Raw:            raw,
			},
		})
	}
	return out
}

// MatchTopic returns the confirmed subscriptions of a private feed topic.
func (r *Registry) MatchTopic(topic string, raw []byte) []Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Delivery
	for _, sub := range r.order {
		if sub.details.Name != topic || sub.Status() != StatusConfirmed {
			continue
		}
		out = append(out, Delivery{
			Subscription: sub,
			Message: Message{
				SubscriptionID: sub.id,
				Topic:          topic,
				Channel:        topic,
				Raw:            raw,
			},
		})
	}
	return out
}

// Unsubscribe ends a subscription.
//
//   - no channel id and a private topic: unsubscribe by name and token
//   - no channel id otherwise: nothing to send, succeeds immediately
//   - otherwise: unsubscribe by channel id (one request per assigned id)
//
// The unsubscribe succeeds only when every acknowledgement reports
// "unsubscribed". On failure the subscription keeps its previous state.
func (r *Registry) Unsubscribe(ctx context.Context, sub *Subscription) error {
	sub.mu.Lock()
	switch sub.status {
	case StatusUnsubscribed:
		sub.mu.Unlock()
		return nil
	case StatusFailed:
		sub.status = StatusUnsubscribed
		sub.mu.Unlock()
		r.remove(sub)
		return nil
	case StatusUnsubscribing:
		sub.mu.Unlock()
		return fmt.Errorf("subscription %s is already being unsubscribed", sub.id)
	}
	previous := sub.status
	sub.status = StatusUnsubscribing
	channelIDs := make([]int, 0, len(sub.channelIDs))
	for _, id := range sub.channelIDs {
		channelIDs = append(channelIDs, id)
	}
	sub.mu.Unlock()

	log := r.logger.WithFields(logrus.Fields{"subscription": sub.id, "topic": sub.details.Name})

	var requests []kraken.UnsubscribeRequest
	switch {
	case len(channelIDs) == 0 && kraken.IsPrivate(sub.details.Name):
		requests = append(requests, kraken.NewUnsubscribeByToken(correlator.NextRequestID(), sub.details.Name, sub.details.Token))
	case len(channelIDs) == 0:
		log.Debug("No channel id assigned, nothing to unsubscribe")
	default:
		for _, id := range channelIDs {
			requests = append(requests, kraken.NewUnsubscribeByChannel(correlator.NextRequestID(), id))
		}
	}

	for _, req := range requests {
		var status kraken.SubscriptionStatus
		err := r.querier.Query(ctx, req, r.ackTimeout, &status)
		if err == nil && status.Status != kraken.StatusUnsubscribed {
			err = &kerrors.UnknownError{Message: fmt.Sprintf("unexpected unsubscribe status %q", status.Status)}
		}
		if err != nil {
			sub.mu.Lock()
			sub.status = previous
			sub.mu.Unlock()
			log.WithError(err).Warn("Unsubscribe failed")
			return fmt.Errorf("unsubscribe %s: %w", sub.id, err)
		}
	}

	sub.mu.Lock()
	err := sub.err
	if previous == StatusRequested {
		err = ErrUnsubscribed
	}
	sub.resolve(StatusUnsubscribed, err)
	sub.mu.Unlock()
	r.remove(sub)
	log.Debug("Unsubscribed")
	return nil
}

// Resubscribe resends every registered subscription after a reconnect. Each
// one gets a new request id, loses its channel ids and goes back to Requested;
// handlers are kept. Send failures are logged and left for the next reconnect.
func (r *Registry) Resubscribe(ctx context.Context) int {
	r.mu.RLock()
	subs := make([]*Subscription, len(r.order))
	copy(subs, r.order)
	r.mu.RUnlock()

	sent := 0
	for _, sub := range subs {
		if st := sub.Status(); st == StatusUnsubscribing || st == StatusUnsubscribed {
			continue
		}
		msg := r.prepare(sub)
		if err := r.sender.Send(ctx, msg); err != nil {
			r.logger.WithError(err).WithField("subscription", sub.id).Warn("Failed to resubscribe")
			continue
		}
		sent++
	}
	r.logger.WithField("count", sent).Info("Resubscribed after reconnect")
	return sent
}

// MarkDisconnected fails subscriptions whose first subscribe request is
// still unacknowledged. Subscriptions confirmed at least once stay registered
// and are resent by Resubscribe.
func (r *Registry) MarkDisconnected(cause error) {
	r.mu.RLock()
	subs := make([]*Subscription, len(r.order))
	copy(subs, r.order)
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.status != StatusRequested {
			sub.mu.Unlock()
			continue
		}
		if sub.generation > 1 {
			// The resubscribe is repeated after the next reconnect.
			if sub.ackTimer != nil {
				sub.ackTimer.Stop()
				sub.ackTimer = nil
			}
			sub.mu.Unlock()
			continue
		}
		sub.resolve(StatusFailed, &kerrors.ConnectionError{Err: cause})
		sub.mu.Unlock()
		r.remove(sub)
	}
}

// Get returns the subscription with the given handle id.
func (r *Registry) Get(id uuid.UUID) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// All returns the registered subscriptions in registration order.
func (r *Registry) All() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) forgetRequest(reqID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byReqID, reqID)
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, sub.id)
	for id, s := range r.byReqID {
		if s == sub {
			delete(r.byReqID, id)
		}
	}
	for i, s := range r.order {
		if s == sub {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}
