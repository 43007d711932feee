// Package dispatcher classifies every inbound frame and routes it to the
// correlator, the subscription registry or the generic frame handlers.
package dispatcher

import (
	"sync"

	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/alejoacosta74/kraken-ws/internal/correlator"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks . QueryResolver,SubscriptionMatcher

// QueryResolver is the part of the correlator the dispatcher routes to.
type QueryResolver interface {
	Resolve(resp correlator.Response) bool
	Expired(id int) bool
}

// SubscriptionMatcher is the part of the subscription registry the
// dispatcher routes to.
type SubscriptionMatcher interface {
	HandleStatus(reqID int, raw []byte) bool
	Match(channel, serverPair string, raw []byte) []subscription.Delivery
	MatchTopic(topic string, raw []byte) []subscription.Delivery
}

// FrameHandler receives classified frames of one kind. It runs on the frame
// processing path and must return quickly.
type FrameHandler func(Frame)

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Correlator QueryResolver
	Registry   SubscriptionMatcher
	// Pool runs stream handlers. When nil they run inline.
	Pool *HandlerPool
	// EventBus receives one event per dispatched frame. May be nil.
	EventBus events.Bus
}

// Dispatcher routes frames of one connection. Dispatch must be called from a
// single goroutine, in arrival order.
type Dispatcher struct {
	correlator QueryResolver
	registry   SubscriptionMatcher
	pool       *HandlerPool
	eventBus   events.Bus

	// Generic handlers per frame kind, called in registration order
	handlers     map[Kind][]FrameHandler
	handlerMutex sync.RWMutex

	logger *logrus.Entry
}

// NewDispatcher creates a dispatcher routing to the collaborators in cfg.
func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		correlator: cfg.Correlator,
		registry:   cfg.Registry,
		pool:       cfg.Pool,
		eventBus:   cfg.EventBus,
		handlers:   make(map[Kind][]FrameHandler),
		logger:     logrus.WithField("component", "dispatcher"),
	}
}

// RegisterHandler adds a handler for a frame kind. This method is
// thread-safe and can be called concurrently with Dispatch.
//
//	dispatcher.RegisterHandler(KindSystemStatus, func(f Frame) { ... })
func (d *Dispatcher) RegisterHandler(kind Kind, handler FrameHandler) {
	d.handlerMutex.Lock()
	defer d.handlerMutex.Unlock()
	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Dispatch classifies raw and routes it:
//
//  1. heartbeat and systemStatus go to the generic handlers
//  2. frames with a reqid go to the correlator first, then to the registry
//     ack/nack handling; otherwise they are dropped
//  3. arrays go to the confirmed subscriptions matching their routing key
//  4. everything else is logged and dropped
//
// It returns the classified frame.
func (d *Dispatcher) Dispatch(raw []byte) Frame {
	frame := Classify(raw)
	d.logger.WithField("kind", frame.Kind).Tracef("Received frame: %s", raw)

	switch frame.Kind {
	case KindHeartbeat:
		d.runHandlers(frame)
		d.publish(common.TypeHeartbeat, frame)
	case KindSystemStatus:
		d.runHandlers(frame)
		d.publish(common.TypeSystemStatus, frame)
	case KindQueryResponse, KindSubscriptionStatus:
		d.routeResponse(frame)
	case KindStreamUpdate:
		d.routeUpdate(frame)
	default:
		d.drop(frame, frame.Reason)
	}
	return frame
}

func (d *Dispatcher) routeResponse(frame Frame) {
	resolved := d.correlator.Resolve(correlator.Response{
		RequestID:    frame.RequestID,
		ErrorMessage: frame.ErrorMessage,
		Raw:          frame.Raw,
	})
	if resolved {
		d.runHandlers(frame)
		d.publish(common.TypeQueryResponse, frame)
		return
	}

	// Subscribe nacks may arrive as {"event":"error"}, so every reqid frame is offered.
	if d.registry.HandleStatus(frame.RequestID, frame.Raw) {
		d.runHandlers(frame)
		d.publish(common.TypeSubscriptionStatus, frame)
		return
	}

	if d.correlator.Expired(frame.RequestID) {
		d.logger.WithField("reqid", frame.RequestID).Warn("Dropping late response for timed out request")
		d.publish(common.TypeUnroutable, frameEvent(frame, "late response"))
		return
	}
	d.drop(frame, "no pending request or subscription")
}

func (d *Dispatcher) routeUpdate(frame Frame) {
	var deliveries []subscription.Delivery
	if frame.Private {
		deliveries = d.registry.MatchTopic(frame.Topic, frame.Raw)
	} else {
		deliveries = d.registry.Match(frame.Channel, frame.Pair, frame.Raw)
	}
	if len(deliveries) == 0 {
		d.logger.WithFields(logrus.Fields{
			"channel": frame.Channel,
			"pair":    frame.Pair,
			"topic":   frame.Topic,
		}).Debug("No subscription for stream update")
		d.publish(common.TypeUnroutable, frameEvent(frame, "no subscription"))
		return
	}

	d.runHandlers(frame)
	for _, delivery := range deliveries {
		msg := delivery.Message
		handler := delivery.Subscription.Handler()

		if d.pool == nil {
			runInline(d.logger, handler, msg)
		} else if !d.pool.Submit(handler, msg) {
			d.logger.WithFields(logrus.Fields{
				"subscription": msg.SubscriptionID,
				"channel":      msg.Channel,
			}).Warn("Handler queue full, dropping update")
			if d.eventBus != nil {
				d.eventBus.Publish(common.TypeUpdateDropped, common.DropEvent{Topic: msg.Topic, Channel: msg.Channel, Pair: msg.Pair})
			}
			continue
		}

		if d.eventBus != nil {
			d.eventBus.Publish(common.TypeStreamUpdate, common.StreamEvent{
				Topic:   msg.Topic,
				Channel: msg.Channel,
				Pair:    msg.Pair,
				Payload: msg.Raw,
			})
		}
	}
}

func (d *Dispatcher) runHandlers(frame Frame) {
	d.handlerMutex.RLock()
	handlers := d.handlers[frame.Kind]
	d.handlerMutex.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.WithField("kind", frame.Kind).Errorf("Frame handler panicked: %v", r)
				}
			}()
			h(frame)
		}()
	}
}

func (d *Dispatcher) drop(frame Frame, reason string) {
	d.logger.WithFields(logrus.Fields{
		"kind":   frame.Kind,
		"reqid":  frame.RequestID,
		"reason": reason,
	}).Warnf("Dropping unroutable frame: %.256s", frame.Raw)
	d.publish(common.TypeUnroutable, frameEvent(frame, reason))
}

func (d *Dispatcher) publish(topic common.MessageType, event interface{}) {
	if d.eventBus == nil {
		return
	}
	if f, ok := event.(Frame); ok {
		event = frameEvent(f, "")
	}
	d.eventBus.Publish(topic, event)
}

func frameEvent(f Frame, reason string) common.FrameEvent {
	return common.FrameEvent{
		Kind:      f.Kind.String(),
		Event:     f.Event,
		RequestID: f.RequestID,
		Reason:    reason,
	}
}

func runInline(logger *logrus.Entry, handler subscription.Handler, msg subscription.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("subscription", msg.SubscriptionID).Errorf("Subscription handler panicked: %v", r)
		}
	}()
	handler(msg)
}
