package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/sirupsen/logrus"
)

// Record is the value written to Kafka for every stream update.
type Record struct {
	Topic      string          `json:"topic"`   // Subscription topic, e.g. "book"
	Channel    string          `json:"channel"` // e.g. "book-10"
	Pair       string          `json:"pair,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Frame      json.RawMessage `json:"frame"` // The stream frame as received
}

// StreamSink forwards routed stream updates from the event bus to Kafka.
// Updates go to "<prefix>.<topic>" keyed by pair, so one pair's updates stay
// ordered within a partition.
type StreamSink struct {
	eventBus events.Bus
	sender   MessageSender
	prefix   string
	logger   *logrus.Entry
	now      func() time.Time

	sent   atomic.Int64
	failed atomic.Int64
	done   chan struct{}
}

// NewStreamSink creates a sink writing through sender. prefix defaults to "kraken".
func NewStreamSink(eventBus events.Bus, sender MessageSender, prefix string) *StreamSink {
	if prefix == "" {
		prefix = "kraken"
	}
	return &StreamSink{
		eventBus: eventBus,
		sender:   sender,
		prefix:   prefix,
		logger:   logrus.WithField("component", "kafka_stream_sink"),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start subscribes to stream updates and forwards them until ctx is done
// or the bus shuts down.
func (s *StreamSink) Start(ctx context.Context) {
	updates := s.eventBus.Subscribe(common.TypeStreamUpdate)
	go s.run(ctx, updates)
}

// Done is closed once the sink stopped.
func (s *StreamSink) Done() <-chan struct{} {
	return s.done
}

// Sent returns how many records were acknowledged by the brokers.
func (s *StreamSink) Sent() int64 { return s.sent.Load() }

// Failed returns how many records could not be written.
func (s *StreamSink) Failed() int64 { return s.failed.Load() }

func (s *StreamSink) run(ctx context.Context, updates <-chan interface{}) {
	defer close(s.done)
	defer s.eventBus.Unsubscribe(common.TypeStreamUpdate, updates)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Context cancelled, stopping stream sink")
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			update, isStream := ev.(common.StreamEvent)
			if !isStream {
				continue
			}
			s.forward(ctx, update)
		}
	}
}

func (s *StreamSink) forward(ctx context.Context, update common.StreamEvent) {
	value, err := json.Marshal(Record{
		Topic:      update.Topic,
		Channel:    update.Channel,
		Pair:       update.Pair,
		ReceivedAt: s.now().UTC(),
		Frame:      update.Payload,
	})
	if err != nil {
		s.failed.Add(1)
		s.logger.WithError(err).Warn("Dropping update that is not valid JSON")
		return
	}

	msg := Message{
		Topic:   s.prefix + "." + update.Topic,
		Key:     update.Pair,
		Payload: value,
		Headers: map[string]string{"channel": update.Channel},
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.failed.Add(1)
		s.logger.WithFields(logrus.Fields{
			"topic": msg.Topic,
			"pair":  update.Pair,
		}).WithError(err).Error("Failed to forward update to Kafka")
		return
	}
	s.sent.Add(1)
}
