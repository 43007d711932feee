package events

import (
	"sync"

	"github.com/alejoacosta74/kraken-ws/internal/common"
)

const defaultBufferSize = 100

// EventBus implements the Bus interface providing a concurrent-safe
// publish-subscribe bus. The router publishes one event per dispatched frame
// and the metrics recorder consumes them.
type EventBus struct {
	// subscribers maps topics to the set of subscriber channels
	subscribers   map[common.MessageType]map[chan interface{}]struct{}
	subscribersMu sync.RWMutex

	channelBufferSize int

	closed       bool
	shutdownOnce sync.Once
}

// NewEventBus creates a new EventBus whose subscriber channels buffer up to
// 100 events each.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers:       make(map[common.MessageType]map[chan interface{}]struct{}),
		channelBufferSize: defaultBufferSize,
	}
}

// Publish sends an event to all subscribers of the topic without blocking.
// If a subscriber's channel is full the event is dropped for that subscriber.
func (b *EventBus) Publish(topic common.MessageType, event interface{}) {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	for subscriberCh := range b.subscribers[topic] {
		select {
		case subscriberCh <- event:
		default:
		}
	}
}

// Subscribe returns a buffered channel receiving events published on topic.
// Callers must Unsubscribe when done. After Shutdown it returns a closed channel.
func (b *EventBus) Subscribe(topic common.MessageType) <-chan interface{} {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	ch := make(chan interface{}, b.channelBufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[chan interface{}]struct{})
	}
	b.subscribers[topic][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel. It is idempotent.
//
//	ch := eventBus.Subscribe(common.TypeStreamUpdate)
//	defer eventBus.Unsubscribe(common.TypeStreamUpdate, ch)
func (b *EventBus) Unsubscribe(topic common.MessageType, ch <-chan interface{}) {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	subscribers, exists := b.subscribers[topic]
	if !exists {
		return
	}
	for subCh := range subscribers {
		if ch == subCh {
			delete(subscribers, subCh)
			close(subCh)
			break
		}
	}
	if len(subscribers) == 0 {
		delete(b.subscribers, topic)
	}
}

// Shutdown closes every subscriber channel. Safe to call more than once.
func (b *EventBus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.subscribersMu.Lock()
		defer b.subscribersMu.Unlock()

		b.closed = true
		for topic, subscribers := range b.subscribers {
			for ch := range subscribers {
				close(ch)
			}
			delete(b.subscribers, topic)
		}
	})
}

// TopicSubscriberCount returns the number of subscribers for a topic.
func (b *EventBus) TopicSubscriberCount(topic common.MessageType) int {
	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	return len(b.subscribers[topic])
}
