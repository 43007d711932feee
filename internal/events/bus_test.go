package events

import (
	"sync"
	"testing"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan interface{}) interface{} {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func assertEmpty(t *testing.T, ch <-chan interface{}) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestEventBus_FanOut(t *testing.T) {
	update := common.StreamEvent{Topic: "ticker", Channel: "ticker", Pair: "XBT/USD", Payload: []byte(`[340,{},"ticker","XBT/USD"]`)}
	drop := common.DropEvent{Channel: "book-10", Pair: "ETH/USD"}
	query := common.QueryEvent{RequestID: 7, Event: "ping", Seconds: 0.012}

	tests := []struct {
		name        string
		topic       common.MessageType
		event       interface{}
		subscribers int
	}{
		{"stream update to one subscriber", common.TypeStreamUpdate, update, 1},
		{"dropped update to several subscribers", common.TypeUpdateDropped, drop, 3},
		{"query completion", common.TypeQueryCompleted, query, 2},
		{"nil event is delivered as is", common.TypeConnectionState, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewEventBus()
			defer bus.Shutdown()

			chans := make([]<-chan interface{}, tt.subscribers)
			for i := range chans {
				chans[i] = bus.Subscribe(tt.topic)
				assert.Equal(t, defaultBufferSize, cap(chans[i]))
			}
			other := bus.Subscribe(common.TypeHeartbeat)
			assert.Equal(t, tt.subscribers, bus.TopicSubscriberCount(tt.topic))

			bus.Publish(tt.topic, tt.event)

			for _, ch := range chans {
				assert.Equal(t, tt.event, receive(t, ch))
			}
			assertEmpty(t, other)
		})
	}
}

func TestEventBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() {
		bus.Publish(common.TypeUnroutable, common.FrameEvent{Kind: "unroutable", Reason: "no subscription"})
	})
	assert.Equal(t, 0, bus.TopicSubscriberCount(common.TypeUnroutable))
}

func TestEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	slow := bus.Subscribe(common.TypeHeartbeat)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultBufferSize*2; i++ {
			bus.Publish(common.TypeHeartbeat, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, slow, defaultBufferSize)
	assert.Equal(t, 0, receive(t, slow), "oldest events are kept")
}

func TestEventBus_ConcurrentPublishers(t *testing.T) {
	const (
		subscribers = 4
		publishers  = 8
		perPub      = 10
	)
	bus := NewEventBus()

	chans := make([]<-chan interface{}, subscribers)
	for i := range chans {
		chans[i] = bus.Subscribe(common.TypeQueryCompleted)
	}

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPub; i++ {
				bus.Publish(common.TypeQueryCompleted, common.QueryEvent{RequestID: p*perPub + i})
			}
		}(p)
	}
	wg.Wait()

	for _, ch := range chans {
		seen := make(map[int]bool)
		for len(seen) < publishers*perPub {
			ev := receive(t, ch).(common.QueryEvent)
			assert.False(t, seen[ev.RequestID], "request %d delivered twice", ev.RequestID)
			seen[ev.RequestID] = true
		}
		assertEmpty(t, ch)
	}
}

func TestEventBus_UnsubscribeAndShutdown(t *testing.T) {
	bus := NewEventBus()
	updates := bus.Subscribe(common.TypeStreamUpdate)
	heartbeats := bus.Subscribe(common.TypeHeartbeat)

	bus.Unsubscribe(common.TypeStreamUpdate, updates)
	bus.Unsubscribe(common.TypeStreamUpdate, updates)
	_, ok := <-updates
	assert.False(t, ok, "unsubscribed channel should be closed")
	assert.Equal(t, 0, bus.TopicSubscriberCount(common.TypeStreamUpdate))

	bus.Shutdown()
	bus.Shutdown()
	_, ok = <-heartbeats
	assert.False(t, ok, "shutdown should close remaining channels")

	late := bus.Subscribe(common.TypeHeartbeat)
	_, ok = <-late
	assert.False(t, ok, "subscribe after shutdown returns a closed channel")
	assert.NotPanics(t, func() { bus.Publish(common.TypeHeartbeat, nil) })
}
