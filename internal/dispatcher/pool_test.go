package dispatcher

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandlerPool_InvalidSize(t *testing.T) {
	_, err := NewHandlerPool(0, 10)
	assert.Error(t, err)
	_, err = NewHandlerPool(2, 0)
	assert.Error(t, err)
}

func TestHandlerPool_KeepsOrderPerSubscription(t *testing.T) {
	pool, err := NewHandlerPool(4, 100)
	require.NoError(t, err)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var mu sync.Mutex
	seen := make(map[uuid.UUID][]int)
	handler := func(m subscription.Message) {
		n, _ := strconv.Atoi(string(m.Raw))
		mu.Lock()
		seen[m.SubscriptionID] = append(seen[m.SubscriptionID], n)
		mu.Unlock()
	}

	for i := 0; i < 30; i++ {
		for _, id := range ids {
			require.True(t, pool.Submit(handler, subscription.Message{SubscriptionID: id, Raw: []byte(strconv.Itoa(i))}))
		}
	}
	pool.Stop()

	for _, id := range ids {
		got := seen[id]
		require.Len(t, got, 30)
		for i, n := range got {
			assert.Equal(t, i, n)
		}
	}
}

func TestHandlerPool_RecoversPanics(t *testing.T) {
	pool, err := NewHandlerPool(1, 10)
	require.NoError(t, err)

	done := make(chan struct{})
	id := uuid.New()
	pool.Submit(func(subscription.Message) { panic("handler bug") }, subscription.Message{SubscriptionID: id})
	pool.Submit(func(subscription.Message) { close(done) }, subscription.Message{SubscriptionID: id})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking handler")
	}
	pool.Stop()
	pool.Stop()

	assert.False(t, pool.Submit(func(subscription.Message) {}, subscription.Message{SubscriptionID: id}))
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
