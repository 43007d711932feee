package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/kerrors"
	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	wstest "github.com/alejoacosta74/kraken-ws/internal/ws/test"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const systemStatusFrame = `{"connectionID":8628615390848610000,"event":"systemStatus","status":"online","version":"1.9.0"}`

// fakeKraken answers subscribe, unsubscribe, ping and trading requests the
// way the v1 server does.
type fakeKraken struct {
	*wstest.MockWebSocketServer

	mu          sync.Mutex
	nextChannel int
	rejectPairs map[string]string // server pair -> errorMessage
}

func newFakeKraken(t *testing.T) *fakeKraken {
	t.Helper()
	f := &fakeKraken{
		MockWebSocketServer: wstest.NewMockWebSocketServer(),
		nextChannel:         100,
		rejectPairs:         make(map[string]string),
	}
	t.Cleanup(f.Close)

	f.QueueMessage([]byte(systemStatusFrame))
	f.RegisterHandler(kraken.EventSubscribe, f.subscribe)
	f.RegisterHandler(kraken.EventUnsubscribe, f.unsubscribe)
	f.RegisterHandler(kraken.EventPing, func(msg []byte) []interface{} {
		var req kraken.PingRequest
		_ = json.Unmarshal(msg, &req)
		return []interface{}{kraken.Pong{Event: kraken.EventPong, ReqID: req.ReqID}}
	})
	f.RegisterHandler(kraken.EventAddOrder, func(msg []byte) []interface{} {
		var req kraken.AddOrderRequest
		_ = json.Unmarshal(msg, &req)
		if req.Volume.IsZero() {
			return []interface{}{map[string]interface{}{
				"event": kraken.EventAddOrderStatus, "reqid": req.ReqID,
				"status": "error", "errorMessage": "EOrder:Invalid volume",
			}}
		}
		return []interface{}{map[string]interface{}{
			"event": kraken.EventAddOrderStatus, "reqid": req.ReqID, "status": "ok",
			"txid": "OGTT3Y-C6I3P-XRI6HX", "descr": "buy 10.00000000 " + req.Pair + " @ limit 34.50000",
		}}
	})
	f.RegisterHandler(kraken.EventCancelOrder, func(msg []byte) []interface{} {
		var req kraken.CancelOrderRequest
		_ = json.Unmarshal(msg, &req)
		return []interface{}{map[string]interface{}{
			"event": kraken.EventCancelOrderStatus, "reqid": req.ReqID, "status": "ok",
		}}
	})
	f.RegisterHandler(kraken.EventCancelAllOrdersAfter, func(msg []byte) []interface{} {
		var req kraken.CancelAllAfterRequest
		_ = json.Unmarshal(msg, &req)
		return []interface{}{map[string]interface{}{
			"event": kraken.EventCancelAllOrdersAfterStatus, "reqid": req.ReqID, "status": "ok",
			"currentTime": "2020-12-21T09:37:09Z", "triggerTime": "2020-12-21T09:38:09Z",
		}}
	})
	return f
}

func (f *fakeKraken) subscribe(msg []byte) []interface{} {
	var req kraken.SubscribeRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ack := func(pair string) map[string]interface{} {
		a := map[string]interface{}{
			"event":        kraken.EventSubscriptionStatus,
			"reqid":        req.ReqID,
			"channelName":  req.Subscription.ChannelName(),
			"subscription": map[string]interface{}{"name": req.Subscription.Name},
		}
		if pair != "" {
			a["pair"] = pair
		}
		if errMsg, ok := f.rejectPairs[pair]; ok {
			a["status"] = "error"
			a["errorMessage"] = errMsg
			return a
		}
		a["status"] = "subscribed"
		if pair != "" {
			f.nextChannel++
			a["channelID"] = f.nextChannel
		}
		return a
	}

	if len(req.Pair) == 0 {
		return []interface{}{ack("")}
	}
	var out []interface{}
	for _, p := range req.Pair {
		out = append(out, ack(p))
	}
	return out
}

func (f *fakeKraken) unsubscribe(msg []byte) []interface{} {
	var req kraken.UnsubscribeRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return nil
	}
	return []interface{}{map[string]interface{}{
		"event":     kraken.EventSubscriptionStatus,
		"reqid":     req.ReqID,
		"channelID": req.ChannelID,
		"status":    "unsubscribed",
	}}
}

// sentRequests returns the requests of the given event received so far.
func (f *fakeKraken) sentRequests(event string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, raw := range f.GetReceivedMessages() {
		var m map[string]interface{}
		if json.Unmarshal(raw, &m) == nil && m["event"] == event {
			out = append(out, m)
		}
	}
	return out
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.PublicURL = url
	cfg.AuthURL = url
	cfg.ResponseTimeout = 2 * time.Second
	cfg.HandshakeTimeout = time.Second
	cfg.ReadTimeout = 0
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	cfg.HandlerWorkers = 2
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Connect(context.Background()))
	return c
}

type tickerSink struct {
	mu      sync.Mutex
	updates []TickerUpdate
}

func (s *tickerSink) add(u TickerUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *tickerSink) all() []TickerUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TickerUpdate(nil), s.updates...)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PublicURL = ""
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.HandlerWorkers = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestClient_SystemStatusOnConnect(t *testing.T) {
	server := newFakeKraken(t)
	c, err := New(testConfig(server.URL))
	require.NoError(t, err)
	defer c.Close()

	statuses := make(chan kraken.SystemStatus, 1)
	c.OnSystemStatus(func(s kraken.SystemStatus) { statuses <- s })
	require.NoError(t, c.Connect(context.Background()))

	select {
	case s := <-statuses:
		assert.Equal(t, "online", s.Status)
		assert.Equal(t, "1.9.0", s.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no system status received")
	}
	assert.Equal(t, "online", c.SystemStatus().Status)
}

func TestClient_TickerUsesClientSpelling(t *testing.T) {
	server := newFakeKraken(t)
	c := newTestClient(t, testConfig(server.URL))

	sink := &tickerSink{}
	sub, err := c.SubscribeTicker(context.Background(), "ETH/BTC", sink.add)
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))
	assert.Equal(t, subscription.StatusConfirmed, sub.Status())

	reqs := server.sentRequests(kraken.EventSubscribe)
	require.Len(t, reqs, 1)
	assert.Equal(t, []interface{}{"ETH/XBT"}, reqs[0]["pair"])

	server.Broadcast([]byte(`[101,{"a":["0.05005",1,"1.000"],"c":["0.05","0.1"]},"ticker","ETH/XBT"]`))

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := sink.all()[0]
	assert.Equal(t, "ETH/BTC", got.Pair)
	assert.Equal(t, 101, got.ChannelID)
	assert.True(t, decimal.RequireFromString("0.05005").Equal(got.Ticker.Ask.Price))
}

func TestClient_MultiPairTickers(t *testing.T) {
	server := newFakeKraken(t)
	c := newTestClient(t, testConfig(server.URL))

	sink := &tickerSink{}
	sub, err := c.SubscribeTickers(context.Background(), []string{"BTC/USD", "ETH/USD"}, sink.add)
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))
	assert.ElementsMatch(t, []int{101, 102}, sub.ChannelIDs())

	server.Broadcast([]byte(`[101,{"a":["5525.4",1,"1.000"]},"ticker","XBT/USD"]`))
	server.Broadcast([]byte(`[102,{"a":["180.1",1,"1.000"]},"ticker","ETH/USD"]`))

	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	pairs := []string{sink.all()[0].Pair, sink.all()[1].Pair}
	assert.ElementsMatch(t, []string{"BTC/USD", "ETH/USD"}, pairs)
}

func TestClient_SubscribeRejected(t *testing.T) {
	server := newFakeKraken(t)
	server.rejectPairs["XBT/EUR"] = "Currency pair not supported"
	c := newTestClient(t, testConfig(server.URL))

	sub, err := c.SubscribeBook(context.Background(), "BTC/EUR", 10, func(BookUpdate) {})
	require.NoError(t, err)

	err = sub.Wait(context.Background())
	se, ok := kerrors.IsServerError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "Currency pair not supported", se.Message)
	assert.Equal(t, subscription.StatusFailed, sub.Status())
	assert.Empty(t, c.Subscriptions())
}

func TestClient_SubscribeValidation(t *testing.T) {
	server := newFakeKraken(t)
	c := newTestClient(t, testConfig(server.URL))

	_, err := c.SubscribeBook(context.Background(), "XBT/USD", 11, func(BookUpdate) {})
	assert.Error(t, err)
	_, err = c.SubscribeOHLC(context.Background(), "XBT/USD", 7, func(OHLCUpdate) {})
	assert.Error(t, err)
	_, err = c.SubscribeTicker(context.Background(), "XBTUSD", func(TickerUpdate) {})
	assert.Error(t, err)

	_, err = c.SubscribeOwnTrades(context.Background(), true, func(OwnTradesUpdate) {})
	assert.ErrorIs(t, err, ErrNoToken)
	_, err = c.PlaceOrder(context.Background(), Order{Pair: "XBT/USD"})
	assert.ErrorIs(t, err, ErrNoToken)

	assert.Empty(t, server.sentRequests(kraken.EventSubscribe))
}

func TestClient_UnsubscribeByChannel(t *testing.T) {
	server := newFakeKraken(t)
	c := newTestClient(t, testConfig(server.URL))

	sub, err := c.SubscribeTrades(context.Background(), "XBT/USD", func(TradeUpdate) {})
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))

	require.NoError(t, c.Unsubscribe(context.Background(), sub))
	assert.Equal(t, subscription.StatusUnsubscribed, sub.Status())
	require.NoError(t, c.Unsubscribe(context.Background(), sub), "second unsubscribe is a no-op")

	reqs := server.sentRequests(kraken.EventUnsubscribe)
	require.Len(t, reqs, 1)
	assert.EqualValues(t, 101, reqs[0]["channelID"])
	assert.Empty(t, c.Subscriptions())
}

func TestClient_PrivateFeedUnsubscribeByToken(t *testing.T) {
	server := newFakeKraken(t)
	cfg := testConfig(server.URL)
	cfg.Token = "WW91ciBhdXRoZW50aWNhdGlvbiB0b2tlbiBnb2VzIGhlcmUu"
	c := newTestClient(t, cfg)

	var mu sync.Mutex
	var got []OwnTradesUpdate
	sub, err := c.SubscribeOwnTrades(context.Background(), false, func(u OwnTradesUpdate) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u)
	})
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))
	assert.Empty(t, sub.ChannelIDs())

	server.Broadcast([]byte(`[[{"TDLH43-DVQXD-2KHVYY":{"ordertxid":"OQCLML-BW3P3-BUCMWZ","pair":"XBT/EUR","price":"100000.00000","vol":"1.00000000"}}],"ownTrades",{"sequence":2948}]`))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	// The frame reaches both sockets of the fake server; only the
	// authenticated one carries the subscription.
	require.Len(t, got, 1)
	assert.Equal(t, 2948, got[0].Sequence)
	require.Len(t, got[0].Trades, 1)
	assert.Equal(t, "TDLH43-DVQXD-2KHVYY", got[0].Trades[0].ID)
	mu.Unlock()

	require.NoError(t, c.Unsubscribe(context.Background(), sub))
	reqs := server.sentRequests(kraken.EventUnsubscribe)
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]interface{}{"name": "ownTrades", "token": cfg.Token}, reqs[0]["subscription"])
	_, hasChannel := reqs[0]["channelID"]
	assert.False(t, hasChannel)
}

func TestClient_ResubscribesAfterReconnect(t *testing.T) {
	server := newFakeKraken(t)
	c := newTestClient(t, testConfig(server.URL))

	sink := &tickerSink{}
	sub, err := c.SubscribeTicker(context.Background(), "XBT/USD", sink.add)
	require.NoError(t, err)
	require.NoError(t, sub.Wait(context.Background()))
	firstReq := sub.RequestID()
	assert.Equal(t, 101, sub.ChannelID())

	server.DropConnections()

	require.Eventually(t, func() bool {
		return len(server.sentRequests(kraken.EventSubscribe)) == 2 && sub.Status() == subscription.StatusConfirmed
	}, 3*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, firstReq, sub.RequestID())
	assert.Equal(t, 102, sub.ChannelID())
	require.Len(t, c.Subscriptions(), 1)
	assert.Equal(t, sub.ID(), c.Subscriptions()[0].ID())

	server.Broadcast([]byte(`[102,{"a":["5525.4",1,"1.000"]},"ticker","XBT/USD"]`))
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "XBT/USD", sink.all()[0].Pair)
}

func TestClient_Ping(t *testing.T) {
	server := newFakeKraken(t)
	c := newTestClient(t, testConfig(server.URL))

	rtt, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestClient_PingTimeout(t *testing.T) {
	server := newFakeKraken(t)
	server.RegisterHandler(kraken.EventPing, func([]byte) []interface{} { return nil })
	cfg := testConfig(server.URL)
	cfg.ResponseTimeout = 50 * time.Millisecond
	c := newTestClient(t, cfg)

	_, err := c.Ping(context.Background())
	assert.ErrorIs(t, err, kerrors.ErrTimeout)
}

func TestClient_PlaceOrderNotifiesObserversInOrder(t *testing.T) {
	server := newFakeKraken(t)
	cfg := testConfig(server.URL)
	cfg.Token = "token"
	c := newTestClient(t, cfg)

	var calls []string
	c.OnOrderPlaced(func(o OrderPlaced) { calls = append(calls, "first:"+o.TxID) })
	c.OnOrderPlaced(func(OrderPlaced) { panic("observer failure") })
	c.OnOrderPlaced(func(o OrderPlaced) { calls = append(calls, "third:"+o.Order.Pair) })

	price := decimal.RequireFromString("34.5")
	status, err := c.PlaceOrder(context.Background(), Order{
		Pair:   "BTC/USD",
		Side:   kraken.SideBuy,
		Type:   kraken.OrderTypeLimit,
		Volume: decimal.NewFromInt(10),
		Price:  &price,
	})
	require.NoError(t, err)
	assert.Equal(t, "OGTT3Y-C6I3P-XRI6HX", status.TxID)
	assert.Equal(t, []string{"first:OGTT3Y-C6I3P-XRI6HX", "third:BTC/USD"}, calls)

	reqs := server.sentRequests(kraken.EventAddOrder)
	require.Len(t, reqs, 1)
	assert.Equal(t, "XBT/USD", reqs[0]["pair"])
	assert.Equal(t, "token", reqs[0]["token"])
}

func TestClient_PlaceOrderServerError(t *testing.T) {
	server := newFakeKraken(t)
	cfg := testConfig(server.URL)
	cfg.Token = "token"
	c := newTestClient(t, cfg)

	notified := false
	c.OnOrderPlaced(func(OrderPlaced) { notified = true })

	_, err := c.PlaceOrder(context.Background(), Order{Pair: "XBT/USD", Side: kraken.SideBuy, Type: kraken.OrderTypeMarket})
	se, ok := kerrors.IsServerError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "EOrder:Invalid volume", se.Message)
	assert.False(t, notified)
}

func TestClient_CancelOrdersNotifiesPerTxID(t *testing.T) {
	server := newFakeKraken(t)
	cfg := testConfig(server.URL)
	cfg.Token = "token"
	c := newTestClient(t, cfg)

	var canceled []string
	remove := c.OnOrderCanceled(func(o OrderCanceled) { canceled = append(canceled, o.TxID) })

	require.NoError(t, c.CancelOrders(context.Background(), "OGTT3Y-C6I3P-XRI6HX", "OGTT3Y-C6I3P-X2I6HX"))
	assert.Equal(t, []string{"OGTT3Y-C6I3P-XRI6HX", "OGTT3Y-C6I3P-X2I6HX"}, canceled)

	remove()
	require.NoError(t, c.CancelOrders(context.Background(), "OGTT3Y-C6I3P-XRI6HX"))
	assert.Len(t, canceled, 2)

	assert.Error(t, c.CancelOrders(context.Background()))
}

func TestClient_CancelAllAfter(t *testing.T) {
	server := newFakeKraken(t)
	cfg := testConfig(server.URL)
	cfg.Token = "token"
	c := newTestClient(t, cfg)

	status, err := c.CancelAllAfter(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "2020-12-21T09:38:09Z", status.TriggerTime)

	reqs := server.sentRequests(kraken.EventCancelAllOrdersAfter)
	require.Len(t, reqs, 1)
	assert.EqualValues(t, 60, reqs[0]["timeout"])
}

func TestClient_CloseFailsLaterCalls(t *testing.T) {
	server := newFakeKraken(t)
	c, err := New(testConfig(server.URL))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Ping(context.Background())
	assert.True(t, errors.Is(err, kerrors.ErrClosed))
	_, err = c.SubscribeTicker(context.Background(), "XBT/USD", func(TickerUpdate) {})
	assert.ErrorIs(t, err, kerrors.ErrConnection)
}
