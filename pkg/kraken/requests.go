package kraken

import (
	"github.com/shopspring/decimal"
)

// Event names used in outbound control messages
const (
	EventSubscribe            = "subscribe"
	EventUnsubscribe          = "unsubscribe"
	EventPing                 = "ping"
	EventAddOrder             = "addOrder"
	EventCancelOrder          = "cancelOrder"
	EventCancelAll            = "cancelAll"
	EventCancelAllOrdersAfter = "cancelAllOrdersAfter"
)

// Request is implemented by every outbound message that carries a request id.
type Request interface {
	RequestID() int
}

// SubscribeRequest represents a v1 subscription request.
//
//	{"event":"subscribe","reqid":1,"pair":["XBT/USD"],"subscription":{"name":"ticker"}}
type SubscribeRequest struct {
	Event        string              `json:"event"` // Always "subscribe"
	ReqID        int                 `json:"reqid"`
	Pair         []string            `json:"pair,omitempty"` // Server spelled pairs, empty for private feeds
	Subscription SubscriptionDetails `json:"subscription"`
}

// SubscriptionDetails holds the per topic subscription parameters.
type SubscriptionDetails struct {
	Name     string `json:"name"`               // ticker, ohlc, trade, spread, book, ownTrades, openOrders
	Depth    int    `json:"depth,omitempty"`    // book only: 10, 25, 100, 500, 1000
	Interval int    `json:"interval,omitempty"` // ohlc only: interval in minutes
	Token    string `json:"token,omitempty"`    // private feeds only
	Snapshot *bool  `json:"snapshot,omitempty"` // ownTrades only
}

// ChannelName returns the channel name the server uses in stream updates
// for this subscription, e.g. "book-10" or "ohlc-5".
func (d SubscriptionDetails) ChannelName() string {
	switch {
	case d.Name == ChannelBook && d.Depth > 0:
		return ChannelBook + "-" + itoa(d.Depth)
	case d.Name == ChannelOHLC && d.Interval > 0:
		return ChannelOHLC + "-" + itoa(d.Interval)
	default:
		return d.Name
	}
}

func (r SubscribeRequest) RequestID() int { return r.ReqID }

// NewSubscribeRequest builds a subscribe request for the given pairs.
func NewSubscribeRequest(reqID int, details SubscriptionDetails, pairs ...string) SubscribeRequest {
	return SubscribeRequest{
		Event:        EventSubscribe,
		ReqID:        reqID,
		Pair:         pairs,
		Subscription: details,
	}
}

// UnsubscribeRequest represents a v1 unsubscribe request. Either ChannelID or
// Subscription is set.
type UnsubscribeRequest struct {
	Event        string                   `json:"event"` // Always "unsubscribe"
	ReqID        int                      `json:"reqid"`
	ChannelID    int                      `json:"channelID,omitempty"`
	Subscription *UnsubscribeSubscription `json:"subscription,omitempty"`
}

// UnsubscribeSubscription identifies a private feed by name and token.
type UnsubscribeSubscription struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (r UnsubscribeRequest) RequestID() int { return r.ReqID }

// NewUnsubscribeByChannel builds an unsubscribe request addressing a channel id.
func NewUnsubscribeByChannel(reqID, channelID int) UnsubscribeRequest {
	return UnsubscribeRequest{Event: EventUnsubscribe, ReqID: reqID, ChannelID: channelID}
}

// NewUnsubscribeByToken builds an unsubscribe request for a private feed.
func NewUnsubscribeByToken(reqID int, name, token string) UnsubscribeRequest {
	return UnsubscribeRequest{
		Event:        EventUnsubscribe,
		ReqID:        reqID,
		Subscription: &UnsubscribeSubscription{Name: name, Token: token},
	}
}

// PingRequest is answered by the server with a Pong carrying the same reqid.
type PingRequest struct {
	Event string `json:"event"` // Always "ping"
	ReqID int    `json:"reqid"`
}

func (r PingRequest) RequestID() int { return r.ReqID }

// AddOrderRequest places an order through the authenticated endpoint.
type AddOrderRequest struct {
	Event               string           `json:"event"` // Always "addOrder"
	Token               string           `json:"token"`
	ReqID               int              `json:"reqid"`
	Pair                string           `json:"pair"`
	Type                OrderSide        `json:"type"`
	OrderType           OrderType        `json:"ordertype"`
	Volume              decimal.Decimal  `json:"volume"`
	Price               *decimal.Decimal `json:"price,omitempty"`
	Price2              *decimal.Decimal `json:"price2,omitempty"`
	Leverage            *decimal.Decimal `json:"leverage,omitempty"`
	UserRef             string           `json:"userref,omitempty"`
	StartTime           string           `json:"starttm,omitempty"`
	ExpireTime          string           `json:"expiretm,omitempty"`
	Validate            string           `json:"validate,omitempty"`
	CloseOrderType      OrderType        `json:"close[ordertype],omitempty"`
	ClosePrice          *decimal.Decimal `json:"close[price],omitempty"`
	SecondaryClosePrice *decimal.Decimal `json:"close[price2],omitempty"`
}

func (r AddOrderRequest) RequestID() int { return r.ReqID }

// CancelOrderRequest cancels one or more orders by transaction id.
type CancelOrderRequest struct {
	Event string   `json:"event"` // Always "cancelOrder"
	Token string   `json:"token"`
	ReqID int      `json:"reqid"`
	TxID  []string `json:"txid"`
}

func (r CancelOrderRequest) RequestID() int { return r.ReqID }

// CancelAllRequest cancels every open order of the account.
type CancelAllRequest struct {
	Event string `json:"event"` // Always "cancelAll"
	Token string `json:"token"`
	ReqID int    `json:"reqid"`
}

func (r CancelAllRequest) RequestID() int { return r.ReqID }

// CancelAllAfterRequest arms (or disarms with Timeout 0) the dead man's switch.
type CancelAllAfterRequest struct {
	Event   string `json:"event"` // Always "cancelAllOrdersAfter"
	Token   string `json:"token"`
	ReqID   int    `json:"reqid"`
	Timeout int    `json:"timeout"` // seconds
}

func (r CancelAllAfterRequest) RequestID() int { return r.ReqID }
