package client

import (
	"context"
	"fmt"

	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/sirupsen/logrus"
)

// Message is the raw stream update handed to SubscribeRaw handlers.
type Message = subscription.Message

// TickerUpdate is delivered to SubscribeTicker handlers.
type TickerUpdate struct {
	Pair      string // As passed to SubscribeTicker
	ChannelID int
	Ticker    kraken.Ticker
}

// OHLCUpdate is delivered to SubscribeOHLC handlers.
type OHLCUpdate struct {
	Pair      string
	ChannelID int
	Interval  int
	Candle    kraken.OHLC
}

// TradeUpdate is delivered to SubscribeTrades handlers.
type TradeUpdate struct {
	Pair      string
	ChannelID int
	Trades    []kraken.Trade
}

// SpreadUpdate is delivered to SubscribeSpread handlers.
type SpreadUpdate struct {
	Pair      string
	ChannelID int
	Spread    kraken.Spread
}

// BookUpdate is delivered to SubscribeBook handlers. The first update after
// (re)subscribing is a snapshot.
type BookUpdate struct {
	Pair      string
	ChannelID int
	Depth     int
	Book      kraken.Book
}

// OwnTradesUpdate is delivered to SubscribeOwnTrades handlers.
type OwnTradesUpdate struct {
	Sequence int
	Trades   []kraken.OwnTrade
}

// OpenOrdersUpdate is delivered to SubscribeOpenOrders handlers.
type OpenOrdersUpdate struct {
	Sequence int
	Orders   []kraken.OpenOrder
}

// SubscribeRaw subscribes with arbitrary details and delivers undecoded
// updates. Private topics go to the authenticated endpoint.
func (c *Client) SubscribeRaw(ctx context.Context, details kraken.SubscriptionDetails, pairs []string, handler func(Message)) (*Subscription, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	e := c.public
	if kraken.IsPrivate(details.Name) {
		var err error
		if e, err = c.privateEndpoint(); err != nil {
			return nil, err
		}
		details.Token = c.cfg.Token
	}
	if err := e.connect(ctx); err != nil {
		return nil, err
	}

	sub, err := e.registry.Subscribe(ctx, subscription.Request{Details: details, Pairs: pairs}, subscription.Handler(handler))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", details.Name, err)
	}
	return sub, nil
}

// SubscribeTicker subscribes to the ticker of one pair.
func (c *Client) SubscribeTicker(ctx context.Context, pair string, handler func(TickerUpdate)) (*Subscription, error) {
	return c.SubscribeTickers(ctx, []string{pair}, handler)
}

// SubscribeTickers subscribes to the tickers of several pairs with one
// request. The handler is called per pair.
func (c *Client) SubscribeTickers(ctx context.Context, pairs []string, handler func(TickerUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelTicker}
	return c.SubscribeRaw(ctx, details, pairs, c.publicHandler(details, func(m Message, u kraken.Update) error {
		t, err := kraken.DecodeTicker(u)
		if err != nil {
			return err
		}
		handler(TickerUpdate{Pair: m.Pair, ChannelID: u.ChannelID, Ticker: t})
		return nil
	}))
}

// SubscribeOHLC subscribes to candles of the given interval in minutes.
func (c *Client) SubscribeOHLC(ctx context.Context, pair string, interval int, handler func(OHLCUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelOHLC, Interval: interval}
	return c.SubscribeRaw(ctx, details, []string{pair}, c.publicHandler(details, func(m Message, u kraken.Update) error {
		candle, err := kraken.DecodeOHLC(u)
		if err != nil {
			return err
		}
		handler(OHLCUpdate{Pair: m.Pair, ChannelID: u.ChannelID, Interval: interval, Candle: candle})
		return nil
	}))
}

// SubscribeTrades subscribes to the trade feed of one pair.
func (c *Client) SubscribeTrades(ctx context.Context, pair string, handler func(TradeUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelTrade}
	return c.SubscribeRaw(ctx, details, []string{pair}, c.publicHandler(details, func(m Message, u kraken.Update) error {
		trades, err := kraken.DecodeTrades(u)
		if err != nil {
			return err
		}
		handler(TradeUpdate{Pair: m.Pair, ChannelID: u.ChannelID, Trades: trades})
		return nil
	}))
}

// SubscribeSpread subscribes to the best bid/ask feed of one pair.
func (c *Client) SubscribeSpread(ctx context.Context, pair string, handler func(SpreadUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelSpread}
	return c.SubscribeRaw(ctx, details, []string{pair}, c.publicHandler(details, func(m Message, u kraken.Update) error {
		spread, err := kraken.DecodeSpread(u)
		if err != nil {
			return err
		}
		handler(SpreadUpdate{Pair: m.Pair, ChannelID: u.ChannelID, Spread: spread})
		return nil
	}))
}

// SubscribeBook subscribes to the order book of one pair. depth is one of
// kraken.ValidBookDepths.
func (c *Client) SubscribeBook(ctx context.Context, pair string, depth int, handler func(BookUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelBook, Depth: depth}
	return c.SubscribeRaw(ctx, details, []string{pair}, c.publicHandler(details, func(m Message, u kraken.Update) error {
		book, err := kraken.DecodeBook(u)
		if err != nil {
			return err
		}
		handler(BookUpdate{Pair: m.Pair, ChannelID: u.ChannelID, Depth: depth, Book: book})
		return nil
	}))
}

// SubscribeOwnTrades subscribes to the account's trades. With snapshot the
// server first sends the last 50 trades.
func (c *Client) SubscribeOwnTrades(ctx context.Context, snapshot bool, handler func(OwnTradesUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelOwnTrades, Snapshot: &snapshot}
	return c.SubscribeRaw(ctx, details, nil, c.privateHandler(details, func(p kraken.PrivateUpdate) error {
		trades, err := kraken.DecodeOwnTrades(p)
		if err != nil {
			return err
		}
		handler(OwnTradesUpdate{Sequence: p.Sequence, Trades: trades})
		return nil
	}))
}

// SubscribeOpenOrders subscribes to the account's open orders.
func (c *Client) SubscribeOpenOrders(ctx context.Context, handler func(OpenOrdersUpdate)) (*Subscription, error) {
	details := kraken.SubscriptionDetails{Name: kraken.ChannelOpenOrders}
	return c.SubscribeRaw(ctx, details, nil, c.privateHandler(details, func(p kraken.PrivateUpdate) error {
		orders, err := kraken.DecodeOpenOrders(p)
		if err != nil {
			return err
		}
		handler(OpenOrdersUpdate{Sequence: p.Sequence, Orders: orders})
		return nil
	}))
}

func (c *Client) publicHandler(details kraken.SubscriptionDetails, decode func(Message, kraken.Update) error) func(Message) {
	return func(m Message) {
		u, err := kraken.ParseUpdate(m.Raw)
		if err == nil {
			err = decode(m, u)
		}
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"channel": details.ChannelName(),
				"pair":    m.Pair,
			}).WithError(err).Warn("Dropping undecodable update")
		}
	}
}

func (c *Client) privateHandler(details kraken.SubscriptionDetails, decode func(kraken.PrivateUpdate) error) func(Message) {
	return func(m Message) {
		p, err := kraken.ParsePrivateUpdate(m.Raw)
		if err == nil {
			err = decode(p)
		}
		if err != nil {
			c.logger.WithField("topic", details.Name).WithError(err).Warn("Dropping undecodable update")
		}
	}
}
