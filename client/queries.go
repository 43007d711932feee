package client

import (
	"context"
	"fmt"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/correlator"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Order describes an addOrder request. Pair uses the client spelling.
type Order struct {
	Pair     string
	Side     kraken.OrderSide
	Type     kraken.OrderType
	Volume   decimal.Decimal
	Price    *decimal.Decimal
	Price2   *decimal.Decimal
	Leverage *decimal.Decimal
	UserRef  string
	Validate bool // validate only, do not submit
}

// OrderPlaced is passed to OnOrderPlaced observers.
type OrderPlaced struct {
	Order       Order
	TxID        string
	Description string
}

// OrderCanceled is passed to OnOrderCanceled observers, once per txid.
type OrderCanceled struct {
	TxID string
}

// OnOrderPlaced registers an observer called after every successful PlaceOrder.
func (c *Client) OnOrderPlaced(fn func(OrderPlaced)) (remove func()) {
	return c.orderPlaced.Add(fn)
}

// OnOrderCanceled registers an observer called for every txid canceled by CancelOrders.
func (c *Client) OnOrderCanceled(fn func(OrderCanceled)) (remove func()) {
	return c.orderCanceled.Add(fn)
}

// Ping sends a ping on the public endpoint and returns the round trip.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if err := c.public.connect(ctx); err != nil {
		return 0, err
	}

	req := kraken.PingRequest{Event: kraken.EventPing, ReqID: correlator.NextRequestID()}
	var pong kraken.Pong
	start := time.Now()
	if err := c.public.correlator.Query(ctx, req, c.cfg.ResponseTimeout, &pong); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return time.Since(start), nil
}

// PlaceOrder submits an order on the authenticated endpoint.
func (c *Client) PlaceOrder(ctx context.Context, order Order) (kraken.AddOrderStatus, error) {
	e, err := c.tradingEndpoint(ctx)
	if err != nil {
		return kraken.AddOrderStatus{}, err
	}

	req := kraken.AddOrderRequest{
		Event:     kraken.EventAddOrder,
		Token:     c.cfg.Token,
		ReqID:     correlator.NextRequestID(),
		Pair:      c.normalizer.ToServer(order.Pair),
		Type:      order.Side,
		OrderType: order.Type,
		Volume:    order.Volume,
		Price:     order.Price,
		Price2:    order.Price2,
		Leverage:  order.Leverage,
		UserRef:   order.UserRef,
	}
	if order.Validate {
		req.Validate = "true"
	}

	var status kraken.AddOrderStatus
	if err := e.correlator.Query(ctx, req, c.cfg.ResponseTimeout, &status); err != nil {
		return kraken.AddOrderStatus{}, fmt.Errorf("add order: %w", err)
	}
	c.logger.WithFields(logrus.Fields{"txid": status.TxID, "descr": status.Description}).Info("Order placed")
	c.orderPlaced.Notify(OrderPlaced{Order: order, TxID: status.TxID, Description: status.Description})
	return status, nil
}

// CancelOrders cancels the given orders with one request.
func (c *Client) CancelOrders(ctx context.Context, txids ...string) error {
	if len(txids) == 0 {
		return fmt.Errorf("cancel order: at least one txid is required")
	}
	e, err := c.tradingEndpoint(ctx)
	if err != nil {
		return err
	}

	req := kraken.CancelOrderRequest{
		Event: kraken.EventCancelOrder,
		Token: c.cfg.Token,
		ReqID: correlator.NextRequestID(),
		TxID:  txids,
	}
	var status kraken.CancelOrderStatus
	if err := e.correlator.Query(ctx, req, c.cfg.ResponseTimeout, &status); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	for _, txid := range txids {
		c.orderCanceled.Notify(OrderCanceled{TxID: txid})
	}
	return nil
}

// CancelAll cancels every open order and returns how many were canceled.
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	e, err := c.tradingEndpoint(ctx)
	if err != nil {
		return 0, err
	}

	req := kraken.CancelAllRequest{
		Event: kraken.EventCancelAll,
		Token: c.cfg.Token,
		ReqID: correlator.NextRequestID(),
	}
	var status kraken.CancelAllStatus
	if err := e.correlator.Query(ctx, req, c.cfg.ResponseTimeout, &status); err != nil {
		return 0, fmt.Errorf("cancel all: %w", err)
	}
	return status.Count, nil
}

// CancelAllAfter arms the dead man's switch: every open order is canceled
// unless the call is repeated within timeout. A zero timeout disarms it.
func (c *Client) CancelAllAfter(ctx context.Context, timeout time.Duration) (kraken.CancelAllAfterStatus, error) {
	if timeout < 0 {
		return kraken.CancelAllAfterStatus{}, fmt.Errorf("cancel all after: negative timeout %s", timeout)
	}
	e, err := c.tradingEndpoint(ctx)
	if err != nil {
		return kraken.CancelAllAfterStatus{}, err
	}

	req := kraken.CancelAllAfterRequest{
		Event:   kraken.EventCancelAllOrdersAfter,
		Token:   c.cfg.Token,
		ReqID:   correlator.NextRequestID(),
		Timeout: int(timeout / time.Second),
	}
	var status kraken.CancelAllAfterStatus
	if err := e.correlator.Query(ctx, req, c.cfg.ResponseTimeout, &status); err != nil {
		return kraken.CancelAllAfterStatus{}, fmt.Errorf("cancel all after: %w", err)
	}
	return status, nil
}

func (c *Client) tradingEndpoint(ctx context.Context) (*endpoint, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	e, err := c.privateEndpoint()
	if err != nil {
		return nil, err
	}
	if err := e.connect(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
