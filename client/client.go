// Package client is the public entry point: typed subscriptions and trading
// queries over the Kraken WebSocket v1 API, multiplexed over one public and
// one authenticated connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/kerrors"
	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	"github.com/alejoacosta74/kraken-ws/internal/symbols"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNoToken is returned by private feeds and trading queries when the
// client was configured without a WebSocket token.
var ErrNoToken = errors.New("websocket token required")

var errClientClosed = kerrors.ErrClosed

// Subscription is the handle returned by every Subscribe method.
type Subscription = subscription.Subscription

// Client multiplexes subscriptions and queries over the public and the
// authenticated endpoint. It is safe for concurrent use.
type Client struct {
	cfg        Config
	normalizer *symbols.Normalizer

	public  *endpoint
	private *endpoint // nil without a token

	bus    events.Bus
	ownBus *events.EventBus

	systemStatus  *events.Observers[kraken.SystemStatus]
	orderPlaced   *events.Observers[OrderPlaced]
	orderCanceled *events.Observers[OrderCanceled]

	closeOnce sync.Once
	closed    chan struct{}

	logger *logrus.Entry
}

// New validates cfg and builds a client. Nothing is dialed until Connect.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:           cfg,
		normalizer:    symbols.NewNormalizer(cfg.Synonyms),
		bus:           cfg.EventBus,
		systemStatus:  events.NewObservers[kraken.SystemStatus]("system_status"),
		orderPlaced:   events.NewObservers[OrderPlaced]("order_placed"),
		orderCanceled: events.NewObservers[OrderCanceled]("order_canceled"),
		closed:        make(chan struct{}),
		logger:        logrus.WithField("component", "client"),
	}
	if c.bus == nil {
		c.ownBus = events.NewEventBus()
		c.bus = c.ownBus
	}

	var err error
	c.public, err = newEndpoint("public", cfg.PublicURL, cfg, c.normalizer, c.bus, c.systemStatus)
	if err != nil {
		return nil, err
	}
	if cfg.Token != "" {
		if cfg.AuthURL == "" {
			return nil, fmt.Errorf("invalid config: auth url is required with a token")
		}
		c.private, err = newEndpoint("private", cfg.AuthURL, cfg, c.normalizer, c.bus, c.systemStatus)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Connect dials the public endpoint, and the authenticated one when a token
// is configured.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.public.connect(ctx); err != nil {
		return fmt.Errorf("connect public endpoint: %w", err)
	}
	if c.private != nil {
		if err := c.private.connect(ctx); err != nil {
			return fmt.Errorf("connect private endpoint: %w", err)
		}
	}
	return nil
}

// Close closes both endpoints, fails outstanding queries and stops the
// handler workers. It is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.public.close()
		if c.private != nil {
			if perr := c.private.close(); err == nil {
				err = perr
			}
		}
		if c.ownBus != nil {
			c.ownBus.Shutdown()
		}
		c.logger.Info("Client closed")
	})
	return err
}

// Events returns the bus the client publishes its events on.
func (c *Client) Events() events.Bus {
	return c.bus
}

// SystemStatus returns the last system status received on the public endpoint.
func (c *Client) SystemStatus() kraken.SystemStatus {
	return c.public.systemStatus()
}

// OnSystemStatus registers an observer for systemStatus events of either endpoint.
func (c *Client) OnSystemStatus(fn func(kraken.SystemStatus)) (remove func()) {
	return c.systemStatus.Add(fn)
}

// Unsubscribe ends sub. Unsubscribing twice is a no-op.
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	e := c.endpointOf(sub.ID())
	if e == nil {
		// Already removed from its registry: failed or unsubscribed.
		return nil
	}
	return e.registry.Unsubscribe(ctx, sub)
}

// Subscriptions returns the live subscriptions of both endpoints.
func (c *Client) Subscriptions() []*Subscription {
	subs := c.public.registry.All()
	if c.private != nil {
		subs = append(subs, c.private.registry.All()...)
	}
	return subs
}

func (c *Client) endpointOf(id uuid.UUID) *endpoint {
	if _, ok := c.public.registry.Get(id); ok {
		return c.public
	}
	if c.private != nil {
		if _, ok := c.private.registry.Get(id); ok {
			return c.private
		}
	}
	return nil
}

func (c *Client) privateEndpoint() (*endpoint, error) {
	if c.private == nil {
		return nil, ErrNoToken
	}
	return c.private, nil
}

func (c *Client) checkOpen() error {
	select {
	case <-c.closed:
		return &kerrors.ConnectionError{Err: kerrors.ErrClosed}
	default:
		return nil
	}
}
