package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alejoacosta74/kraken-ws/internal/correlator"
	"github.com/alejoacosta74/kraken-ws/internal/dispatcher"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/subscription"
	"github.com/alejoacosta74/kraken-ws/internal/symbols"
	"github.com/alejoacosta74/kraken-ws/internal/ws"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// endpoint is one socket with its own correlator, registry and dispatcher.
type endpoint struct {
	name       string
	conn       *ws.Connection
	correlator *correlator.Correlator
	registry   *subscription.Registry
	dispatcher *dispatcher.Dispatcher
	pool       *dispatcher.HandlerPool

	connectMu sync.Mutex
	connected bool

	statusMu sync.RWMutex
	status   kraken.SystemStatus

	logger *logrus.Entry
}

func newEndpoint(name, url string, cfg Config, normalizer *symbols.Normalizer, bus events.Bus, systemStatus *events.Observers[kraken.SystemStatus]) (*endpoint, error) {
	wsCfg := ws.Config{
		URL:              url,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		SendQueueSize:    cfg.SendQueueSize,
		Reconnect:        cfg.Reconnect,
		BackoffBase:      cfg.BackoffBase,
		BackoffMax:       cfg.BackoffMax,
		BackoffJitter:    cfg.BackoffJitter,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		EventBus:         bus,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		wsCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	pool, err := dispatcher.NewHandlerPool(cfg.HandlerWorkers, cfg.HandlerQueueSize)
	if err != nil {
		return nil, err
	}

	conn := ws.NewConnection(wsCfg)
	corr := correlator.New(conn, bus)
	registry := subscription.NewRegistry(conn, corr, normalizer, cfg.ResponseTimeout)
	d := dispatcher.NewDispatcher(dispatcher.Config{
		Correlator: corr,
		Registry:   registry,
		Pool:       pool,
		EventBus:   bus,
	})

	e := &endpoint{
		name:       name,
		conn:       conn,
		correlator: corr,
		registry:   registry,
		dispatcher: d,
		pool:       pool,
		logger:     logrus.WithFields(logrus.Fields{"component": "endpoint", "endpoint": name}),
	}

	d.RegisterHandler(dispatcher.KindSystemStatus, func(f dispatcher.Frame) {
		var status kraken.SystemStatus
		if err := json.Unmarshal(f.Raw, &status); err != nil {
			e.logger.WithError(err).Warn("Malformed system status")
			return
		}
		e.statusMu.Lock()
		e.status = status
		e.statusMu.Unlock()
		e.logger.WithFields(logrus.Fields{"status": status.Status, "version": status.Version}).Info("System status")
		systemStatus.Notify(status)
	})

	conn.OnFrame(func(raw []byte) { d.Dispatch(raw) })
	conn.OnDisconnect(func(err error) {
		corr.FailAll(err)
		registry.MarkDisconnected(err)
	})
	conn.OnReconnect(func(struct{}) {
		registry.Resubscribe(context.Background())
	})

	return e, nil
}

// connect dials once; later calls are no-ops while connected.
func (e *endpoint) connect(ctx context.Context) error {
	e.connectMu.Lock()
	defer e.connectMu.Unlock()
	if e.connected {
		return nil
	}
	if err := e.conn.Connect(ctx); err != nil {
		return err
	}
	e.connected = true
	return nil
}

func (e *endpoint) systemStatus() kraken.SystemStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *endpoint) close() error {
	err := e.conn.Close()
	e.correlator.FailAll(errClientClosed)
	e.pool.Stop()
	return err
}
