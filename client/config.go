package client

import (
	"fmt"
	"maps"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/symbols"
)

// Default endpoints of the Kraken WebSocket v1 API
const (
	PublicURL = "wss://ws.kraken.com"
	AuthURL   = "wss://ws-auth.kraken.com"
)

// Config holds every client setting. Start from DefaultConfig and override
// what you need; the zero value is not usable.
type Config struct {
	PublicURL string
	AuthURL   string
	// Token is the WebSocket token required by private feeds and trading
	// queries. It is obtained through the REST GetWebSocketsToken call.
	Token string

	ResponseTimeout  time.Duration // Query and subscription acknowledgement timeout
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration // Silence after which the connection is considered dead
	SendQueueSize    int

	HandlerWorkers   int // Goroutines running subscription handlers
	HandlerQueueSize int // Per worker queue; updates beyond it are dropped

	Reconnect        bool
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BackoffJitter    float64
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// RateLimit caps outbound messages per second per connection. 0 disables it.
	RateLimit float64
	RateBurst int

	// Synonyms maps client asset spellings to server ones.
	Synonyms map[string]string

	// EventBus receives connection, frame and query events. When nil the
	// client creates its own, available through Client.Events.
	EventBus events.Bus
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		PublicURL:        PublicURL,
		AuthURL:          AuthURL,
		ResponseTimeout:  10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
		SendQueueSize:    100,
		HandlerWorkers:   4,
		HandlerQueueSize: 256,
		Reconnect:        true,
		BackoffBase:      time.Second,
		BackoffMax:       30 * time.Second,
		BackoffJitter:    0.2,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		RateBurst:        1,
		Synonyms:         maps.Clone(symbols.DefaultSynonyms),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.PublicURL == "":
		return fmt.Errorf("public url is required")
	case c.ResponseTimeout <= 0:
		return fmt.Errorf("response timeout must be positive")
	case c.HandlerWorkers <= 0:
		return fmt.Errorf("handler workers must be greater than 0")
	case c.HandlerQueueSize <= 0:
		return fmt.Errorf("handler queue size must be greater than 0")
	case c.Reconnect && c.BackoffBase <= 0:
		return fmt.Errorf("backoff base must be positive when reconnecting")
	case c.BackoffJitter < 0 || c.BackoffJitter >= 1:
		return fmt.Errorf("backoff jitter must be in [0, 1)")
	case c.RateLimit < 0:
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}
