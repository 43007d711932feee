package cmd

import (
	"strings"

	"github.com/alejoacosta74/kraken-ws/client"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/spf13/viper"
)

// clientConfig builds the client settings from v on top of the defaults.
// Keys left unset keep their default value.
func clientConfig(v *viper.Viper, bus events.Bus) (client.Config, error) {
	cfg := client.DefaultConfig()
	cfg.EventBus = bus

	if s := v.GetString("client.public_url"); s != "" {
		cfg.PublicURL = s
	}
	if s := v.GetString("client.auth_url"); s != "" {
		cfg.AuthURL = s
	}
	cfg.Token = v.GetString("client.token")
	if d := v.GetDuration("client.response_timeout"); d > 0 {
		cfg.ResponseTimeout = d
	}
	if d := v.GetDuration("client.read_timeout"); d > 0 {
		cfg.ReadTimeout = d
	}
	if n := v.GetInt("client.handler_workers"); n > 0 {
		cfg.HandlerWorkers = n
	}
	if n := v.GetInt("client.handler_queue_size"); n > 0 {
		cfg.HandlerQueueSize = n
	}
	if v.IsSet("client.reconnect") {
		cfg.Reconnect = v.GetBool("client.reconnect")
	}
	if d := v.GetDuration("client.backoff_max"); d > 0 {
		cfg.BackoffMax = d
	}
	cfg.RateLimit = v.GetFloat64("client.rate_limit")
	if n := v.GetInt("client.rate_burst"); n > 0 {
		cfg.RateBurst = n
	}
	if syn := v.GetStringMapString("client.synonyms"); len(syn) > 0 {
		merged := make(map[string]string, len(cfg.Synonyms)+len(syn))
		for k, val := range cfg.Synonyms {
			merged[k] = val
		}
		for k, val := range syn {
			merged[strings.ToUpper(k)] = strings.ToUpper(val)
		}
		cfg.Synonyms = merged
	}

	return cfg, cfg.Validate()
}
