package cmd

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/alejoacosta74/kraken-ws/client"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_EnvAndFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "kraken.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
client:
  public_url: wss://file.example
  response_timeout: 3s
  handler_workers: 8
  synonyms:
    xrp: xxrp
stream:
  channel: book
  depth: 25
`), 0o600))

	t.Setenv("KRAKENWS_CLIENT_PUBLIC_URL", "wss://env.example")

	v := viper.New()
	require.NoError(t, initConfig(v, file))

	cfg, err := clientConfig(v, nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://env.example", cfg.PublicURL, "environment wins over the file")
	assert.Equal(t, client.AuthURL, cfg.AuthURL)
	assert.Equal(t, 3*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, 8, cfg.HandlerWorkers)
	assert.Equal(t, "XXRP", cfg.Synonyms["XRP"])
	assert.Equal(t, "XBT", cfg.Synonyms["BTC"], "defaults are kept")

	details, err := streamDetails(v)
	require.NoError(t, err)
	assert.Equal(t, "book-25", details.ChannelName())
}

func TestInitConfig_MissingFile(t *testing.T) {
	err := initConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClientConfig_Defaults(t *testing.T) {
	cfg, err := clientConfig(viper.New(), nil)
	require.NoError(t, err)

	want := client.DefaultConfig()
	assert.Equal(t, want.PublicURL, cfg.PublicURL)
	assert.Equal(t, want.ResponseTimeout, cfg.ResponseTimeout)
	assert.Equal(t, want.Reconnect, cfg.Reconnect)
	assert.Empty(t, cfg.Token)
}

func TestClientConfig_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("client.rate_limit", -1)
	_, err := clientConfig(v, nil)
	assert.Error(t, err)
}

func TestStreamDetails(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		channel  string
		wantErr  bool
	}{
		{"ticker", map[string]interface{}{"stream.channel": "ticker"}, "ticker", false},
		{"book", map[string]interface{}{"stream.channel": "book", "stream.depth": 100}, "book-100", false},
		{"invalid depth", map[string]interface{}{"stream.channel": "book", "stream.depth": 7}, "", true},
		{"ohlc", map[string]interface{}{"stream.channel": "ohlc", "stream.interval": 5}, "ohlc-5", false},
		{"invalid interval", map[string]interface{}{"stream.channel": "ohlc", "stream.interval": 2}, "", true},
		{"private without token", map[string]interface{}{"stream.channel": "ownTrades"}, "", true},
		{"private", map[string]interface{}{"stream.channel": "openOrders", "client.token": "tok"}, "openOrders", false},
		{"unknown", map[string]interface{}{"stream.channel": "candles"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.settings {
				v.Set(k, val)
			}
			details, err := streamDetails(v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.channel, details.ChannelName())
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["stream"])
	assert.True(t, names["ping"])
	assert.Equal(t, kraken.ChannelTicker, streamCmd.Flags().Lookup("channel").DefValue)
}

func TestShutdownContext_CancelledBySignal(t *testing.T) {
	ctx, cancel := shutdownContext()
	defer cancel()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}
