package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alejoacosta74/kraken-ws/client"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/internal/kafka"
	"github.com/alejoacosta74/kraken-ws/internal/metrics"
	"github.com/alejoacosta74/kraken-ws/internal/ui"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Subscribe to a feed and print its updates",
	Long: `Subscribe to a feed and print every update until interrupted.
Updates can also be forwarded to Kafka and the engine exposed as Prometheus
metrics.`,
	Args: cobra.NoArgs,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
	flags := streamCmd.Flags()
	flags.StringSlice("pair", []string{"ETH/USD"}, "pairs to subscribe to")
	flags.String("channel", kraken.ChannelTicker, "ticker, book, trade, spread, ohlc, ownTrades or openOrders")
	flags.Int("depth", 10, "book depth")
	flags.Int("interval", kraken.Interval1m, "ohlc interval in minutes")
	flags.StringSlice("kafka", nil, "kafka brokers to forward updates to")
	flags.String("kafka-topic-prefix", "kraken", "prefix of the kafka topics")
	flags.Int("kafka-pool-size", 2, "kafka producers in the pool")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :2112")
	flags.Duration("stats-interval", 0, "log runtime stats at this interval, 0 disables")

	for key, flag := range map[string]string{
		"stream.pairs":        "pair",
		"stream.channel":      "channel",
		"stream.depth":        "depth",
		"stream.interval":     "interval",
		"kafka.brokers":       "kafka",
		"kafka.topic_prefix":  "kafka-topic-prefix",
		"kafka.pool_size":     "kafka-pool-size",
		"metrics.addr":        "metrics-addr",
		"metrics.stats_every": "stats-interval",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func runStream(cmd *cobra.Command, args []string) error {
	details, err := streamDetails(viper.GetViper())
	if err != nil {
		return err
	}
	pairs := viper.GetStringSlice("stream.pairs")
	if kraken.IsPrivate(details.Name) {
		pairs = nil
	}

	ctx, cancel := shutdownContext()
	defer cancel()

	bus := events.NewEventBus()
	defer bus.Shutdown()

	cfg, err := clientConfig(viper.GetViper(), bus)
	if err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var done []<-chan struct{}

	printer := ui.NewUIUpdater(bus, os.Stdout)
	printer.Start(ctx)
	done = append(done, printer.Done())

	if addr := viper.GetString("metrics.addr"); addr != "" {
		d, err := startMetrics(ctx, bus, addr)
		if err != nil {
			return err
		}
		done = append(done, d...)
	}

	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		pool, sinkDone, err := startKafka(ctx, bus, brokers)
		if err != nil {
			return err
		}
		defer func() {
			if err := pool.Stop(); err != nil {
				logrus.WithError(err).Error("Failed to stop kafka producer pool")
			}
		}()
		done = append(done, sinkDone)
	}

	if every := viper.GetDuration("metrics.stats_every"); every > 0 {
		go metrics.NewSystemCollector().LogEvery(ctx, every)
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	sub, err := c.SubscribeRaw(ctx, details, pairs, func(m client.Message) {
		logrus.WithFields(logrus.Fields{"channel": m.Channel, "pair": m.Pair}).Trace("Update received")
	})
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"channel": details.ChannelName(), "pairs": pairs}).Info("Streaming, press Ctrl+C to stop")

	<-ctx.Done()

	// The connection may already be gone; the registry entry is dropped either way.
	unsubCtx, unsubCancel := context.WithTimeout(context.Background(), cfg.ResponseTimeout)
	defer unsubCancel()
	if err := c.Unsubscribe(unsubCtx, sub); err != nil {
		logrus.WithError(err).Warn("Unsubscribe failed")
	}

	wg := sync.WaitGroup{}
	for _, d := range done {
		wg.Add(1)
		go func(d <-chan struct{}) {
			defer wg.Done()
			select {
			case <-d:
			case <-time.After(5 * time.Second):
			}
		}(d)
	}
	wg.Wait()
	logrus.Info("Client shutdown")
	return nil
}

// shutdownContext is cancelled on SIGINT or SIGTERM.
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// streamDetails builds the subscription details from the stream settings.
func streamDetails(v *viper.Viper) (kraken.SubscriptionDetails, error) {
	details := kraken.SubscriptionDetails{Name: v.GetString("stream.channel")}
	switch details.Name {
	case kraken.ChannelTicker, kraken.ChannelTrade, kraken.ChannelSpread:
	case kraken.ChannelBook:
		details.Depth = v.GetInt("stream.depth")
		if !kraken.IsValidBookDepth(details.Depth) {
			return details, fmt.Errorf("invalid book depth %d, valid depths are %v", details.Depth, kraken.ValidBookDepths)
		}
	case kraken.ChannelOHLC:
		details.Interval = v.GetInt("stream.interval")
		if !kraken.IsValidInterval(details.Interval) {
			return details, fmt.Errorf("invalid ohlc interval %d", details.Interval)
		}
	case kraken.ChannelOwnTrades, kraken.ChannelOpenOrders:
		if v.GetString("client.token") == "" {
			return details, fmt.Errorf("channel %s: %w", details.Name, client.ErrNoToken)
		}
	default:
		return details, fmt.Errorf("unknown channel %q", details.Name)
	}
	return details, nil
}

// startMetrics starts the recorder and the metrics server on a dedicated registry.
func startMetrics(ctx context.Context, bus events.Bus, addr string) ([]<-chan struct{}, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewSystemCollector()); err != nil {
		return nil, fmt.Errorf("register system collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	recorder := metrics.NewMetricsRecorder(bus, reg)
	recorder.Start(ctx)

	server := metrics.NewMetricsServer(addr, reg, reg)
	go func() {
		if err := server.Start(ctx); err != nil {
			logrus.WithError(err).Error("Metrics server failed")
		}
	}()
	return []<-chan struct{}{recorder.Done(), server.Done()}, nil
}

// startKafka starts a producer pool and the sink forwarding stream updates to it.
func startKafka(ctx context.Context, bus events.Bus, brokers []string) (kafka.ProducerPool, <-chan struct{}, error) {
	if err := kafka.CheckClusterAvailability(brokers, 5*time.Second); err != nil {
		return nil, nil, fmt.Errorf("kafka cluster not available: %w", err)
	}
	pool, err := kafka.NewProducerPool(kafka.ProducerConfig{
		BrokerList: brokers,
		PoolSize:   viper.GetInt("kafka.pool_size"),
		ClientID:   "kraken-ws",
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Start(); err != nil {
		return nil, nil, fmt.Errorf("start kafka producer pool: %w", err)
	}

	sink := kafka.NewStreamSink(bus, pool, viper.GetString("kafka.topic_prefix"))
	sink.Start(ctx)
	return pool, sink.Done(), nil
}
