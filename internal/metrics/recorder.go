// Package metrics exposes the engine's behaviour as Prometheus metrics. The
// Recorder listens on the event bus; the MetricsServer serves /metrics.
package metrics

import (
	"context"

	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const namespace = "krakenws"

// recordedTopics are the bus topics the recorder listens on
var recordedTopics = []common.MessageType{
	common.TypeHeartbeat,
	common.TypeSystemStatus,
	common.TypeQueryResponse,
	common.TypeSubscriptionStatus,
	common.TypeStreamUpdate,
	common.TypeUnroutable,
	common.TypeQueryCompleted,
	common.TypeConnectionState,
	common.TypeUpdateDropped,
}

// MetricsRecorder turns bus events into Prometheus metrics
type MetricsRecorder struct {
	frameMetrics struct {
		received   *prometheus.CounterVec // by kind
		unroutable *prometheus.CounterVec // by reason
	}
	streamMetrics struct {
		updates      *prometheus.CounterVec // by channel and pair
		dropped      *prometheus.CounterVec // by channel and pair
		payloadBytes prometheus.Histogram
	}
	queryMetrics struct {
		latency *prometheus.HistogramVec // by event
		errors  *prometheus.CounterVec   // by event
	}
	connectionMetrics struct {
		transitions *prometheus.CounterVec // by url and state
		connected   *prometheus.GaugeVec   // by url
	}

	eventBus events.Bus
	logger   *logrus.Entry
	done     chan struct{}
}

// NewMetricsRecorder registers the recorder's metrics with reg.
func NewMetricsRecorder(eventBus events.Bus, reg prometheus.Registerer) *MetricsRecorder {
	r := &MetricsRecorder{
		eventBus: eventBus,
		logger:   logrus.WithField("component", "metrics_recorder"),
		done:     make(chan struct{}),
	}
	factory := promauto.With(reg)

	r.frameMetrics.received = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_total",
		Help:      "Frames received from the server by kind",
	}, []string{"kind"})
	r.frameMetrics.unroutable = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unroutable_frames_total",
		Help:      "Frames dropped because no component claimed them",
	}, []string{"reason"})

	r.streamMetrics.updates = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_updates_total",
		Help:      "Stream updates delivered to subscriptions",
	}, []string{"channel", "pair"})
	r.streamMetrics.dropped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_updates_dropped_total",
		Help:      "Stream updates dropped on a full handler queue",
	}, []string{"channel", "pair"})
	r.streamMetrics.payloadBytes = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stream_update_size_bytes",
		Help:      "Size of stream update frames in bytes",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 12), // 64B to 128KB
	})

	r.queryMetrics.latency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "Round trip of correlated queries",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"event"})
	r.queryMetrics.errors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_errors_total",
		Help:      "Correlated queries that failed",
	}, []string{"event"})

	r.connectionMetrics.transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connection_state_changes_total",
		Help:      "Connection state transitions",
	}, []string{"url", "state"})
	r.connectionMetrics.connected = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected",
		Help:      "1 while the connection is established",
	}, []string{"url"})

	return r
}

// Start subscribes to the bus and records until ctx is done.
func (r *MetricsRecorder) Start(ctx context.Context) {
	chans := make(map[common.MessageType]<-chan interface{}, len(recordedTopics))
	for _, topic := range recordedTopics {
		chans[topic] = r.eventBus.Subscribe(topic)
	}
	r.logger.Debug("Subscribed to bus topics")
	go r.recordMetrics(ctx, chans)
}

// Done is closed once the recorder stopped.
func (r *MetricsRecorder) Done() <-chan struct{} {
	return r.done
}

func (r *MetricsRecorder) recordMetrics(ctx context.Context, chans map[common.MessageType]<-chan interface{}) {
	defer close(r.done)
	defer func() {
		for topic, ch := range chans {
			r.eventBus.Unsubscribe(topic, ch)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Context cancelled, stopping metrics recorder")
			return
		case ev, ok := <-chans[common.TypeHeartbeat]:
			if !r.frame(ev, ok) {
				return
			}
		case ev, ok := <-chans[common.TypeSystemStatus]:
			if !r.frame(ev, ok) {
				return
			}
		case ev, ok := <-chans[common.TypeQueryResponse]:
			if !r.frame(ev, ok) {
				return
			}
		case ev, ok := <-chans[common.TypeSubscriptionStatus]:
			if !r.frame(ev, ok) {
				return
			}
		case ev, ok := <-chans[common.TypeUnroutable]:
			if !ok {
				return
			}
			if f, isFrame := ev.(common.FrameEvent); isFrame {
				r.frameMetrics.received.WithLabelValues(f.Kind).Inc()
				r.frameMetrics.unroutable.WithLabelValues(f.Reason).Inc()
			}
		case ev, ok := <-chans[common.TypeStreamUpdate]:
			if !ok {
				return
			}
			if s, isStream := ev.(common.StreamEvent); isStream {
				r.recordUpdate(s)
			}
		case ev, ok := <-chans[common.TypeUpdateDropped]:
			if !ok {
				return
			}
			if d, isDrop := ev.(common.DropEvent); isDrop {
				r.frameMetrics.received.WithLabelValues("stream_update").Inc()
				r.streamMetrics.dropped.WithLabelValues(d.Channel, d.Pair).Inc()
			}
		case ev, ok := <-chans[common.TypeQueryCompleted]:
			if !ok {
				return
			}
			if q, isQuery := ev.(common.QueryEvent); isQuery {
				r.recordQuery(q)
			}
		case ev, ok := <-chans[common.TypeConnectionState]:
			if !ok {
				return
			}
			if c, isConn := ev.(common.ConnectionEvent); isConn {
				r.recordConnection(c)
			}
		}
	}
}

// frame counts a control frame. It returns false once the bus closed the channel.
func (r *MetricsRecorder) frame(ev interface{}, ok bool) bool {
	if !ok {
		r.logger.Debug("Bus channel closed")
		return false
	}
	if f, isFrame := ev.(common.FrameEvent); isFrame {
		r.frameMetrics.received.WithLabelValues(f.Kind).Inc()
	}
	return true
}

func (r *MetricsRecorder) recordUpdate(s common.StreamEvent) {
	r.frameMetrics.received.WithLabelValues("stream_update").Inc()
	r.streamMetrics.updates.WithLabelValues(s.Channel, s.Pair).Inc()
	r.streamMetrics.payloadBytes.Observe(float64(len(s.Payload)))
}

func (r *MetricsRecorder) recordQuery(q common.QueryEvent) {
	r.queryMetrics.latency.WithLabelValues(q.Event).Observe(q.Seconds)
	if q.Err != nil {
		r.queryMetrics.errors.WithLabelValues(q.Event).Inc()
	}
}

func (r *MetricsRecorder) recordConnection(c common.ConnectionEvent) {
	r.connectionMetrics.transitions.WithLabelValues(c.URL, c.State).Inc()
	if c.State == "connected" {
		r.connectionMetrics.connected.WithLabelValues(c.URL).Set(1)
	} else {
		r.connectionMetrics.connected.WithLabelValues(c.URL).Set(0)
	}
}
