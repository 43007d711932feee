package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsServer handles exposing metrics via HTTP
type MetricsServer struct {
	server *http.Server
	logger *logrus.Entry
	done   chan struct{}
}

// NewMetricsServer serves the metrics of gatherer on addr under /metrics,
// plus a /health probe. reg receives the handler's own request metrics and
// may be nil.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, reg prometheus.Registerer) *MetricsServer {
	s := &MetricsServer{
		logger: logrus.WithField("component", "metrics_server"),
		done:   make(chan struct{}),
	}

	var handler http.Handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          reg,
	})
	if reg != nil {
		handler = promhttp.InstrumentMetricHandler(reg, handler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.logger.Tracef("Metrics request from %s", r.RemoteAddr)
		handler.ServeHTTP(w, r)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *MetricsServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("Shutting down metrics server")
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Error shutting down server")
		}
		close(s.done)
	}()

	s.logger.WithField("addr", s.server.Addr).Info("Serving metrics")
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		s.logger.WithError(err).Error("Error starting server")
		return err
	}
	s.logger.Info("Metrics server shutdown complete")
	return nil
}

// Done is closed once the server shut down.
func (s *MetricsServer) Done() <-chan struct{} {
	return s.done
}
