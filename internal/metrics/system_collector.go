package metrics

import (
	"context"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// SystemCollector implements prometheus.Collector for Go runtime figures
// relevant to a long running stream consumer: heap, GC and goroutines.
type SystemCollector struct {
	memStats   *prometheus.GaugeVec // by type
	gcStats    *prometheus.GaugeVec // by type
	goroutines prometheus.Gauge
	threads    prometheus.Gauge
	logger     *logrus.Entry
}

// NewSystemCollector creates a collector. Register it with a registry to expose it.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{
		memStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_bytes",
			Help:      "Memory statistics in bytes.",
		}, []string{"type"}),
		gcStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "gc_stats",
			Help:      "Garbage collector statistics.",
		}, []string{"type"}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines",
			Help:      "Number of running goroutines.",
		}),
		threads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "threads",
			Help:      "Number of OS threads created.",
		}),
		logger: logrus.WithField("component", "system_collector"),
	}
}

// Describe implements prometheus.Collector.
func (c *SystemCollector) Describe(ch chan<- *prometheus.Desc) {
	c.memStats.Describe(ch)
	c.gcStats.Describe(ch)
	ch <- c.goroutines.Desc()
	ch <- c.threads.Desc()
}

// Collect implements prometheus.Collector. Figures are read at scrape time.
func (c *SystemCollector) Collect(ch chan<- prometheus.Metric) {
	c.update(readSystemStats())

	c.memStats.Collect(ch)
	c.gcStats.Collect(ch)
	c.goroutines.Collect(ch)
	c.threads.Collect(ch)
}

// LogEvery logs the runtime figures at the given interval until ctx is done.
func (c *SystemCollector) LogEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := readSystemStats()
			c.logger.WithFields(logrus.Fields{
				"alloc_mb":      bToMb(s.mem.Alloc),
				"heap_inuse_mb": bToMb(s.mem.HeapInuse),
				"sys_mb":        bToMb(s.mem.Sys),
				"num_gc":        s.mem.NumGC,
				"gc_pause_ms":   s.mem.PauseTotalNs / 1e6,
				"goroutines":    s.goroutines,
				"threads":       s.threads,
			}).Info("Runtime stats")
		}
	}
}

type systemStats struct {
	mem        runtime.MemStats
	goroutines int
	threads    int
}

func readSystemStats() systemStats {
	var s systemStats
	runtime.ReadMemStats(&s.mem)
	s.goroutines = runtime.NumGoroutine()
	s.threads = pprof.Lookup("threadcreate").Count()
	return s
}

func (c *SystemCollector) update(s systemStats) {
	c.memStats.WithLabelValues("alloc").Set(float64(s.mem.Alloc))
	c.memStats.WithLabelValues("total_alloc").Set(float64(s.mem.TotalAlloc))
	c.memStats.WithLabelValues("sys").Set(float64(s.mem.Sys))
	c.memStats.WithLabelValues("heap_alloc").Set(float64(s.mem.HeapAlloc))
	c.memStats.WithLabelValues("heap_inuse").Set(float64(s.mem.HeapInuse))

	c.gcStats.WithLabelValues("num_gc").Set(float64(s.mem.NumGC))
	c.gcStats.WithLabelValues("pause_total_ns").Set(float64(s.mem.PauseTotalNs))

	c.goroutines.Set(float64(s.goroutines))
	c.threads.Set(float64(s.threads))
}

// bToMb converts bytes to megabytes
func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
