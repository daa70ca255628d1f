package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "juris"

// Collector owns the service's prometheus registry. A nil Collector records nothing.
type Collector struct {
	registry      *prometheus.Registry
	syncAttempts  *prometheus.CounterVec
	batchCases    *prometheus.CounterVec
	batchLastRun  prometheus.Gauge
	remoteLatency *prometheus.HistogramVec
}

// NewCollector registers the synchronization collectors on a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	collector := &Collector{
		registry: registry,
		syncAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Movement synchronization attempts by outcome status.",
		}, []string{"status"}),
		batchCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_cases_total",
			Help:      "Cases processed by the daily sweep by outcome.",
		}, []string{"outcome"}),
		batchLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_last_run_timestamp_seconds",
			Help:      "Unix time the last daily sweep finished.",
		}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "datajud_request_seconds",
			Help:      "Latency of judiciary search requests by tribunal alias.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"alias"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector.syncAttempts,
		collector.batchCases,
		collector.batchLastRun,
		collector.remoteLatency,
	)
	return collector
}

// RecordSyncAttempt counts one synchronization outcome.
func (c *Collector) RecordSyncAttempt(status string) {
	if c == nil {
		return
	}
	c.syncAttempts.WithLabelValues(status).Inc()
}

// RecordBatchCase counts one case processed by the sweep.
func (c *Collector) RecordBatchCase(outcome string) {
	if c == nil {
		return
	}
	c.batchCases.WithLabelValues(outcome).Inc()
}

// RecordBatchRun stamps the completion time of a sweep.
func (c *Collector) RecordBatchRun(finishedAt time.Time) {
	if c == nil {
		return
	}
	c.batchLastRun.Set(float64(finishedAt.Unix()))
}

// ObserveDatajudRequest records the latency of one remote request.
func (c *Collector) ObserveDatajudRequest(alias string, duration time.Duration) {
	if c == nil {
		return
	}
	c.remoteLatency.WithLabelValues(alias).Observe(duration.Seconds())
}

// Handler exposes the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
