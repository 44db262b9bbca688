// Package metrics collects and exposes Prometheus metrics for the
// orchestration core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is the collection interface used by the invoker and
// orchestrator.
type MetricsCollector interface {
	RecordInvocation(sourceID string, success bool)
	RecordRateLimited(sourceID string)
	RecordDeactivation(sourceID string)
	RecordRecordsProcessed(count int)
	ObserveInvocationLatency(d time.Duration)
	SetLastSyncTime(t time.Time)
}

// Collector implements MetricsCollector on a Prometheus registry.
type Collector struct {
	invocations   *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	deactivations *prometheus.CounterVec
	records       prometheus.Counter
	latency       prometheus.Histogram
	lastSync      prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regsync_invocations_total",
			Help: "Source invocations by source and outcome.",
		}, []string{"source", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regsync_rate_limited_total",
			Help: "Invocations skipped because the quota window was exhausted.",
		}, []string{"source"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regsync_deactivations_total",
			Help: "Sources deactivated after repeated errors.",
		}, []string{"source"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regsync_records_processed_total",
			Help: "Records returned by successful invocations.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regsync_invocation_latency_seconds",
			Help:    "Latency of source invocations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regsync_last_sync_timestamp_seconds",
			Help: "Unix time of the last completed sync run.",
		}),
	}

	reg.MustRegister(
		c.invocations,
		c.rateLimited,
		c.deactivations,
		c.records,
		c.latency,
		c.lastSync,
	)

	return c
}

func (c *Collector) RecordInvocation(sourceID string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.invocations.WithLabelValues(sourceID, outcome).Inc()
}

func (c *Collector) RecordRateLimited(sourceID string) {
	c.rateLimited.WithLabelValues(sourceID).Inc()
}

func (c *Collector) RecordDeactivation(sourceID string) {
	c.deactivations.WithLabelValues(sourceID).Inc()
}

func (c *Collector) RecordRecordsProcessed(count int) {
	c.records.Add(float64(count))
}

func (c *Collector) ObserveInvocationLatency(d time.Duration) {
	c.latency.Observe(d.Seconds())
}

func (c *Collector) SetLastSyncTime(t time.Time) {
	c.lastSync.Set(float64(t.Unix()))
}

// Handler returns the HTTP handler exposing the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
