package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the driver reports against. Modeled on remiges-tech-alya's use of prometheus/client_golang
// for service-level instrumentation.
type Metrics struct {
	BatchesDispatched prometheus.Counter
	BatchDuration     prometheus.Histogram
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for the process-wide one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parallelcache_batches_dispatched_total",
			Help: "Total number of batches submitted to the backend.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parallelcache_batch_duration_seconds",
			Help:    "Wall-clock time from batch submission to completion.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parallelcache_cache_hits_total",
			Help: "Calls resolved from the cache oracle during capture.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parallelcache_cache_misses_total",
			Help: "Calls registered for dispatch during capture.",
		}),
	}

	reg.MustRegister(m.BatchesDispatched, m.BatchDuration, m.CacheHits, m.CacheMisses)
	return m
}

// ObserveBatch records one completed batch's duration and increments the
// dispatch counter by one.
func (m *Metrics) ObserveBatch(d time.Duration) {
	m.BatchesDispatched.Inc()
	m.BatchDuration.Observe(d.Seconds())
}
