// Package metrics exposes Prometheus instrumentation for the merge
// service on its own registry, served separately from the public API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector bundles the service metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	MergesTotal      prometheus.Counter
	MergeFailures    prometheus.Counter
	WarningsTotal    prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RoutesStored     prometheus.Counter
	MergeDuration    prometheus.Histogram
	SegmentsPerRoute prometheus.Histogram

	natsPublished   prometheus.Counter
	natsPublishErrs prometheus.Counter
	natsConnected   prometheus.Gauge
	publishDuration prometheus.Histogram
}

// NewCollector builds a collector with all metrics registered on a
// fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		MergesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_merges_total",
			Help: "Number of merge operations performed",
		}),
		MergeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_merge_failures_total",
			Help: "Number of merge requests rejected as invalid",
		}),
		WarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_merge_warnings_total",
			Help: "Number of warnings produced while merging",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_cache_hits_total",
			Help: "Number of merge results served from cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_cache_misses_total",
			Help: "Number of merge requests that missed the cache",
		}),
		RoutesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_routes_stored_total",
			Help: "Number of merged routes persisted to the database",
		}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "routeweave_merge_duration_seconds",
			Help:    "Time spent merging legs",
			Buckets: prometheus.ExponentialBuckets(0.00025, 2, 12),
		}),
		SegmentsPerRoute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "routeweave_segments_per_route",
			Help:    "Segments in each merged route",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		natsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_nats_published_total",
			Help: "Number of route events published to NATS",
		}),
		natsPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routeweave_nats_publish_errors_total",
			Help: "Number of failed NATS publishes",
		}),
		natsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routeweave_nats_connected",
			Help: "Whether the NATS connection is up",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "routeweave_nats_publish_duration_seconds",
			Help:    "Time spent publishing route events",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.MergesTotal,
		c.MergeFailures,
		c.WarningsTotal,
		c.CacheHits,
		c.CacheMisses,
		c.RoutesStored,
		c.MergeDuration,
		c.SegmentsPerRoute,
		c.natsPublished,
		c.natsPublishErrs,
		c.natsConnected,
		c.publishDuration,
	)

	return c
}

// NATSPublishedInc counts a successful publish.
func (c *Collector) NATSPublishedInc() {
	c.natsPublished.Inc()
}

// NATSPublishErrInc counts a failed publish.
func (c *Collector) NATSPublishErrInc() {
	c.natsPublishErrs.Inc()
}

// PublishObserve records how long a publish took.
func (c *Collector) PublishObserve(d time.Duration) {
	c.publishDuration.Observe(d.Seconds())
}

// NATSSetConnected flips the connection gauge.
func (c *Collector) NATSSetConnected(up bool) {
	if up {
		c.natsConnected.Set(1)
	} else {
		c.natsConnected.Set(0)
	}
}

// Handler returns an HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics server on addr in the background and returns
// it so the caller can shut it down.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("✓ Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	return srv
}
