package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analytics service.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	// Ingest metrics
	EventsIngested *prometheus.CounterVec
	IngestLatency  *prometheus.HistogramVec
	Dropped        *prometheus.CounterVec

	// Aggregate store metrics
	Upserts      *prometheus.CounterVec
	UpsertErrors *prometheus.CounterVec

	// Resync metrics
	ResyncRuns     *prometheus.CounterVec
	ResyncDuration prometheus.Histogram
	ResyncEvents   prometheus.Counter

	// Locking
	LockWait *prometheus.HistogramVec

	// Simulator
	SimulatedEvents prometheus.Counter

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Geo
	GeoLookupLatency *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		namespace: namespace,

		EventsIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Events received by ingest path and outcome",
			},
			[]string{"path", "outcome"},
		),
		IngestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_latency_seconds",
				Help:      "Time to append and aggregate one ingest call",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"path"},
		),
		Dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_contributions_total",
				Help:      "Event contributions not applied to aggregates",
			},
			[]string{"reason"},
		),

		Upserts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregate_upserts_total",
				Help:      "Aggregate upserts by table",
			},
			[]string{"table"},
		),
		UpsertErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregate_upsert_errors_total",
				Help:      "Failed aggregate upserts by table",
			},
			[]string{"table"},
		),

		ResyncRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resync_runs_total",
				Help:      "Full resync runs by status",
			},
			[]string{"status"},
		),
		ResyncDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resync_duration_seconds",
				Help:      "Full resync wall time",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		ResyncEvents: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resync_events_scanned_total",
				Help:      "Events scanned by full resyncs",
			},
		),

		LockWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for named locks",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"name"},
		),

		SimulatedEvents: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "simulated_events_total",
				Help:      "Events generated by the traffic simulator",
			},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"class"},
		),

		GeoLookupLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geo_lookup_latency_seconds",
				Help:      "GeoIP lookup latency",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01},
			},
			[]string{"cache_hit"},
		),
	}
}

// Handler returns the HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordIngest records one ingest call.
func (m *Metrics) RecordIngest(path string, accepted, skipped int, latency time.Duration) {
	if accepted > 0 {
		m.EventsIngested.WithLabelValues(path, "accepted").Add(float64(accepted))
	}
	if skipped > 0 {
		m.EventsIngested.WithLabelValues(path, "skipped").Add(float64(skipped))
	}
	m.IngestLatency.WithLabelValues(path).Observe(latency.Seconds())
}

// RecordRejected records an ingest call that failed outright.
func (m *Metrics) RecordRejected(path string) {
	m.EventsIngested.WithLabelValues(path, "rejected").Inc()
}

// RecordDropped records a contribution dropped for reason.
func (m *Metrics) RecordDropped(reason string, n int) {
	m.Dropped.WithLabelValues(reason).Add(float64(n))
}

// RecordUpsert records one aggregate upsert against table.
func (m *Metrics) RecordUpsert(table string, err error) {
	if err != nil {
		m.UpsertErrors.WithLabelValues(table).Inc()
		return
	}
	m.Upserts.WithLabelValues(table).Inc()
}

// RecordResync records a finished resync.
func (m *Metrics) RecordResync(scanned int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.ResyncRuns.WithLabelValues(status).Inc()
	m.ResyncDuration.Observe(duration.Seconds())
	m.ResyncEvents.Add(float64(scanned))
}

// RecordLockWait records time spent acquiring lock name.
func (m *Metrics) RecordLockWait(name string, d time.Duration) {
	m.LockWait.WithLabelValues(name).Observe(d.Seconds())
}

// RecordSimulated records generated simulator events.
func (m *Metrics) RecordSimulated(n int) {
	m.SimulatedEvents.Add(float64(n))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(class string) {
	m.RateLimitHits.WithLabelValues(class).Inc()
}

// RecordGeoLookup records a geo lookup.
func (m *Metrics) RecordGeoLookup(cacheHit bool, latency time.Duration) {
	hit := "false"
	if cacheHit {
		hit = "true"
	}
	m.GeoLookupLatency.WithLabelValues(hit).Observe(latency.Seconds())
}

// PoolStats is a point-in-time view of a backend connection pool.
type PoolStats struct {
	Total    int64
	Idle     int64
	InUse    int64
	Max      int64
	Waits    int64
	Timeouts int64
}

// RegisterPool exports the named pool's stats, read on every scrape.
func (m *Metrics) RegisterPool(pool string, stats func() PoolStats) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"pool": pool}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(m.namespace, "pool", name), help, nil, labels)
	}
	m.registry.MustRegister(&poolCollector{
		stats:    stats,
		total:    desc("connections", "Open connections"),
		idle:     desc("idle_connections", "Idle connections"),
		inUse:    desc("in_use_connections", "Connections checked out"),
		max:      desc("max_connections", "Configured pool size"),
		waits:    desc("waits_total", "Acquires that found no idle connection"),
		timeouts: desc("timeouts_total", "Acquires that gave up waiting"),
	})
}

type poolCollector struct {
	stats                                    func() PoolStats
	total, idle, inUse, max, waits, timeouts *prometheus.Desc
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.inUse
	ch <- c.max
	ch <- c.waits
	ch <- c.timeouts
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(s.Waits))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
}
