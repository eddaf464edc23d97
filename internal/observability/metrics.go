package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the engine's prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration *prometheus.HistogramVec

	decisions        *prometheus.CounterVec
	snapshotRebuilds prometheus.Counter
	snapshotHits     prometheus.Counter
}

func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_policy_decisions_total",
			Help: "Policy decisions by outcome and reason.",
		}, []string{"allowed", "reason"}),
		snapshotRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_snapshot_rebuilds_total",
			Help: "Access snapshots rebuilt from live membership data.",
		}),
		snapshotHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_snapshot_cache_hits_total",
			Help: "Access snapshot reads served from cache.",
		}),
	}

	registry.MustRegister(
		m.httpDuration,
		m.decisions,
		m.snapshotRebuilds,
		m.snapshotHits,
	)
	return m
}

func (m *Metrics) RecordDecision(allowed bool, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.decisions.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
}

func (m *Metrics) RecordSnapshotRebuild() { m.snapshotRebuilds.Inc() }
func (m *Metrics) RecordSnapshotHit()     { m.snapshotHits.Inc() }

// Handler serves the scrape endpoint for this process's registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// HTTPMiddleware records per-route request latency.
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
