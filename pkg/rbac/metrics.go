package rbac

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Decision paths reported in metrics.
const (
	PathSuperuser   = "superuser"
	PathGlobalAdmin = "global_admin"
	PathResolved    = "resolved"
	PathCached      = "cached"
)

// Metrics holds the engine's Prometheus metrics. Nil receivers are safe so
// callers can wire metrics only where they want them.
type Metrics struct {
	ChecksTotal         *prometheus.CounterVec
	CheckDuration       *prometheus.HistogramVec
	BatchSize           prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	AssignmentMutations *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics on the given registry.
// A nil registry falls back to the default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_checks_total",
				Help: "Permission checks by resolution path and outcome",
			},
			[]string{"path", "allowed"},
		),
		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowgate_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowgate_batch_check_size",
				Help:    "Number of checks per batch request",
				Buckets: []float64{1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowgate_decision_cache_hits_total",
				Help: "Decision cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flowgate_decision_cache_misses_total",
				Help: "Decision cache misses",
			},
		),
		AssignmentMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_assignment_mutations_total",
				Help: "Assignment mutations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
	}

	registerer.MustRegister(
		m.ChecksTotal,
		m.CheckDuration,
		m.BatchSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AssignmentMutations,
	)
	return m
}

func (m *Metrics) observeCheck(path string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "false"
	if allowed {
		outcome = "true"
	}
	m.ChecksTotal.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) observeDuration(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.CheckDuration.WithLabelValues(mode).Observe(seconds)
}

func (m *Metrics) observeBatchSize(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(n))
}

func (m *Metrics) observeCacheHit(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) observeMutation(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AssignmentMutations.WithLabelValues(operation, status).Inc()
}
