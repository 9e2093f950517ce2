package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gateway"

// Rate limit decision results.
const (
	ResultAdmitted = "admitted"
	ResultRejected = "rejected"
	ResultBypassed = "bypassed"
	ResultSkipped  = "skipped"
	ResultFailOpen = "fail_open"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheError   = "error"
)

// Metrics holds the counters of the admission and freshness layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	Bypass        prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by scope and result.",
		}, []string{"scope", "result"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed or timed out store calls by component and operation.",
		}, []string{"component", "op"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cache invalidations by result.",
		}, []string{"result"}),
		Bypass: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_bypass_enabled",
			Help:      "1 when debug_bypass_rate_limiting is set.",
		}),
	}
}

func (m *Metrics) Decision(scope, result string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(scope, result).Inc()
}

func (m *Metrics) StoreError(component, op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(component, op).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Invalidation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Invalidations.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBypass(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.Bypass.Set(1)
		return
	}
	m.Bypass.Set(0)
}
