package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Decision("ip", ResultAdmitted)
	m.Decision("ip", ResultAdmitted)
	m.Decision("user", ResultRejected)
	m.StoreError("ratelimit", "incr_window")
	m.CacheLookup(CacheHit)
	m.Invalidation(false)
	m.SetBypass(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("ip", ResultAdmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("user", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("ratelimit", "incr_window")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invalidations.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bypass))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Decision("ip", ResultAdmitted)
		m.StoreError("cache", "get")
		m.CacheLookup(CacheMiss)
		m.Invalidation(true)
		m.SetBypass(true)
	})
}
