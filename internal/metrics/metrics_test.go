package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.CacheLookup("error")
	m.Rerank("timeout", 15*time.Second)
	m.PersonasGenerated(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rerankOutcomes.WithLabelValues("timeout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.personas))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup("hit")
		m.CacheWrite("ok")
		m.Rerank("reranked", time.Second)
		m.Search("ok", time.Second)
		m.PersonasGenerated(1)
	})
}
