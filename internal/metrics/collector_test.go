package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("loom", reg, zap.NewNop())

	c.RecordExecution("summarize", "success", 250*time.Millisecond)
	c.RecordExecution("summarize", "success", 100*time.Millisecond)
	c.RecordExecution("summarize", "error", 50*time.Millisecond)
	c.RecordStale()
	c.RecordNodeCreated("record")
	c.RecordServiceCall("openai", "success", time.Second)
	c.RecordCacheHit()
	c.RecordCacheMiss()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("summarize", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("summarize", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.staleTransitions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodesCreated.WithLabelValues("record")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.serviceCalls.WithLabelValues("openai", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses))
}

func TestCollector_IsolatedRegistries(t *testing.T) {
	a := NewCollector("loom", prometheus.NewRegistry(), zap.NewNop())
	b := NewCollector("loom", prometheus.NewRegistry(), zap.NewNop())

	a.RecordCacheHit()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.cacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheHits))
}
