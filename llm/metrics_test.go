package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/metrics"
)

// counterValue sums every sample of a counter family in reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestHTTPService_RecordsServiceCalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"type": ResponseText, "text": "ok"},
			})
			return
		}
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	s := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zap.NewNop(), WithServiceMetrics(collector))

	_, err := s.Execute(context.Background(), Request{Config: ModelConfig{Provider: "mistral"}, Prompt: "p"})
	require.NoError(t, err)
	_, err = s.Execute(context.Background(), Request{Config: ModelConfig{Provider: "mistral"}, Prompt: "p"})
	require.Error(t, err)

	assert.Equal(t, 2.0, counterValue(t, reg, "test_service_calls_total"))
}

func TestCache_RecordsHitsAndMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	inner := &countingService{resp: &Response{Type: ResponseText, Text: "v"}}
	cache := NewCache(inner, client, 0, zap.NewNop(), WithCacheMetrics(collector))

	req := Request{Prompt: "p"}
	_, err := cache.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = cache.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "test_cache_misses_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_cache_hits_total"))
	assert.Equal(t, 1, inner.calls)
}
