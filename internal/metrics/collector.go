package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the execution core's Prometheus metrics. Each
// Collector registers against its own Registerer, so tests can run with
// isolated registries.
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	staleTransitions  prometheus.Counter
	nodesCreated      *prometheus.CounterVec

	serviceCalls        *prometheus.CounterVec
	serviceCallDuration *prometheus.HistogramVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a Collector registered on reg. A nil reg falls back
// to the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recipe_executions_total",
				Help:      "Total number of recipe executions",
			},
			[]string{"recipe", "status"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recipe_execution_duration_seconds",
				Help:      "Recipe execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"recipe"},
		),
		staleTransitions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_transitions_total",
				Help:      "Total number of nodes flagged stale",
			},
		),
		nodesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_created_total",
				Help:      "Total number of nodes created by executions",
			},
			[]string{"kind"},
		),
		serviceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_calls_total",
				Help:      "Total number of model execution service calls",
			},
			[]string{"provider", "status"},
		),
		serviceCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_call_duration_seconds",
				Help:      "Model execution service call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider"},
		),
		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of response cache hits",
			},
		),
		cacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of response cache misses",
			},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// RecordExecution records one recipe execution outcome.
func (c *Collector) RecordExecution(recipeID, status string, elapsed time.Duration) {
	c.executionsTotal.WithLabelValues(recipeID, status).Inc()
	c.executionDuration.WithLabelValues(recipeID).Observe(elapsed.Seconds())
}

// RecordStale records a node flagged stale.
func (c *Collector) RecordStale() {
	c.staleTransitions.Inc()
}

// RecordNodeCreated records a node created by an execution.
func (c *Collector) RecordNodeCreated(kind string) {
	c.nodesCreated.WithLabelValues(kind).Inc()
}

// RecordServiceCall records one model execution service call.
func (c *Collector) RecordServiceCall(provider, status string, elapsed time.Duration) {
	c.serviceCalls.WithLabelValues(provider, status).Inc()
	c.serviceCallDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordCacheHit records a response cache hit.
func (c *Collector) RecordCacheHit() { c.cacheHits.Inc() }

// RecordCacheMiss records a response cache miss.
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }
