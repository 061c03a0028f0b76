package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds all Prometheus metrics. Every instance owns its
// registry so tests and repeated runs never collide on registration.
type PrometheusMetrics struct {
	Registry *prometheus.Registry

	// LLM request metrics
	RequestsTotal    *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec

	// Token metrics
	TokensInputTotal  *prometheus.CounterVec
	TokensOutputTotal *prometheus.CounterVec

	// Cost metrics
	CostTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Retry metrics
	RetriesTotal *prometheus.CounterVec

	// Circuit breaker transitions, labelled by target state
	CircuitTransitionsTotal *prometheus.CounterVec

	// Optimizer metrics
	StepsTotal      *prometheus.CounterVec
	StepDuration    prometheus.Histogram
	CandidateScores *prometheus.HistogramVec
	FactorsFrozen   prometheus.Counter
	BestScore       *prometheus.GaugeVec

	mu   sync.Mutex
	best map[string]float64 // per-factor best candidate score seen
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		Registry: reg,
		best:     make(map[string]float64),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests",
			},
			[]string{"role", "provider", "model", "status"},
		),

		LatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "LLM request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role", "provider", "model"},
		),

		TokensInputTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_input_total",
				Help: "Total number of input tokens processed",
			},
			[]string{"provider", "model"},
		),

		TokensOutputTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_output_total",
				Help: "Total number of output tokens generated",
			},
			[]string{"provider", "model"},
		),

		CostTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_cost_total",
				Help: "Total cost of LLM requests",
			},
			[]string{"provider", "model", "currency"},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "llm_cache_hits_total",
				Help: "Total number of cache hits",
			},
		),

		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "llm_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_retries_total",
				Help: "Total number of retries",
			},
			[]string{"provider", "model", "reason"},
		),

		CircuitTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_circuit_transitions_total",
				Help: "Circuit breaker state transitions by target state",
			},
			[]string{"provider", "model", "state"},
		),

		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factorsearch_steps_total",
				Help: "Optimizer steps by factor and outcome",
			},
			[]string{"factor", "outcome"},
		),

		StepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "factorsearch_step_duration_seconds",
				Help:    "Wall time of one optimizer step",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),

		CandidateScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factorsearch_candidate_score",
				Help:    "Scores of evaluated candidates",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"factor"},
		),

		FactorsFrozen: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "factorsearch_factors_frozen_total",
				Help: "Factors frozen by the patience rule",
			},
		),

		BestScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "factorsearch_best_score",
				Help: "Best candidate score seen per factor",
			},
			[]string{"factor"},
		),
	}
}

// Handler serves this instance's registry.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordRequest records the outcome and latency of one LLM call
func (m *PrometheusMetrics) RecordRequest(role, provider, model, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(role, provider, model, status).Inc()
	m.LatencyHistogram.WithLabelValues(role, provider, model).Observe(duration.Seconds())
}

// RecordTokens records token metrics
func (m *PrometheusMetrics) RecordTokens(provider, model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		m.TokensInputTotal.WithLabelValues(provider, model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensOutputTotal.WithLabelValues(provider, model).Add(float64(outputTokens))
	}
}

// RecordCost records a cost metric
func (m *PrometheusMetrics) RecordCost(provider, model, currency string, cost float64) {
	if cost > 0 {
		m.CostTotal.WithLabelValues(provider, model, currency).Add(cost)
	}
}

// RecordCacheHit records a cache hit
func (m *PrometheusMetrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func (m *PrometheusMetrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordRetry records a retry
func (m *PrometheusMetrics) RecordRetry(provider, model, reason string) {
	m.RetriesTotal.WithLabelValues(provider, model, reason).Inc()
}

// RecordCircuitState records a breaker transition into state
func (m *PrometheusMetrics) RecordCircuitState(provider, model, state string) {
	m.CircuitTransitionsTotal.WithLabelValues(provider, model, state).Inc()
}

// RecordStep records one optimizer step.
func (m *PrometheusMetrics) RecordStep(factor, outcome string, duration time.Duration) {
	m.StepsTotal.WithLabelValues(factor, outcome).Inc()
	if duration > 0 {
		m.StepDuration.Observe(duration.Seconds())
	}
}

// RecordCandidateScore records a candidate score and tracks the per-factor best.
func (m *PrometheusMetrics) RecordCandidateScore(factor string, score float64) {
	m.CandidateScores.WithLabelValues(factor).Observe(score)
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.best[factor]; !ok || score > current {
		m.best[factor] = score
		m.BestScore.WithLabelValues(factor).Set(score)
	}
}

// RecordFreeze records a factor being frozen.
func (m *PrometheusMetrics) RecordFreeze(string) {
	m.FactorsFrozen.Inc()
}
