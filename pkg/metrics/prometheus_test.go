package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusMetrics_IndependentRegistries(t *testing.T) {
	a := NewPrometheusMetrics()
	b := NewPrometheusMetrics()

	a.RecordCacheHit()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheHitsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheHitsTotal))
}

func TestRecordRequestAndTokens(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordRequest("worker", "openai", "gpt-4o-mini", "success", 120*time.Millisecond)
	m.RecordRequest("worker", "openai", "gpt-4o-mini", "success", 80*time.Millisecond)
	m.RecordTokens("openai", "gpt-4o-mini", 100, 0)
	m.RecordCost("openai", "gpt-4o-mini", "USD", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("worker", "openai", "gpt-4o-mini", "success")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.TokensInputTotal.WithLabelValues("openai", "gpt-4o-mini")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.TokensOutputTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.CostTotal))
}

func TestOptimizerRecorder(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordStep("Instruction", "improved", time.Second)
	m.RecordStep("Instruction", "stagnant", 0)
	m.RecordCandidateScore("Instruction", 0.4)
	m.RecordCandidateScore("Instruction", 0.7)
	m.RecordCandidateScore("Instruction", 0.5)
	m.RecordFreeze("Instruction")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("Instruction", "improved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("Instruction", "stagnant")))
	assert.Equal(t, 0.7, testutil.ToFloat64(m.BestScore.WithLabelValues("Instruction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FactorsFrozen))
}

func TestRecordRetryAndCircuit(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordRetry("vllm", "qwen", "status_503")
	m.RecordCircuitState("vllm", "qwen", "open")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("vllm", "qwen", "status_503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitTransitionsTotal.WithLabelValues("vllm", "qwen", "open")))
}

func TestHandler(t *testing.T) {
	m := NewPrometheusMetrics()
	m.RecordFreeze("Input")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "factorsearch_factors_frozen_total 1")
}
