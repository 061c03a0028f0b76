package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/logging"
	"github.com/snow-ghost/factorsearch/pkg/metrics"
	"github.com/snow-ghost/factorsearch/pkg/registry"
	"github.com/snow-ghost/factorsearch/pkg/tokens"
	"github.com/snow-ghost/factorsearch/pkg/tracing"
)

func TestNewManager(t *testing.T) {
	m, err := NewManager(Config{ServiceName: "factorsearch", Logging: logging.DefaultConfig()})
	require.NoError(t, err)

	assert.NotNil(t, m.GetMetrics())
	assert.NotNil(t, m.GetTracer())
	assert.NotNil(t, m.GetLogger())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestRecordRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tracer, err := tracing.NewTracer(tracing.Config{})
	require.NoError(t, err)
	met := metrics.NewPrometheusMetrics()
	m := New(met, tracer, logging.New(nil, zap.New(core)))

	model := registry.ModelConfig{ID: "openai:gpt-4o-mini", Provider: "openai"}
	usage := tokens.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}
	m.RecordRequest(context.Background(), "worker", model, "success", 250*time.Millisecond, usage,
		cost.CostResult{TotalCost: 0.5, Currency: "USD"})

	assert.Equal(t, 1.0, testutil.ToFloat64(met.RequestsTotal.WithLabelValues("worker", "openai", "openai:gpt-4o-mini", "success")))
	assert.Equal(t, 20.0, testutil.ToFloat64(met.TokensOutputTotal.WithLabelValues("openai", "openai:gpt-4o-mini")))
	assert.Equal(t, 0.5, testutil.ToFloat64(met.CostTotal.WithLabelValues("openai", "openai:gpt-4o-mini", "USD")))
	require.Equal(t, 1, logs.Len())
}
