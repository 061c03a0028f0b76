package observability

import (
	"context"
	"errors"
	"time"

	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/logging"
	"github.com/snow-ghost/factorsearch/pkg/metrics"
	"github.com/snow-ghost/factorsearch/pkg/registry"
	"github.com/snow-ghost/factorsearch/pkg/tokens"
	"github.com/snow-ghost/factorsearch/pkg/tracing"
)

// Manager manages all observability components
type Manager struct {
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// Config holds observability configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	Logging        logging.Config
}

// NewManager creates a new observability manager
func NewManager(config Config) (*Manager, error) {
	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		JaegerEndpoint: config.JaegerEndpoint,
		Environment:    config.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(config.Logging)
	if err != nil {
		return nil, err
	}

	return &Manager{
		metrics: metrics.NewPrometheusMetrics(),
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// New assembles a manager from existing parts.
func New(m *metrics.PrometheusMetrics, t *tracing.Tracer, l *logging.Logger) *Manager {
	return &Manager{metrics: m, tracer: t, logger: l}
}

// NewNop returns a manager with fresh metrics, a no-op tracer and a
// discarding logger.
func NewNop() *Manager {
	tracer, _ := tracing.NewTracer(tracing.Config{})
	return New(metrics.NewPrometheusMetrics(), tracer, logging.NewNop())
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// RecordRequest records metrics and an event log line for one model call.
func (m *Manager) RecordRequest(ctx context.Context, role string, model registry.ModelConfig, status string, duration time.Duration, usage tokens.Usage, c cost.CostResult) {
	m.metrics.RecordRequest(role, model.Provider, model.ID, status, duration)
	m.metrics.RecordTokens(model.Provider, model.ID, usage.PromptTokens, usage.CompletionTokens)
	m.metrics.RecordCost(model.Provider, model.ID, c.Currency, c.TotalCost)
	m.logger.LogLLMRequest(ctx, role, model.Provider, model.ID, status, duration, usage.TotalTokens, c.TotalCost)
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	return errors.Join(m.tracer.Shutdown(ctx), m.logger.Sync())
}
