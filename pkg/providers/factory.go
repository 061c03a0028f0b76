package providers

import (
	"context"
	"fmt"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/llm/mock"
	"github.com/snow-ghost/factorsearch/pkg/cache"
	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/limiter"
	"github.com/snow-ghost/factorsearch/pkg/observability"
	"github.com/snow-ghost/factorsearch/pkg/registry"
)

// RoleWorker is the only role whose completions are cached. Architect
// rewrites ask for fresh alternatives on every call.
const RoleWorker = "worker"

// Factory builds guarded generators for the architect and worker roles from
// registry entries.
type Factory struct {
	registry   *registry.Registry
	obs        *observability.Manager
	ledger     *cost.Ledger
	protection *limiter.Protection
	retry      *limiter.RetryConfig
	cache      *cache.Cache
	forceMock  bool
}

// Option configures a Factory.
type Option func(*Factory)

// WithObservability sets metrics, tracer and logger.
func WithObservability(obs *observability.Manager) Option {
	return func(f *Factory) { f.obs = obs }
}

// WithLedger sets the cost ledger usage is recorded to.
func WithLedger(l *cost.Ledger) Option {
	return func(f *Factory) { f.ledger = l }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(c *limiter.RetryConfig) Option {
	return func(f *Factory) { f.retry = c }
}

// WithCache answers repeated worker prompts from c.
func WithCache(c *cache.Cache) Option {
	return func(f *Factory) { f.cache = c }
}

// WithMockMode routes every model to the offline demo generator.
func WithMockMode(enabled bool) Option {
	return func(f *Factory) { f.forceMock = enabled }
}

// NewFactory creates a provider factory
func NewFactory(reg *registry.Registry, opts ...Option) *Factory {
	f := &Factory{
		registry: reg,
		obs:      observability.NewNop(),
		ledger:   cost.NewLedger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.protection = limiter.NewProtection(f.retry, f.obs.GetLogger(), f.obs.GetMetrics())
	return f
}

// Ledger returns the cost ledger.
func (f *Factory) Ledger() *cost.Ledger {
	return f.ledger
}

// Protection returns the shared protection layer.
func (f *Factory) Protection() *limiter.Protection {
	return f.protection
}

// Build returns the generator for role bound to the model with modelID.
func (f *Factory) Build(role, modelID string) (core.Generator, error) {
	mc := f.registry.FindModel(modelID)
	if mc == nil {
		return nil, fmt.Errorf("model %q not found in registry", modelID)
	}

	base, err := f.base(role, *mc)
	if err != nil {
		return nil, err
	}

	var gen core.Generator = f.protection.Wrap(role, *mc, base)
	if f.cache != nil && role == RoleWorker {
		logger := f.obs.GetLogger()
		gen = cache.NewGenerator(gen, f.cache, *mc,
			cache.WithObserver(f.obs.GetMetrics()),
			cache.WithLookupHook(func(ctx context.Context, hit bool) {
				logger.LogCacheOperation(ctx, "lookup", hit)
			}),
		)
	}
	return gen, nil
}

func (f *Factory) base(role string, mc registry.ModelConfig) (core.Generator, error) {
	if f.forceMock || mc.Provider == "mock" {
		return mock.NewDemo(), nil
	}

	switch mc.Provider {
	case "openai", "vllm", "openrouter", "lmstudio":
		return NewOpenAIGenerator(role, mc, f.obs, f.ledger)
	case "ollama":
		return NewOllamaGenerator(role, mc, f.obs, f.ledger), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", mc.Provider)
	}
}

// GetSupportedProviders returns a list of supported provider types
func GetSupportedProviders() []string {
	return []string{
		"openai",
		"vllm",
		"openrouter",
		"lmstudio",
		"ollama",
		"mock",
	}
}
