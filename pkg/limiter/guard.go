package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/pkg/logging"
	"github.com/snow-ghost/factorsearch/pkg/registry"
	"github.com/snow-ghost/factorsearch/pkg/tokens"
)

// Metrics receives protection events.
type Metrics interface {
	RecordRetry(provider, model, reason string)
	RecordCircuitState(provider, model, state string)
}

// Protection bundles the rate limiter, circuit breakers and retry policy
// shared by every guarded generator of one run.
type Protection struct {
	rateLimiter *RateLimiter
	breakers    *Breakers
	retry       *RetryConfig
	logger      *logging.Logger
	metrics     Metrics

	mu        sync.RWMutex
	providers map[string]string
}

// NewProtection creates a protection layer. logger and metrics may be nil.
func NewProtection(retry *RetryConfig, logger *logging.Logger, metrics Metrics) *Protection {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Protection{
		rateLimiter: NewRateLimiter(),
		retry:       retry,
		logger:      logger,
		metrics:     metrics,
		providers:   make(map[string]string),
	}
	p.breakers = NewBreakers(p.onStateChange)
	return p
}

func (p *Protection) onStateChange(modelID string, from, to gobreaker.State) {
	p.mu.RLock()
	provider := p.providers[modelID]
	p.mu.RUnlock()
	p.logger.LogCircuitBreaker(context.Background(), provider, modelID, from.String(), to.String())
	if p.metrics != nil {
		p.metrics.RecordCircuitState(provider, modelID, to.String())
	}
}

// Breakers exposes the per-model circuit breakers.
func (p *Protection) Breakers() *Breakers {
	return p.breakers
}

// RateLimiter exposes the shared rate limiter.
func (p *Protection) RateLimiter() *RateLimiter {
	return p.rateLimiter
}

// Wrap returns next guarded by the model's limits. Every failure surfaces as
// a *core.GenerationError tagged with role and model.
func (p *Protection) Wrap(role string, model registry.ModelConfig, next core.Generator) *Guard {
	p.mu.Lock()
	p.providers[model.ID] = model.Provider
	p.mu.Unlock()
	p.breakers.For(model)
	g := &Guard{
		protection: p,
		role:       role,
		model:      model,
		next:       next,
	}
	// prompts are only tokenized against a TPM budget
	if model.MaxTPM > 0 {
		g.counter = tokens.ForModel(model.ModelName())
	}
	return g
}

// Guard is a core.Generator protected by rate limiting, a circuit breaker
// and retries.
type Guard struct {
	protection *Protection
	role       string
	model      registry.ModelConfig
	next       core.Generator
	counter    tokens.Counter
}

// Generate implements core.Generator.
func (g *Guard) Generate(ctx context.Context, prompt string) (string, error) {
	p := g.protection
	if p.breakers.IsOpen(g.model) {
		return "", g.wrap(fmt.Errorf("circuit breaker open for %s", g.model.ID))
	}

	n := 1
	if g.counter != nil {
		n = g.counter.Count(prompt)
	}
	if err := p.rateLimiter.Wait(ctx, g.model, n); err != nil {
		return "", g.wrap(err)
	}

	onRetry := func(attempt int, err error, delay time.Duration) {
		reason := retryReason(err)
		p.logger.LogRetry(ctx, g.model.Provider, g.model.ID, reason, attempt, delay)
		if p.metrics != nil {
			p.metrics.RecordRetry(g.model.Provider, g.model.ID, reason)
		}
	}

	out, err := p.breakers.Do(g.model, func() (string, error) {
		return Retry(ctx, p.retry, onRetry, func(ctx context.Context) (string, error) {
			return g.next.Generate(ctx, prompt)
		})
	})
	if err != nil {
		return "", g.wrap(err)
	}
	return out, nil
}

func (g *Guard) wrap(err error) error {
	return core.NewGenerationError(g.role, g.model.ID, StatusCode(err), err)
}

func retryReason(err error) string {
	if status := StatusCode(err); status != 0 {
		return fmt.Sprintf("status_%d", status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
