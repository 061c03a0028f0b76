package limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/snow-ghost/factorsearch/pkg/registry"
)

// RateLimiter manages per-model request and token budgets. A zero MaxRPM or
// MaxTPM leaves that dimension unlimited.
type RateLimiter struct {
	requests map[string]*rate.Limiter
	tokens   map[string]*rate.Limiter
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*rate.Limiter),
		tokens:   make(map[string]*rate.Limiter),
	}
}

func perMinute(limit int) *rate.Limiter {
	if limit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := limit / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(limit)/60.0), burst)
}

// GetLimiter returns or creates the request limiter for a model
func (rl *RateLimiter) GetLimiter(config registry.ModelConfig) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.requests[config.ID]; exists {
		return limiter
	}
	limiter := perMinute(config.MaxRPM)
	rl.requests[config.ID] = limiter
	return limiter
}

func (rl *RateLimiter) tokenLimiter(config registry.ModelConfig) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.tokens[config.ID]; exists {
		return limiter
	}
	limiter := perMinute(config.MaxTPM)
	rl.tokens[config.ID] = limiter
	return limiter
}

// Wait blocks until one request and n estimated tokens fit the model's
// budget. Token requests larger than the burst are clamped to it.
func (rl *RateLimiter) Wait(ctx context.Context, config registry.ModelConfig, n int) error {
	if err := rl.GetLimiter(config).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	tl := rl.tokenLimiter(config)
	if tl.Limit() == rate.Inf || n <= 0 {
		return nil
	}
	if b := tl.Burst(); n > b {
		n = b
	}
	if err := tl.WaitN(ctx, n); err != nil {
		return fmt.Errorf("token limiter wait failed: %w", err)
	}
	return nil
}

// Allow checks if the request is allowed without waiting
func (rl *RateLimiter) Allow(config registry.ModelConfig) bool {
	return rl.GetLimiter(config).Allow()
}

// GetStats returns rate limiter statistics for a model
func (rl *RateLimiter) GetStats(config registry.ModelConfig) map[string]interface{} {
	limiter := rl.GetLimiter(config)

	return map[string]interface{}{
		"model_id": config.ID,
		"limit":    limiter.Limit(),
		"burst":    limiter.Burst(),
		"tokens":   limiter.Tokens(),
		"max_rpm":  config.MaxRPM,
		"max_tpm":  config.MaxTPM,
	}
}

// Reset resets the rate limiters for a model
func (rl *RateLimiter) Reset(modelID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.requests, modelID)
	delete(rl.tokens, modelID)
}
