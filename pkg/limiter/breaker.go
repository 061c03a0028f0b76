package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/factorsearch/pkg/registry"
)

// BreakerPolicy decides when a model endpoint is considered down.
type BreakerPolicy struct {
	HalfOpenProbes uint32        // requests let through while half-open
	Window         time.Duration // closed-state counting window
	Cooldown       time.Duration // time spent open before probing
	MinRequests    uint32
	FailureRatio   float64
}

// PolicyFor picks a policy from the model's advertised throughput. Local
// servers (vLLM, Ollama) trip early; high-volume hosted endpoints need more
// evidence.
func PolicyFor(m registry.ModelConfig) BreakerPolicy {
	if m.MaxRPM > 5000 || m.MaxTPM > 100000 {
		return BreakerPolicy{HalfOpenProbes: 5, Window: 10 * time.Second, Cooldown: 30 * time.Second, MinRequests: 10, FailureRatio: 0.6}
	}
	return BreakerPolicy{HalfOpenProbes: 2, Window: 10 * time.Second, Cooldown: 30 * time.Second, MinRequests: 3, FailureRatio: 0.4}
}

func (p BreakerPolicy) readyToTrip(c gobreaker.Counts) bool {
	return c.Requests >= p.MinRequests && float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
}

// countsAgainstEndpoint reports whether err says something about the
// endpoint's health. Cancellation and client errors other than 408 and 429
// are the caller's problem.
func countsAgainstEndpoint(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	status := StatusCode(err)
	if status >= 400 && status < 500 && status != 408 && status != 429 {
		return false
	}
	return true
}

// StateChangeFunc is notified when a model's breaker changes state.
type StateChangeFunc func(modelID string, from, to gobreaker.State)

// Breakers holds one circuit breaker per model ID.
type Breakers struct {
	mu       sync.Mutex
	byModel  map[string]*gobreaker.CircuitBreaker
	onChange StateChangeFunc
}

func NewBreakers(onChange StateChangeFunc) *Breakers {
	return &Breakers{byModel: make(map[string]*gobreaker.CircuitBreaker), onChange: onChange}
}

// For returns the breaker of m, creating it on first use.
func (b *Breakers) For(m registry.ModelConfig) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.byModel[m.ID]; ok {
		return cb
	}
	policy := PolicyFor(m)
	id := m.ID
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model-" + id,
		MaxRequests: policy.HalfOpenProbes,
		Interval:    policy.Window,
		Timeout:     policy.Cooldown,
		ReadyToTrip: policy.readyToTrip,
		IsSuccessful: func(err error) bool {
			return !countsAgainstEndpoint(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if b.onChange != nil {
				b.onChange(id, from, to)
			}
		},
	})
	b.byModel[id] = cb
	return cb
}

// Do runs fn through the breaker of m. While the breaker is open fn is not
// called and gobreaker.ErrOpenState is returned.
func (b *Breakers) Do(m registry.ModelConfig, fn func() (string, error)) (string, error) {
	out, err := b.For(m).Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (b *Breakers) State(m registry.ModelConfig) gobreaker.State {
	return b.For(m).State()
}

func (b *Breakers) IsOpen(m registry.ModelConfig) bool {
	return b.State(m) == gobreaker.StateOpen
}

func (b *Breakers) Counts(m registry.ModelConfig) gobreaker.Counts {
	return b.For(m).Counts()
}

// Reset drops the breaker of modelID; the next call starts closed.
func (b *Breakers) Reset(modelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byModel, modelID)
}
