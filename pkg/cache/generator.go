package cache

import (
	"context"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/pkg/registry"
)

// Observer is told about every lookup.
type Observer interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// Generator answers repeated prompts from a Cache.
type Generator struct {
	next     core.Generator
	cache    *Cache
	model    string
	params   registry.GenerationParams
	observer Observer
	onLookup func(ctx context.Context, hit bool)
}

// Option configures a Generator.
type Option func(*Generator)

// WithObserver reports hits and misses to o.
func WithObserver(o Observer) Option {
	return func(g *Generator) { g.observer = o }
}

// WithLookupHook calls fn after every lookup.
func WithLookupHook(fn func(ctx context.Context, hit bool)) Option {
	return func(g *Generator) { g.onLookup = fn }
}

// NewGenerator wraps next for model.
func NewGenerator(next core.Generator, c *Cache, model registry.ModelConfig, opts ...Option) *Generator {
	g := &Generator{
		next:   next,
		cache:  c,
		model:  model.ID,
		params: model.Params,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements core.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	req := Request{Model: g.model, Prompt: prompt, Params: g.params}
	out, hit, err := g.cache.Do(ctx, req, func(ctx context.Context) (string, error) {
		return g.next.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}

	if g.observer != nil {
		if hit {
			g.observer.RecordCacheHit()
		} else {
			g.observer.RecordCacheMiss()
		}
	}
	if g.onLookup != nil {
		g.onLookup(ctx, hit)
	}
	return out, nil
}
