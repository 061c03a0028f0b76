package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/factorsearch/llm/mock"
	"github.com/snow-ghost/factorsearch/pkg/registry"
)

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) RecordCacheHit()  { o.hits++ }
func (o *countingObserver) RecordCacheMiss() { o.misses++ }

func TestGenerator(t *testing.T) {
	cm := newTestCache(t)
	inner := mock.NewFunc(func(prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	obs := &countingObserver{}
	var lookups []bool
	gen := NewGenerator(inner, cm, registry.ModelConfig{ID: "mock:demo"},
		WithObserver(obs),
		WithLookupHook(func(_ context.Context, hit bool) { lookups = append(lookups, hit) }),
	)

	for _, prompt := range []string{"a", "b", "a", "a"} {
		out, err := gen.Generate(context.Background(), prompt)
		require.NoError(t, err)
		assert.Equal(t, "echo: "+prompt, out)
	}

	assert.Equal(t, 2, inner.Calls())
	assert.Equal(t, 2, obs.hits)
	assert.Equal(t, 2, obs.misses)
	assert.Equal(t, []bool{false, false, true, true}, lookups)
}

func TestGeneratorKeysByModel(t *testing.T) {
	cm := newTestCache(t)
	inner := mock.NewGenerator("one", "two")

	a := NewGenerator(inner, cm, registry.ModelConfig{ID: "vllm:a"})
	b := NewGenerator(inner, cm, registry.ModelConfig{ID: "vllm:b"})

	outA, err := a.Generate(context.Background(), "p")
	require.NoError(t, err)
	outB, err := b.Generate(context.Background(), "p")
	require.NoError(t, err)

	assert.Equal(t, "one", outA)
	assert.Equal(t, "two", outB)
}

func TestGeneratorPropagatesErrors(t *testing.T) {
	cm := newTestCache(t)
	inner := mock.NewGenerator("later")
	inner.FailNext(errors.New("unavailable"))
	gen := NewGenerator(inner, cm, registry.ModelConfig{ID: "m"})

	_, err := gen.Generate(context.Background(), "p")
	require.Error(t, err)

	out, err := gen.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "later", out)
}
