package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_QueueThenEmpty(t *testing.T) {
	g := NewGenerator("a", "b")
	ctx := context.Background()

	for _, want := range []string{"a", "b", "", ""} {
		got, err := g.Generate(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 4, g.Calls())
}

func TestGenerator_ResponderAndFailures(t *testing.T) {
	g := NewFunc(func(p string) (string, error) { return strings.ToUpper(p), nil })
	boom := errors.New("boom")
	g.FailNext(boom)
	g.Enqueue("queued")

	_, err := g.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, boom)

	got, err := g.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "queued", got)

	got, err = g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)
	assert.Equal(t, []string{"x", "x", "hello"}, g.Prompts())
}

func TestGenerator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGenerator("a").Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerator_Concurrent(t *testing.T) {
	g := NewFunc(func(p string) (string, error) { return p, nil })
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Generate(context.Background(), "p")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, g.Calls())
}

func TestDemo(t *testing.T) {
	g := NewDemo()
	ctx := context.Background()

	structure, err := g.Generate(ctx, "emit blocks like [FACTOR_NAME_1]")
	require.NoError(t, err)
	assert.Contains(t, structure, "[Input]\n{input}")

	cands, err := g.Generate(ctx, "Generate 3 diverse versions. separated by '--- CANDIDATE ---'")
	require.NoError(t, err)
	assert.Len(t, strings.Split(cands, "--- CANDIDATE ---"), 3)

	answer, err := g.Generate(ctx, "What is 6*7?")
	require.NoError(t, err)
	assert.Contains(t, answer, "The answer is 42")
}
