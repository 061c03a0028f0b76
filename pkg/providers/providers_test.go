package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/pkg/cache"
	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/limiter"
	"github.com/snow-ghost/factorsearch/pkg/observability"
	"github.com/snow-ghost/factorsearch/pkg/registry"
)

func chatCompletion(content string, promptTokens, completionTokens int) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "qwen",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]interface{}{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

// mockOpenAIServer answers chat completions; status codes are served from
// failures first.
func mockOpenAIServer(t *testing.T, content string, usage bool, failures ...int) (*httptest.Server, *atomic.Int32, chan map[string]interface{}) {
	t.Helper()
	var calls atomic.Int32
	bodies := make(chan map[string]interface{}, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		select {
		case bodies <- body:
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		if n <= len(failures) {
			w.WriteHeader(failures[n-1])
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "unavailable", "type": "server_error"},
			})
			return
		}
		resp := chatCompletion(content, 12, 3)
		if !usage {
			resp = chatCompletion(content, 0, 0)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, bodies
}

func TestOpenAIGenerator(t *testing.T) {
	srv, _, bodies := mockOpenAIServer(t, "The answer is 4.", true)
	ledger := cost.NewLedger()
	mc := registry.ModelConfig{
		ID:       "vllm:qwen",
		Provider: "vllm",
		BaseURL:  srv.URL,
		Params:   registry.GenerationParams{Temperature: 0.2},
		Pricing:  registry.Pricing{Currency: "USD", InputPer1K: 1, OutputPer1K: 2},
	}

	gen, err := NewOpenAIGenerator("worker", mc, nil, ledger)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", out)

	body := <-bodies
	assert.Equal(t, "qwen", body["model"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "2+2?", messages[0].(map[string]interface{})["content"])

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Requests)
	assert.Equal(t, 15, entries[0].Usage.TotalTokens)
	assert.InDelta(t, 0.018, entries[0].Cost.TotalCost, 1e-9)
}

func TestOpenAIGenerator_EstimatesMissingUsage(t *testing.T) {
	srv, _, _ := mockOpenAIServer(t, "some completion text", false)
	ledger := cost.NewLedger()
	mc := registry.ModelConfig{ID: "lmstudio:local", Provider: "lmstudio", BaseURL: srv.URL}

	gen, err := NewOpenAIGenerator("worker", mc, nil, ledger)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "a reasonably long prompt for estimation")
	require.NoError(t, err)

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.Positive(t, entries[0].Usage.PromptTokens)
	assert.Positive(t, entries[0].Usage.CompletionTokens)
}

func TestOpenAIGenerator_StatusError(t *testing.T) {
	srv, _, _ := mockOpenAIServer(t, "", true, http.StatusServiceUnavailable)
	mc := registry.ModelConfig{ID: "vllm:qwen", Provider: "vllm", BaseURL: srv.URL}

	gen, err := NewOpenAIGenerator("architect", mc, nil, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "p")
	require.Error(t, err)

	var genErr *core.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "architect", genErr.Role)
	assert.Equal(t, http.StatusServiceUnavailable, genErr.StatusCode)
}

func TestOpenAIGenerator_RequiresKeyForHostedProviders(t *testing.T) {
	t.Setenv("FACTORSEARCH_TEST_KEY", "")
	mc := registry.ModelConfig{ID: "openai:gpt-4o-mini", Provider: "openai", APIKeyEnv: "FACTORSEARCH_TEST_KEY"}

	_, err := NewOpenAIGenerator("worker", mc, nil, nil)
	assert.Error(t, err)

	t.Setenv("FACTORSEARCH_TEST_KEY", "sk-test")
	_, err = NewOpenAIGenerator("worker", mc, nil, nil)
	assert.NoError(t, err)
}

func TestOllamaGenerator(t *testing.T) {
	var got OllamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(OllamaResponse{
			Model:           got.Model,
			Response:        "The answer is 7.",
			Done:            true,
			PromptEvalCount: 20,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	ledger := cost.NewLedger()
	mc := registry.ModelConfig{
		ID:       "ollama:llama2:7b-chat",
		Provider: "ollama",
		BaseURL:  srv.URL + "/",
		Params:   registry.GenerationParams{Temperature: 0.5, MaxTokens: 64},
	}
	gen := NewOllamaGenerator("worker", mc, nil, ledger)

	out, err := gen.Generate(context.Background(), "3+4?")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 7.", out)
	assert.Equal(t, "llama2:7b-chat", got.Model)
	assert.Equal(t, "3+4?", got.Prompt)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 64, got.Options["num_predict"])
	assert.Equal(t, 25, ledger.Entries()[0].Usage.TotalTokens)
}

func TestOllamaGenerator_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator("worker", registry.ModelConfig{ID: "ollama:x", Provider: "ollama", BaseURL: srv.URL}, nil, nil)

	_, err := gen.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, core.IsGenerationError(err))
	assert.Equal(t, http.StatusInternalServerError, limiter.StatusCode(err))

	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Contains(t, httpErr.Body, "model not loaded")
}

func TestFactory_MockProvider(t *testing.T) {
	reg := registry.GetDefaultRegistry()
	f := NewFactory(reg)

	gen, err := f.Build("worker", "mock:demo")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "The answer is 42")
}

func TestFactory_UnknownModel(t *testing.T) {
	f := NewFactory(&registry.Registry{})

	_, err := f.Build("worker", "vllm:missing")
	assert.Error(t, err)
}

func TestFactory_MockModeOverridesProvider(t *testing.T) {
	reg := &registry.Registry{Models: []registry.ModelConfig{
		{ID: "openai:gpt-4o-mini", Provider: "openai", APIKeyEnv: "FACTORSEARCH_UNSET_KEY"},
	}}
	f := NewFactory(reg, WithMockMode(true))

	gen, err := f.Build("architect", "openai:gpt-4o-mini")
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "Use [FACTOR_NAME_1] headers")
	require.NoError(t, err)
	assert.Contains(t, out, "[Instruction]")
}

func TestFactory_RetriesAndCaches(t *testing.T) {
	srv, calls, _ := mockOpenAIServer(t, "cached answer", true, http.StatusServiceUnavailable)
	reg := &registry.Registry{Models: []registry.ModelConfig{
		{ID: "vllm:qwen", Provider: "vllm", BaseURL: srv.URL},
	}}

	obs := observability.NewNop()
	cm, err := cache.New(cache.Config{MaxSize: 8, TTL: time.Minute})
	require.NoError(t, err)

	retry := limiter.DefaultRetryConfig()
	retry.BaseDelay = time.Millisecond
	retry.Jitter = false

	f := NewFactory(reg, WithObservability(obs), WithCache(cm), WithRetryConfig(retry))
	gen, err := f.Build("worker", "vllm:qwen")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, err := gen.Generate(context.Background(), "same prompt")
		require.NoError(t, err)
		assert.Equal(t, "cached answer", out)
	}

	assert.Equal(t, int32(2), calls.Load())
	met := obs.GetMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(met.RetriesTotal.WithLabelValues("vllm", "vllm:qwen", "status_503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.CacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.RequestsTotal.WithLabelValues("worker", "vllm", "vllm:qwen", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.RequestsTotal.WithLabelValues("worker", "vllm", "vllm:qwen", "success")))
}

func TestFactory_ArchitectIsNotCached(t *testing.T) {
	srv, calls, _ := mockOpenAIServer(t, "fresh candidates", true)
	reg := &registry.Registry{Models: []registry.ModelConfig{
		{ID: "vllm:qwen", Provider: "vllm", BaseURL: srv.URL},
	}}

	cm, err := cache.New(cache.Config{MaxSize: 8, TTL: time.Minute})
	require.NoError(t, err)

	f := NewFactory(reg, WithCache(cm))
	gen, err := f.Build("architect", "vllm:qwen")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := gen.Generate(context.Background(), "rewrite the Instruction factor")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, cm.Len())
}
