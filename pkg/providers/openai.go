package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/observability"
	"github.com/snow-ghost/factorsearch/pkg/registry"
	"github.com/snow-ghost/factorsearch/pkg/tokens"
	"github.com/snow-ghost/factorsearch/pkg/tracing"
)

// Default endpoints for OpenAI-compatible providers
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"vllm":       "http://localhost:8000/v1",
	"lmstudio":   "http://localhost:1234/v1",
}

// Local servers accept any bearer token.
var keyOptional = map[string]bool{
	"vllm":     true,
	"lmstudio": true,
}

// OpenAIGenerator is a core.Generator for OpenAI-compatible chat APIs
// (openai, vllm, openrouter, lmstudio). Each prompt is sent as a single user
// message.
type OpenAIGenerator struct {
	client  *openai.Client
	model   registry.ModelConfig
	role    string
	obs     *observability.Manager
	ledger  *cost.Ledger
	counter tokens.Counter
}

// NewOpenAIGenerator creates a generator from model config. The API key is
// read from the environment variable named by APIKeyEnv.
func NewOpenAIGenerator(role string, mc registry.ModelConfig, obs *observability.Manager, ledger *cost.Ledger) (*OpenAIGenerator, error) {
	apiKey := ""
	if mc.APIKeyEnv != "" {
		apiKey = os.Getenv(mc.APIKeyEnv)
	}
	if apiKey == "" {
		if !keyOptional[mc.Provider] {
			return nil, fmt.Errorf("API key not found in environment variable %q for model %s", mc.APIKeyEnv, mc.ID)
		}
		apiKey = "EMPTY"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = mc.BaseURL
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURLs[mc.Provider]
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("no base URL for provider %s", mc.Provider)
	}

	if obs == nil {
		obs = observability.NewNop()
	}
	if ledger == nil {
		ledger = cost.NewLedger()
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(config),
		model:   mc,
		role:    role,
		obs:     obs,
		ledger:  ledger,
		counter: tokens.ForModel(mc.ModelName()),
	}, nil
}

// Generate implements core.Generator.
func (p *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if p.model.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.model.Timeout)
		defer cancel()
	}

	ctx, span := p.obs.GetTracer().StartRequestSpan(ctx, p.role, p.model.ID, p.model.Provider)
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model: p.model.ModelName(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.model.Params.Temperature,
		TopP:        p.model.Params.TopP,
		MaxTokens:   p.model.Params.MaxTokens,
	}

	start := time.Now()
	response, err := p.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	if err != nil {
		tracing.RecordSpanError(span, err)
		p.obs.RecordRequest(ctx, p.role, p.model, "error", duration, tokens.Usage{}, cost.CostResult{})
		return "", core.NewGenerationError(p.role, p.model.ID, openAIStatus(err), fmt.Errorf("openai chat completion failed: %w", err))
	}
	if len(response.Choices) == 0 {
		err := errors.New("openai chat completion returned no choices")
		tracing.RecordSpanError(span, err)
		p.obs.RecordRequest(ctx, p.role, p.model, "error", duration, tokens.Usage{}, cost.CostResult{})
		return "", core.NewGenerationError(p.role, p.model.ID, 0, err)
	}

	text := response.Choices[0].Message.Content
	usage := tokens.Usage{
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = tokens.Estimate(p.counter, prompt, text)
	}

	result := p.ledger.Record(p.model, usage)
	tracing.RecordSpanUsage(span, usage.PromptTokens, usage.CompletionTokens, result.TotalCost, result.Currency)
	tracing.RecordSpanSuccess(span)
	p.obs.RecordRequest(ctx, p.role, p.model, "success", duration, usage, result)

	return text, nil
}

// openAIStatus extracts the HTTP status from go-openai errors.
func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
