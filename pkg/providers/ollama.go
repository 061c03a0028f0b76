package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snow-ghost/factorsearch/core"
	"github.com/snow-ghost/factorsearch/pkg/cost"
	"github.com/snow-ghost/factorsearch/pkg/limiter"
	"github.com/snow-ghost/factorsearch/pkg/observability"
	"github.com/snow-ghost/factorsearch/pkg/registry"
	"github.com/snow-ghost/factorsearch/pkg/tokens"
	"github.com/snow-ghost/factorsearch/pkg/tracing"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaRequest represents the request format for the Ollama generate API
type OllamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// OllamaResponse represents the response format from the Ollama generate API
type OllamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	CreatedAt       string `json:"created_at"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// OllamaGenerator is a core.Generator for a local Ollama server.
type OllamaGenerator struct {
	client  *http.Client
	baseURL string
	model   registry.ModelConfig
	role    string
	obs     *observability.Manager
	ledger  *cost.Ledger
	counter tokens.Counter
}

// NewOllamaGenerator creates a generator from model config
func NewOllamaGenerator(role string, mc registry.ModelConfig, obs *observability.Manager, ledger *cost.Ledger) *OllamaGenerator {
	baseURL := strings.TrimSuffix(mc.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	timeout := mc.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if obs == nil {
		obs = observability.NewNop()
	}
	if ledger == nil {
		ledger = cost.NewLedger()
	}

	return &OllamaGenerator{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		model:   mc,
		role:    role,
		obs:     obs,
		ledger:  ledger,
		counter: tokens.ForModel(mc.ModelName()),
	}
}

// Generate implements core.Generator.
func (p *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := p.obs.GetTracer().StartRequestSpan(ctx, p.role, p.model.ID, p.model.Provider)
	defer span.End()

	start := time.Now()
	out, err := p.generate(ctx, prompt)
	duration := time.Since(start)
	if err != nil {
		tracing.RecordSpanError(span, err)
		p.obs.RecordRequest(ctx, p.role, p.model, "error", duration, tokens.Usage{}, cost.CostResult{})
		return "", core.NewGenerationError(p.role, p.model.ID, limiter.StatusCode(err), err)
	}

	usage := tokens.Usage{
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		TotalTokens:      out.PromptEvalCount + out.EvalCount,
	}
	if usage.TotalTokens == 0 {
		usage = tokens.Estimate(p.counter, prompt, out.Response)
	}

	result := p.ledger.Record(p.model, usage)
	tracing.RecordSpanUsage(span, usage.PromptTokens, usage.CompletionTokens, result.TotalCost, result.Currency)
	tracing.RecordSpanSuccess(span)
	p.obs.RecordRequest(ctx, p.role, p.model, "success", duration, usage, result)

	return out.Response, nil
}

func (p *OllamaGenerator) generate(ctx context.Context, prompt string) (*OllamaResponse, error) {
	options := map[string]interface{}{
		"temperature": p.model.Params.Temperature,
	}
	if p.model.Params.TopP > 0 {
		options["top_p"] = p.model.Params.TopP
	}
	if p.model.Params.MaxTokens > 0 {
		options["num_predict"] = p.model.Params.MaxTokens
	}

	reqBody, err := json.Marshal(OllamaRequest{
		Model:   p.model.ModelName(),
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		httpErr := limiter.NewHTTPError(resp.StatusCode, "ollama API error", string(body))
		httpErr.RetryAfter = limiter.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, httpErr
	}

	var out OllamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return &out, nil
}
