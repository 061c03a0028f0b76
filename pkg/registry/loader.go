package registry

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a registry YAML file. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Registry{Models: []ModelConfig{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates registry YAML.
func Parse(data []byte) (*Registry, error) {
	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse registry YAML: %w", err)
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &registry, nil
}

// Validate checks field constraints and rejects duplicate IDs.
func (r *Registry) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid registry: %w", err)
	}
	seen := make(map[string]bool, len(r.Models))
	for _, m := range r.Models {
		if seen[m.ID] {
			return fmt.Errorf("invalid registry: duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// Save writes the registry as YAML.
func (r *Registry) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// GetDefaultRegistry returns the models used by the reference experiments:
// a Qwen architect served by vLLM, a Llama worker on Ollama, hosted
// OpenAI/OpenRouter alternatives and the offline mock.
func GetDefaultRegistry() *Registry {
	return &Registry{
		Models: []ModelConfig{
			{
				ID:       "mock:demo",
				Provider: "mock",
				Tags:     []string{"offline"},
			},
			{
				ID:        "vllm:qwen2.5-7b-instruct",
				Provider:  "vllm",
				Model:     "Qwen/Qwen2.5-7B-Instruct",
				BaseURL:   "http://localhost:8000/v1",
				APIKeyEnv: "VLLM_API_KEY",
				Params:    GenerationParams{Temperature: 0.7, TopP: 1.0},
				MaxRPM:    600,
				Tags:      []string{"architect", "local"},
			},
			{
				ID:       "ollama:llama2:7b-chat",
				Provider: "ollama",
				BaseURL:  "http://localhost:11434",
				Params:   GenerationParams{Temperature: 0, MaxTokens: 512},
				MaxRPM:   600,
				Tags:     []string{"worker", "local"},
			},
			{
				ID:        "openai:gpt-4o-mini",
				Provider:  "openai",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Pricing:   Pricing{Currency: "USD", InputPer1K: 0.00015, OutputPer1K: 0.0006},
				Params:    GenerationParams{Temperature: 0.7},
				MaxRPM:    10000,
				MaxTPM:    200000,
				Tags:      []string{"architect", "worker", "hosted"},
			},
			{
				ID:        "openrouter:meta-llama/llama-3-8b-instruct",
				Provider:  "openrouter",
				BaseURL:   "https://openrouter.ai/api/v1",
				APIKeyEnv: "OPENROUTER_API_KEY",
				Pricing:   Pricing{Currency: "USD", InputPer1K: 0.00003, OutputPer1K: 0.00006},
				Params:    GenerationParams{Temperature: 0, MaxTokens: 512},
				MaxRPM:    200,
				Tags:      []string{"worker", "hosted"},
			},
		},
	}
}
