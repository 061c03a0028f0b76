package registry

import "time"

// Pricing represents pricing information for a model
type Pricing struct {
	Currency    string  `json:"currency" yaml:"currency"`
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// GenerationParams are sampling settings sent with every request.
type GenerationParams struct {
	Temperature float32 `json:"temperature" yaml:"temperature"`
	TopP        float32 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// ModelConfig describes one model endpoint the architect or worker role can
// be bound to.
type ModelConfig struct {
	ID        string           `json:"id" yaml:"id" validate:"required"` // "vllm:qwen2.5-7b"
	Provider  string           `json:"provider" yaml:"provider" validate:"required,oneof=openai vllm openrouter lmstudio ollama mock"`
	Model     string           `json:"model" yaml:"model"` // served model name; defaults to the part of ID after ':'
	BaseURL   string           `json:"base_url" yaml:"base_url"`
	APIKeyEnv string           `json:"api_key_env" yaml:"api_key_env"`
	Pricing   Pricing          `json:"pricing" yaml:"pricing"`
	Params    GenerationParams `json:"params" yaml:"params"`
	Timeout   time.Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRPM    int              `json:"max_rpm,omitempty" yaml:"max_rpm,omitempty" validate:"gte=0"` // requests per minute
	MaxTPM    int              `json:"max_tpm,omitempty" yaml:"max_tpm,omitempty" validate:"gte=0"` // tokens per minute
	Tags      []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ModelName returns the name sent to the provider.
func (m ModelConfig) ModelName() string {
	if m.Model != "" {
		return m.Model
	}
	for i := 0; i < len(m.ID); i++ {
		if m.ID[i] == ':' {
			return m.ID[i+1:]
		}
	}
	return m.ID
}

// Registry represents the model registry
type Registry struct {
	Models []ModelConfig `json:"models" yaml:"models" validate:"dive"`
}

// FindModel returns a model configuration by ID
func (r *Registry) FindModel(id string) *ModelConfig {
	for i := range r.Models {
		if r.Models[i].ID == id {
			return &r.Models[i]
		}
	}
	return nil
}

// GetModelsByProvider returns all models for a specific provider
func (r *Registry) GetModelsByProvider(provider string) []ModelConfig {
	var models []ModelConfig
	for _, model := range r.Models {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	return models
}

// GetModelsByTag returns all models with a specific tag
func (r *Registry) GetModelsByTag(tag string) []ModelConfig {
	var models []ModelConfig
	for _, model := range r.Models {
		for _, modelTag := range model.Tags {
			if modelTag == tag {
				models = append(models, model)
				break
			}
		}
	}
	return models
}

// Merge adds models from other whose IDs are not present yet.
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for _, m := range other.Models {
		if r.FindModel(m.ID) == nil {
			r.Models = append(r.Models, m)
		}
	}
}
