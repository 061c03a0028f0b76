// Package config loads run configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/factorsearch/optimizer"
	"github.com/snow-ghost/factorsearch/pkg/cache"
	"github.com/snow-ghost/factorsearch/pkg/logging"
	"github.com/snow-ghost/factorsearch/pkg/registry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FACTORSEARCH_"

// Config is one optimization run.
type Config struct {
	Dataset         string `yaml:"dataset" env:"DATASET" validate:"required"`
	DataDir         string `yaml:"data_dir" env:"DATA_DIR" validate:"required"`
	TaskDescription string `yaml:"task_description" env:"TASK"`
	Evaluator       string `yaml:"evaluator" env:"EVALUATOR" validate:"oneof=accuracy rouge-L"`
	ValSplit        string `yaml:"val_split" env:"VAL_SPLIT" validate:"required"`
	TestSplit       string `yaml:"test_split" env:"TEST_SPLIT" validate:"required"`
	ValSize         int    `yaml:"val_size" env:"VAL_SIZE" validate:"gte=0"`
	TestSize        int    `yaml:"test_size" env:"TEST_SIZE" validate:"gte=0"` // 0 keeps the whole split
	Steps           int    `yaml:"steps" env:"STEPS" validate:"gte=1"`
	Seed            uint64 `yaml:"seed" env:"SEED"`
	OutputDir       string `yaml:"output_dir" env:"OUTPUT_DIR"`

	Optimizer optimizer.Params `yaml:"optimizer"`
	Roles     Roles            `yaml:"roles"`

	RegistryPath string                 `yaml:"registry" env:"REGISTRY"`
	Models       []registry.ModelConfig `yaml:"models" validate:"dive"`
	LLMMode      string                 `yaml:"llm_mode" env:"LLM_MODE" validate:"omitempty,oneof=live mock"`

	Cache          CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Logging        logging.Config `yaml:"logging" envPrefix:"LOG_"`
	MetricsAddr    string         `yaml:"metrics_addr" env:"METRICS_ADDR"`
	JaegerEndpoint string         `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
}

// Roles binds the architect and worker to registry model IDs.
type Roles struct {
	Architect string `yaml:"architect" env:"ARCHITECT_MODEL" validate:"required"`
	Worker    string `yaml:"worker" env:"WORKER_MODEL" validate:"required"`
}

// CacheConfig controls the worker response cache. Architect calls are never
// cached.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	MaxSize int           `yaml:"max_size" env:"MAX_SIZE" validate:"gte=1"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// Default returns the stock experiment configuration.
func Default() Config {
	return Config{
		Dataset:   "gsm8k",
		DataDir:   "data/gsm8k",
		Evaluator: "accuracy",
		ValSplit:  "train",
		TestSplit: "test",
		ValSize:   200,
		Steps:     6,
		Seed:      42,
		OutputDir: "results",
		Optimizer: optimizer.DefaultParams(),
		Roles: Roles{
			Architect: "vllm:qwen2.5-7b-instruct",
			Worker:    "ollama:llama2:7b-chat",
		},
		RegistryPath: "models.yaml",
		LLMMode:      "live",
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 4096,
			TTL:     time.Hour,
		},
		Logging: logging.DefaultConfig(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (skipped when empty), applies FACTORSEARCH_* environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MockMode reports whether every role runs on the offline mock generator.
func (c Config) MockMode() bool {
	return c.LLMMode == "mock"
}

// Registry merges the registry file, inline models and built-in defaults, in
// that order of precedence, and checks both roles resolve.
func (c Config) Registry() (*registry.Registry, error) {
	reg := &registry.Registry{}
	if c.RegistryPath != "" {
		fromFile, err := registry.Load(c.RegistryPath)
		if err != nil {
			return nil, err
		}
		reg = fromFile
	}
	reg.Merge(&registry.Registry{Models: c.Models})
	reg.Merge(registry.GetDefaultRegistry())

	if err := reg.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	for role, id := range map[string]string{"architect": c.Roles.Architect, "worker": c.Roles.Worker} {
		if reg.FindModel(id) == nil {
			errs = append(errs, fmt.Errorf("%s model %q not found in registry", role, id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return reg, nil
}

// CacheOptions converts the cache section.
func (c Config) CacheOptions() cache.Config {
	return cache.Config{MaxSize: c.Cache.MaxSize, TTL: c.Cache.TTL}
}
