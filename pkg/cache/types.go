// Package cache memoizes worker completions. Scoring repeats the same
// (model, prompt) pair often: every candidate of a factor shares the other
// factors, and the test split reuses prompts seen during optimization.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snow-ghost/factorsearch/pkg/registry"
)

// Key is the hex SHA-256 of a Request.
type Key string

// Config sizes the cache.
type Config struct {
	MaxSize int           `json:"max_size" yaml:"max_size" validate:"gte=1"`
	TTL     time.Duration `json:"ttl" yaml:"ttl"` // 0 keeps entries until evicted
}

func DefaultConfig() Config {
	return Config{MaxSize: 4096, TTL: time.Hour}
}

// Request identifies one completion: the same model, sampling params and
// prompt map to the same key.
type Request struct {
	Model  string                    `json:"model"`
	Prompt string                    `json:"prompt"`
	Params registry.GenerationParams `json:"params"`
}

// KeyFor hashes req.
func KeyFor(req Request) (Key, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	sum := sha256.Sum256(data)
	return Key(hex.EncodeToString(sum[:])), nil
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Shared      int64 `json:"shared"` // misses answered by another caller's in-flight call
	Size        int   `json:"size"`
	MaxSize     int   `json:"max_size"`
}

// HitRate is hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
