package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Usage is the token accounting of one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter implements Counter using tiktoken-go
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads a named BPE encoding such as "cl100k_base".
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// HeuristicCounter estimates roughly four characters per token.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

var (
	mu       sync.Mutex
	counters = map[string]Counter{}
)

// ForModel returns a counter for model: its tiktoken encoding when known,
// else cl100k_base, else the character heuristic when no BPE file can be
// loaded. Counters are cached per model.
func ForModel(model string) Counter {
	mu.Lock()
	defer mu.Unlock()
	if c, ok := counters[model]; ok {
		return c
	}

	var c Counter = HeuristicCounter{}
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		c = &TiktokenCounter{encoding: enc}
	} else if tc, err := NewTiktokenCounter("cl100k_base"); err == nil {
		c = tc
	}
	counters[model] = c
	return c
}

// Estimate builds a Usage from prompt and completion text.
func Estimate(c Counter, prompt, completion string) Usage {
	in, out := c.Count(prompt), c.Count(completion)
	return Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}
