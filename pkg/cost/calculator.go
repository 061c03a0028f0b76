package cost

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/snow-ghost/factorsearch/pkg/registry"
	"github.com/snow-ghost/factorsearch/pkg/tokens"
)

// CostResult represents the calculated cost breakdown
type CostResult struct {
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
	Currency     string  `json:"currency"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
}

// CalcCost calculates the cost for usage and pricing
func CalcCost(u tokens.Usage, p registry.Pricing) (inputCost, outputCost, total float64) {
	inputCost = round6(float64(u.PromptTokens) * p.InputPer1K / 1000.0)
	outputCost = round6(float64(u.CompletionTokens) * p.OutputPer1K / 1000.0)
	return inputCost, outputCost, round6(inputCost + outputCost)
}

func round6(v float64) float64 {
	return math.Round(v*1000000) / 1000000
}

// Result builds a CostResult for one generation.
func Result(u tokens.Usage, p registry.Pricing) CostResult {
	in, out, total := CalcCost(u, p)
	return CostResult{
		InputCost:    in,
		OutputCost:   out,
		TotalCost:    total,
		Currency:     p.Currency,
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

// Entry aggregates the usage of one model.
type Entry struct {
	ModelID  string       `json:"model_id"`
	Requests int          `json:"requests"`
	Usage    tokens.Usage `json:"usage"`
	Cost     CostResult   `json:"cost"`
}

// Ledger accumulates usage and cost per model across a run. It is safe for
// concurrent use.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Record adds one generation and returns its cost.
func (l *Ledger) Record(model registry.ModelConfig, u tokens.Usage) CostResult {
	res := Result(u, model.Pricing)

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[model.ID]
	if !ok {
		e = &Entry{ModelID: model.ID, Cost: CostResult{Currency: model.Pricing.Currency}}
		l.entries[model.ID] = e
	}
	e.Requests++
	e.Usage.Add(u)
	e.Cost.InputCost = round6(e.Cost.InputCost + res.InputCost)
	e.Cost.OutputCost = round6(e.Cost.OutputCost + res.OutputCost)
	e.Cost.TotalCost = round6(e.Cost.TotalCost + res.TotalCost)
	e.Cost.InputTokens = e.Usage.PromptTokens
	e.Cost.OutputTokens = e.Usage.CompletionTokens
	e.Cost.TotalTokens = e.Usage.TotalTokens
	return res
}

// Entries returns a snapshot sorted by model ID.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Total sums every entry. Mixed currencies are reported as "mixed".
func (l *Ledger) Total() CostResult {
	var total CostResult
	for _, e := range l.Entries() {
		switch {
		case e.Cost.Currency == "":
		case total.Currency == "":
			total.Currency = e.Cost.Currency
		case total.Currency != e.Cost.Currency:
			total.Currency = "mixed"
		}
		total.InputCost = round6(total.InputCost + e.Cost.InputCost)
		total.OutputCost = round6(total.OutputCost + e.Cost.OutputCost)
		total.TotalCost = round6(total.TotalCost + e.Cost.TotalCost)
		total.InputTokens += e.Usage.PromptTokens
		total.OutputTokens += e.Usage.CompletionTokens
		total.TotalTokens += e.Usage.TotalTokens
	}
	return total
}

// Format renders a cost as "0.001234 USD".
func Format(c CostResult) string {
	currency := c.Currency
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.6f %s", c.TotalCost, currency)
}
