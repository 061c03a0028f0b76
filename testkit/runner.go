// Package testkit scores a rendered prompt against a set of examples by
// driving a worker model and an evaluator.
package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/factorsearch/core"
)

// Placeholder is substituted with each example's formatted input.
const Placeholder = "{input}"

// DefaultInputKeys are consulted in order by FormatInput.
var DefaultInputKeys = []string{"question", "prompt", "input"}

// Runner evaluates prompts. Worker calls for one Score run with at most
// Concurrency in flight (1 when unset); predictions keep example order.
type Runner struct {
	Worker      core.Generator
	Evaluator   core.Evaluator
	InputKeys   []string
	Concurrency int

	mu        sync.Mutex
	metricKey string
}

func NewRunner(worker core.Generator, evaluator core.Evaluator) *Runner {
	return &Runner{Worker: worker, Evaluator: evaluator}
}

// MetricKey returns the evaluator's primary metric, probing it on first use.
func (r *Runner) MetricKey() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.metricKey != "" {
		return r.metricKey, nil
	}
	key, err := core.PrimaryMetric(r.Evaluator)
	if err != nil {
		return "", err
	}
	r.metricKey = key
	return key, nil
}

// FormatInput returns the text placed into the prompt for ex: the first
// non-empty input key, else the whole example as JSON.
func (r *Runner) FormatInput(ex core.Example) string {
	keys := r.InputKeys
	if len(keys) == 0 {
		keys = DefaultInputKeys
	}
	for _, k := range keys {
		if ex.Has(k) {
			return ex.String(k)
		}
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(ex))
	}
	return string(b)
}

// Fill substitutes the placeholder in prompt. Other braces are left alone.
func (r *Runner) Fill(prompt string, ex core.Example) string {
	return strings.ReplaceAll(prompt, Placeholder, r.FormatInput(ex))
}

// Predict runs the worker once per example.
func (r *Runner) Predict(ctx context.Context, prompt string, examples []core.Example) ([]string, error) {
	predictions := make([]string, len(examples))
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ex := range examples {
		g.Go(func() error {
			out, err := r.Worker.Generate(gctx, r.Fill(prompt, ex))
			if err != nil {
				return fmt.Errorf("example %d: %w", i, err)
			}
			predictions[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return predictions, nil
}

// Score runs the worker over examples and evaluates the predictions. It
// returns the primary metric value and the full metric map.
func (r *Runner) Score(ctx context.Context, prompt string, examples []core.Example) (float64, map[string]float64, error) {
	key, err := r.MetricKey()
	if err != nil {
		return 0, nil, err
	}
	predictions, err := r.Predict(ctx, prompt, examples)
	if err != nil {
		return 0, nil, err
	}
	metrics, err := r.Evaluator.Evaluate(predictions, examples)
	if err != nil {
		return 0, nil, fmt.Errorf("evaluate predictions: %w", err)
	}
	score, err := core.MetricValue(metrics, key)
	if err != nil {
		return 0, metrics, err
	}
	return score, metrics, nil
}
