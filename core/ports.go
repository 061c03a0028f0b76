package core

import "context"

// Generator turns a prompt into text. The architect (decomposition and
// candidate rewriting) and the worker (answering validation items) are both
// Generators; transport adapters live in pkg/providers.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Evaluator scores predictions against references. Implementations must
// accept the probe call Evaluate([]string{}, []Example{{}}) without failing;
// the keys it returns name the metrics used for every real call.
type Evaluator interface {
	Evaluate(predictions []string, references []Example) (map[string]float64, error)
}

// MetricNamer is implemented by evaluators that declare their primary metric
// explicitly instead of relying on the probe call.
type MetricNamer interface {
	PrimaryMetric() string
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(predictions []string, references []Example) (map[string]float64, error)

func (f EvaluatorFunc) Evaluate(predictions []string, references []Example) (map[string]float64, error) {
	return f(predictions, references)
}
