// Package decompose discovers the initial factor structure of a prompt by
// asking an architect model to split a task into named blocks.
package decompose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snow-ghost/factorsearch/artifact"
	"github.com/snow-ghost/factorsearch/core"
)

// InputPlaceholder is replaced by each example's input when the worker prompt
// is built.
const InputPlaceholder = "{input}"

// Factor is one parsed block of an architect response.
type Factor struct {
	Name    string
	Content string
}

// Decomposer builds a Composite from a task description and a sample
// instance.
type Decomposer struct {
	architect  core.Generator
	logger     *slog.Logger
	tracer     trace.Tracer
	inputSlot  bool
	suggestion []string
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(d *Decomposer) { d.logger = l }
}

// WithTracer sets the tracer (default: the global otel provider).
func WithTracer(t trace.Tracer) Option {
	return func(d *Decomposer) { d.tracer = t }
}

// WithInputSlot controls whether an "Input" factor holding {input} is
// appended when no discovered factor contains the placeholder. On by default.
func WithInputSlot(enabled bool) Option {
	return func(d *Decomposer) { d.inputSlot = enabled }
}

// WithSuggestedFactors replaces the factor names offered to the architect as
// examples.
func WithSuggestedFactors(names ...string) Option {
	return func(d *Decomposer) { d.suggestion = names }
}

// New creates a Decomposer backed by the architect generator.
func New(architect core.Generator, opts ...Option) *Decomposer {
	d := &Decomposer{
		architect:  architect,
		logger:     slog.Default(),
		tracer:     otel.Tracer("github.com/snow-ghost/factorsearch/decompose"),
		inputSlot:  true,
		suggestion: []string{"Instruction", "Rationale", "Examples", "Output_Format", "Constraints", "Persona"},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscoverStructure asks the architect for a factor set. A response with no
// parsable block falls back to FallbackFactors; a failing generator call is
// returned as is.
func (d *Decomposer) DiscoverStructure(ctx context.Context, taskDescription, exampleInstance string) (*artifact.Composite, error) {
	ctx, span := d.tracer.Start(ctx, "decompose.discover")
	defer span.End()

	response, err := d.architect.Generate(ctx, d.MetaPrompt(taskDescription, exampleInstance))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	factors := ParseFactors(response)
	fallback := len(factors) == 0
	if fallback {
		d.logger.WarnContext(ctx, "architect response had no factor blocks, using fallback structure",
			"response_len", len(response))
		factors = FallbackFactors(taskDescription)
	}

	c := artifact.New(taskDescription)
	for _, f := range factors {
		c.AddFactor(f.Name, f.Content)
	}
	if d.inputSlot && !hasPlaceholder(c) {
		d.addInputSlot(ctx, c)
	}

	span.SetAttributes(
		attribute.Int("decompose.factors", c.Len()),
		attribute.Bool("decompose.fallback", fallback),
	)
	d.logger.InfoContext(ctx, "structure discovered",
		"factors", c.FactorNames(),
		"fallback", fallback,
	)
	return c, nil
}

// MetaPrompt is the structure discovery prompt sent to the architect.
func (d *Decomposer) MetaPrompt(taskDescription, exampleInstance string) string {
	quoted := make([]string, len(d.suggestion))
	for i, s := range d.suggestion {
		quoted[i] = "'" + s + "'"
	}
	return fmt.Sprintf(`You are an expert in prompt engineering. Your task is to decompose a complex task into a series of clear, modular, and effective prompt components (which we call 'factors').

Task Description: "%s"

Here is an example instance of the task:
--- EXAMPLE ---
%s
--- END EXAMPLE ---

Based on the task, identify the essential factors that a language model would need to generate a high-quality response. For each factor, provide a descriptive name and a brief, initial placeholder text. One factor must contain the literal placeholder %s where the task input will be inserted.

The output should be in a structured format, like this:

[FACTOR_NAME_1]
Initial placeholder content for factor 1.

[FACTOR_NAME_2]
Initial placeholder content for factor 2.

Common factors include, but are not limited to: %s. Choose the most relevant ones for this specific task.
`, taskDescription, exampleInstance, InputPlaceholder, strings.Join(quoted, ", "))
}

// FallbackFactors is the structure used when the architect response holds no
// factor block.
func FallbackFactors(taskDescription string) []Factor {
	return []Factor{
		{Name: "Instruction", Content: "Solve the following task: " + taskDescription},
		{Name: "Input", Content: InputPlaceholder},
		{Name: "Rationale", Content: "Think step by step to reach the solution."},
	}
}

// addInputSlot puts the placeholder into an existing "Input" factor, or adds
// one when the architect did not name one.
func (d *Decomposer) addInputSlot(ctx context.Context, c *artifact.Composite) {
	content, ok := c.Content("Input")
	if !ok {
		c.AddFactor("Input", InputPlaceholder)
		d.logger.InfoContext(ctx, "added input factor")
		return
	}
	if content = strings.TrimSpace(content); content != "" {
		content += "\n"
	}
	_ = c.UpdateFactor("Input", content+InputPlaceholder)
	d.logger.InfoContext(ctx, "added input placeholder to existing factor", "factor", "Input")
}

func hasPlaceholder(c *artifact.Composite) bool {
	for _, name := range c.FactorNames() {
		if content, _ := c.Content(name); strings.Contains(content, InputPlaceholder) {
			return true
		}
	}
	return false
}
