// Package mutate proposes replacement contents for a single factor of a
// composite prompt.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/snow-ghost/factorsearch/artifact"
	"github.com/snow-ghost/factorsearch/core"
)

// Separator delimits candidates in the architect response.
const Separator = "--- CANDIDATE ---"

// LLMMutator asks an architect model for n rewrites of one factor.
type LLMMutator struct {
	gen    core.Generator
	logger *slog.Logger
}

func NewLLMMutator(gen core.Generator, logger *slog.Logger) *LLMMutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMMutator{gen: gen, logger: logger}
}

// Mutate returns the non-empty candidates for factor. A response without any
// usable candidate yields an empty slice and no error.
func (m *LLMMutator) Mutate(ctx context.Context, c *artifact.Composite, factor string, n int) ([]string, error) {
	current, ok := c.Content(factor)
	if !ok {
		return nil, &artifact.UnknownFactorError{Name: factor}
	}

	response, err := m.gen.Generate(ctx, Prompt(c.TaskDescription(), c.Render(), factor, current, n))
	if err != nil {
		return nil, err
	}

	candidates := SplitCandidates(response)
	m.logger.DebugContext(ctx, "candidates generated",
		"factor", factor,
		"requested", n,
		"received", len(candidates),
	)
	return candidates, nil
}

// Prompt builds the rewrite instruction for one factor.
func Prompt(task, rendered, factor, current string, n int) string {
	return fmt.Sprintf(`You are a prompt engineering expert. You will be given a complete prompt that is structured into several factors. Your task is to rewrite ONE specific factor to improve the overall prompt's performance on its task.

The task is: %s

Here is the current full prompt:
--- FULL PROMPT ---
%s
--- END FULL PROMPT ---

You must rewrite ONLY the factor named '%s'. The current content of this factor is:
--- CURRENT FACTOR CONTENT ---
%s
--- END CURRENT FACTOR CONTENT ---

Generate %d diverse and creative alternative versions for the '%s' factor. Each new version should be a potential improvement.

Output each new version separated by '%s'. Do not include the factor name in your output.
`, task, rendered, factor, current, n, factor, Separator)
}

// SplitCandidates splits a response on Separator, trims every piece and
// drops the empty ones.
func SplitCandidates(response string) []string {
	parts := strings.Split(response, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
