package mock

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Generator is a scripted core.Generator. Queued responses are returned in
// order; once the queue is empty the responder function (if any) answers.
type Generator struct {
	mu        sync.Mutex
	queue     []string
	responder func(prompt string) (string, error)
	failures  []error
	prompts   []string
}

// NewGenerator returns a generator that replays responses in order and then
// answers "" forever.
func NewGenerator(responses ...string) *Generator {
	return &Generator{queue: append([]string(nil), responses...)}
}

// NewFunc returns a generator answering every prompt with fn.
func NewFunc(fn func(prompt string) (string, error)) *Generator {
	return &Generator{responder: fn}
}

// Enqueue appends scripted responses.
func (g *Generator) Enqueue(responses ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, responses...)
}

// FailNext makes the next call return err.
func (g *Generator) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, err)
}

// Generate implements core.Generator.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		g.mu.Unlock()
		return "", err
	}
	if len(g.queue) > 0 {
		resp := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		return resp, nil
	}
	responder := g.responder
	g.mu.Unlock()

	if responder != nil {
		return responder(prompt)
	}
	return "", nil
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// Calls returns the number of Generate calls.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

var candidateCount = regexp.MustCompile(`Generate (\d+) diverse`)

// NewDemo returns a generator that plays architect and worker without a
// model: it answers decomposition prompts with a factor set, rewrite prompts
// with numbered candidates and anything else with a fixed answer line. Used
// by the CLI when the provider is "mock".
func NewDemo() *Generator {
	var mu sync.Mutex
	round := 0
	return NewFunc(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "[FACTOR_NAME_1]"):
			return "[Instruction]\nSolve the task described below.\n\n" +
				"[Input]\n{input}\n\n" +
				"[Output_Format]\nEnd with: The answer is <answer>.", nil
		case strings.Contains(prompt, "--- CANDIDATE ---"):
			n := 1
			if m := candidateCount.FindStringSubmatch(prompt); m != nil {
				n, _ = strconv.Atoi(m[1])
			}
			mu.Lock()
			round++
			r := round
			mu.Unlock()
			parts := make([]string, 0, n)
			for i := 1; i <= n; i++ {
				parts = append(parts, fmt.Sprintf("Variant %d.%d: answer precisely and keep {input} in view.", r, i))
			}
			return strings.Join(parts, "\n--- CANDIDATE ---\n"), nil
		default:
			return "Let's think step by step. The answer is 42.", nil
		}
	})
}
