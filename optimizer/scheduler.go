// Package optimizer implements DAP-UCB: a UCB1 bandit over the factors of a
// composite prompt with a patience rule that freezes factors which never
// produced a meaningful improvement.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/factorsearch/artifact"
	"github.com/snow-ghost/factorsearch/core"
)

// Status is the result of a Step.
type Status int

const (
	StatusContinue Status = iota
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Mutator proposes up to n replacement contents for one factor.
type Mutator interface {
	Mutate(ctx context.Context, c *artifact.Composite, factor string, n int) ([]string, error)
}

// Scorer scores a rendered prompt on a set of examples. testkit.Runner
// implements it.
type Scorer interface {
	Score(ctx context.Context, prompt string, examples []core.Example) (float64, map[string]float64, error)
}

// Scheduler drives the search over one composite. Step calls must be
// serialized by the caller.
type Scheduler struct {
	composite  *artifact.Composite
	mutator    Mutator
	scorer     Scorer
	validation []core.Example
	params     Params

	totalSteps  int
	bestContent map[string]string

	rng      *rand.Rand
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
	onStep   func(StepReport)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand sets the source used for forced exploration.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// WithSeed seeds forced exploration deterministically.
func WithSeed(seed uint64) Option {
	return func(s *Scheduler) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithStepCallback registers fn to be called after every step that selected
// a factor.
func WithStepCallback(fn func(StepReport)) Option {
	return func(s *Scheduler) { s.onStep = fn }
}

// New creates a scheduler for c. The global step counter starts at the sum
// of the factors' selections so a composite restored from a manifest resumes
// with a consistent exploration bonus.
func New(c *artifact.Composite, mutator Mutator, scorer Scorer, validation []core.Example, params Params, opts ...Option) (*Scheduler, error) {
	if c == nil {
		return nil, errors.New("optimizer: nil composite")
	}
	if mutator == nil || scorer == nil {
		return nil, errors.New("optimizer: mutator and scorer are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		composite:   c,
		mutator:     mutator,
		scorer:      scorer,
		validation:  validation,
		params:      params,
		bestContent: make(map[string]string),
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/snow-ghost/factorsearch/optimizer"),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range c.FactorNames() {
		st, _ := c.Stats(name)
		s.totalSteps += st.Selections
	}
	return s, nil
}

// Composite returns the composite being optimized.
func (s *Scheduler) Composite() *artifact.Composite { return s.composite }

// TotalSteps returns the global step counter, including steps that produced
// no candidates.
func (s *Scheduler) TotalSteps() int { return s.totalSteps }

func (s *Scheduler) Params() Params { return s.params }

// BestContent returns the content that achieved the factor's best score.
// It is kept for reporting only; the composite holds the content committed
// by the latest step.
func (s *Scheduler) BestContent(name string) (string, bool) {
	content, ok := s.bestContent[name]
	return content, ok
}

// SelectFactor picks the next factor to rewrite. It returns false when every
// factor is frozen.
func (s *Scheduler) SelectFactor() (string, bool) {
	var active, unexplored []string
	for _, name := range s.composite.FactorNames() {
		st, _ := s.composite.Stats(name)
		if st.Frozen {
			continue
		}
		active = append(active, name)
		if st.Selections == 0 {
			unexplored = append(unexplored, name)
		}
	}
	if len(active) == 0 {
		return "", false
	}
	if len(unexplored) > 0 {
		return unexplored[s.rng.IntN(len(unexplored))], true
	}

	best, bestUCB := "", math.Inf(-1)
	for _, name := range active {
		st, _ := s.composite.Stats(name)
		if u := s.ucb(st); best == "" || u > bestUCB {
			best, bestUCB = name, u
		}
	}
	return best, true
}

func (s *Scheduler) ucb(st artifact.FactorStats) float64 {
	n := float64(st.Selections)
	t := math.Max(float64(s.totalSteps), 1)
	return st.CumulativeScore/n + s.params.ExplorationConstant*math.Sqrt(math.Log(t)/n)
}

type scored struct {
	content string
	score   float64
}

// Step performs one DAP-UCB iteration. On error nothing is mutated.
func (s *Scheduler) Step(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusContinue, err
	}

	factor, ok := s.SelectFactor()
	if !ok {
		s.logger.InfoContext(ctx, "all factors frozen, optimization complete", "total_steps", s.totalSteps)
		s.recorder.RecordStep("", OutcomeCompleted, 0)
		return StatusCompleted, nil
	}

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "optimizer.step", trace.WithAttributes(
		attribute.String("factor", factor),
		attribute.Int("step", s.totalSteps+1),
	))
	defer span.End()

	s.logger.InfoContext(ctx, "optimizing factor", "step", s.totalSteps+1, "factor", factor)

	candidates, err := s.mutator.Mutate(ctx, s.composite, factor, s.params.CandidatesPerStep)
	if err != nil {
		return s.fail(ctx, span, factor, start, fmt.Errorf("generate candidates for %q: %w", factor, err))
	}

	if len(candidates) == 0 {
		s.totalSteps++
		s.logger.WarnContext(ctx, "no candidates were generated, skipping step", "factor", factor)
		span.SetAttributes(attribute.String("outcome", OutcomeEmpty))
		s.recorder.RecordStep(factor, OutcomeEmpty, time.Since(start))
		s.report(StepReport{Step: s.totalSteps, Factor: factor, BestScore: artifact.NoScore, Duration: time.Since(start)})
		return StatusContinue, nil
	}

	scores, err := s.evaluate(ctx, factor, candidates)
	if err != nil {
		return s.fail(ctx, span, factor, start, err)
	}

	current, _ := s.composite.Content(factor)
	best := scored{content: current, score: artifact.NoScore}
	for i, c := range candidates {
		s.recorder.RecordCandidateScore(factor, scores[i])
		if scores[i] > best.score {
			best = scored{content: c, score: scores[i]}
		}
	}

	var improved, frozen bool
	var patience int
	err = s.composite.UpdateStats(factor, func(st *artifact.FactorStats) {
		if best.score > st.BestScoreEver {
			st.MaxImprovementEver = math.Max(st.MaxImprovementEver, best.score-st.BestScoreEver)
			st.BestScoreEver = best.score
			st.PatienceCounter = 0
			improved = true
		} else {
			st.PatienceCounter++
		}
		st.CumulativeScore += best.score
		st.Selections++

		if st.PatienceCounter >= s.params.PatienceThreshold && st.MaxImprovementEver < s.params.ImprovementDelta {
			st.Frozen = true
		}
		frozen = st.Frozen
		patience = st.PatienceCounter
	})
	if err != nil {
		return s.fail(ctx, span, factor, start, err)
	}
	s.totalSteps++

	if err := s.composite.UpdateFactor(factor, best.content); err != nil {
		return StatusContinue, err
	}
	if improved {
		s.bestContent[factor] = best.content
	}

	outcome := OutcomeStagnant
	if improved {
		outcome = OutcomeImproved
		s.logger.InfoContext(ctx, "improvement found", "factor", factor, "best_score", best.score)
	} else {
		s.logger.InfoContext(ctx, "no improvement", "factor", factor,
			"patience", patience, "patience_threshold", s.params.PatienceThreshold)
	}
	if frozen {
		s.logger.InfoContext(ctx, "factor frozen due to stagnation", "factor", factor)
		s.recorder.RecordFreeze(factor)
	}

	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Float64("best_score", best.score),
		attribute.Bool("frozen", frozen),
	)
	s.recorder.RecordStep(factor, outcome, time.Since(start))
	s.report(StepReport{
		Step:       s.totalSteps,
		Factor:     factor,
		Candidates: len(candidates),
		Scores:     scores,
		BestScore:  best.score,
		Improved:   improved,
		Frozen:     frozen,
		Patience:   patience,
		Duration:   time.Since(start),
	})
	return StatusContinue, nil
}

// evaluate scores every candidate on a shadow copy of the composite. Scores
// are returned in candidate order.
func (s *Scheduler) evaluate(ctx context.Context, factor string, candidates []string) ([]float64, error) {
	prompts := make([]string, len(candidates))
	for i, candidate := range candidates {
		shadow, err := s.composite.WithFactor(factor, candidate)
		if err != nil {
			return nil, err
		}
		prompts[i] = shadow.Render()
	}

	scores := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.EvalConcurrency)
	for i, prompt := range prompts {
		g.Go(func() error {
			cctx, span := s.tracer.Start(gctx, "optimizer.evaluate_candidate",
				trace.WithAttributes(attribute.Int("candidate", i)))
			defer span.End()

			score, _, err := s.scorer.Score(cctx, prompt, s.validation)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("score candidate %d for %q: %w", i, factor, err)
			}
			span.SetAttributes(attribute.Float64("score", score))
			s.logger.DebugContext(cctx, "candidate scored", "factor", factor, "candidate", i, "score", score)
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *Scheduler) fail(ctx context.Context, span trace.Span, factor string, start time.Time, err error) (Status, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.ErrorContext(ctx, "step failed", "factor", factor, "error", err)
	s.recorder.RecordStep(factor, OutcomeError, time.Since(start))
	return StatusContinue, err
}

func (s *Scheduler) report(r StepReport) {
	if s.onStep != nil {
		s.onStep(r)
	}
}

// Run calls Step until the search converges, maxSteps steps have run or ctx
// is cancelled. Cancellation is observed between steps.
func (s *Scheduler) Run(ctx context.Context, maxSteps int) (RunSummary, error) {
	if maxSteps < 1 {
		return RunSummary{}, fmt.Errorf("optimizer: maxSteps must be positive, got %d", maxSteps)
	}

	var summary RunSummary
	prev := s.onStep
	s.onStep = func(r StepReport) {
		summary.Reports = append(summary.Reports, r)
		if prev != nil {
			prev(r)
		}
	}
	defer func() { s.onStep = prev }()

	var runErr error
	for summary.StepsRun < maxSteps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		status, err := s.Step(ctx)
		if err != nil {
			runErr = err
			break
		}
		if status == StatusCompleted {
			summary.Converged = true
			break
		}
		summary.StepsRun++
	}

	summary.TotalSteps = s.totalSteps
	summary.Frozen = s.frozen()
	if !summary.Converged && runErr == nil {
		summary.Converged = len(summary.Frozen) == s.composite.Len()
	}
	return summary, runErr
}

func (s *Scheduler) frozen() []string {
	out := []string{}
	for _, name := range s.composite.FactorNames() {
		if st, _ := s.composite.Stats(name); st.Frozen {
			out = append(out, name)
		}
	}
	return out
}
