package optimizer

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Params are the DAP-UCB tuning knobs.
type Params struct {
	// ExplorationConstant is c in the UCB1 bonus c*sqrt(ln(t)/n).
	ExplorationConstant float64 `yaml:"exploration_constant" json:"exploration_constant" env:"EXPLORATION" validate:"gte=0"`
	// CandidatesPerStep is N, the rewrites requested per step.
	CandidatesPerStep int `yaml:"candidates_per_step" json:"candidates_per_step" env:"CANDIDATES" validate:"gte=1"`
	// PatienceThreshold is M, the non-improving selections tolerated
	// before a factor may freeze.
	PatienceThreshold int `yaml:"patience" json:"patience" env:"PATIENCE" validate:"gte=1"`
	// ImprovementDelta is ε. A factor whose largest improvement stays below
	// it freezes once patience runs out.
	ImprovementDelta float64 `yaml:"improvement_delta" json:"improvement_delta" env:"DELTA" validate:"gte=0"`
	// EvalConcurrency bounds concurrent candidate evaluations in one step.
	EvalConcurrency int `yaml:"eval_concurrency" json:"eval_concurrency" env:"EVAL_CONCURRENCY" validate:"gte=1"`
}

func DefaultParams() Params {
	return Params{
		ExplorationConstant: 2.0,
		CandidatesPerStep:   4,
		PatienceThreshold:   4,
		ImprovementDelta:    0.005,
		EvalConcurrency:     1,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid optimizer params: %w", err)
	}
	return nil
}
