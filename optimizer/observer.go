package optimizer

import "time"

// Recorder receives per-step measurements. pkg/metrics provides the
// Prometheus implementation.
type Recorder interface {
	RecordStep(factor, outcome string, duration time.Duration)
	RecordCandidateScore(factor string, score float64)
	RecordFreeze(factor string)
}

// Step outcomes passed to Recorder.RecordStep.
const (
	OutcomeImproved  = "improved"
	OutcomeStagnant  = "stagnant"
	OutcomeEmpty     = "no_candidates"
	OutcomeError     = "error"
	OutcomeCompleted = "completed"
)

type nopRecorder struct{}

func (nopRecorder) RecordStep(string, string, time.Duration) {}
func (nopRecorder) RecordCandidateScore(string, float64)     {}
func (nopRecorder) RecordFreeze(string)                      {}

// StepReport describes one call to Step that selected a factor.
type StepReport struct {
	Step       int           `json:"step"`
	Factor     string        `json:"factor"`
	Candidates int           `json:"candidates"`
	Scores     []float64     `json:"scores,omitempty"`
	BestScore  float64       `json:"best_score"`
	Improved   bool          `json:"improved"`
	Frozen     bool          `json:"frozen"`
	Patience   int           `json:"patience"`
	Duration   time.Duration `json:"duration_ns"`
}

// RunSummary is returned by Run.
type RunSummary struct {
	StepsRun   int          `json:"steps_run"`
	TotalSteps int          `json:"total_steps"`
	Converged  bool         `json:"converged"`
	Frozen     []string     `json:"frozen"`
	Reports    []StepReport `json:"reports"`
}
