package artifact

// NoScore is the BestScoreEver of a factor that has never been scored. It
// assumes evaluator scores are non-negative.
const NoScore = -1.0

// FactorStats carries the bandit statistics of one factor.
type FactorStats struct {
	Selections         int     `json:"selections"`
	CumulativeScore    float64 `json:"cumulative_score"`
	BestScoreEver      float64 `json:"best_score_ever"`
	MaxImprovementEver float64 `json:"max_improvement_ever"`
	PatienceCounter    int     `json:"patience_counter"`
	Frozen             bool    `json:"frozen"`
}

// NewFactorStats returns the statistics of a factor that was never selected.
func NewFactorStats() FactorStats {
	return FactorStats{BestScoreEver: NoScore}
}

// MeanScore is the average best-of-step score over all selections.
func (s FactorStats) MeanScore() float64 {
	if s.Selections == 0 {
		return 0
	}
	return s.CumulativeScore / float64(s.Selections)
}

// Scored reports whether a real score was ever recorded.
func (s FactorStats) Scored() bool {
	return s.BestScoreEver != NoScore
}
