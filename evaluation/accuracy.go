// Package evaluation provides evaluators that score worker predictions
// against dataset references.
package evaluation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/snow-ghost/factorsearch/core"
)

var (
	answerPattern = regexp.MustCompile(`(?i)(?:the|my)\s+(?:answer|final answer)\s*(?:is:|is)\s*([^\.\n]+)`)
	nonNumeric    = regexp.MustCompile(`[^0-9.\-]`)
)

// AccuracyEvaluator scores question answering and classification items. The
// reference kind is picked per item: "answer" (numeric, with an optional
// "#### " rationale prefix), "label" with "choices", or "target".
type AccuracyEvaluator struct{}

func NewAccuracyEvaluator() *AccuracyEvaluator { return &AccuracyEvaluator{} }

func (AccuracyEvaluator) PrimaryMetric() string { return "accuracy" }

func (e AccuracyEvaluator) Evaluate(predictions []string, references []core.Example) (map[string]float64, error) {
	n := min(len(predictions), len(references))
	if len(predictions) == 0 {
		return map[string]float64{"accuracy": 0}, nil
	}

	correct := 0
	for i := 0; i < n; i++ {
		if Correct(ExtractAnswer(predictions[i]), references[i]) {
			correct++
		}
	}
	return map[string]float64{"accuracy": float64(correct) / float64(len(predictions))}, nil
}

// ExtractAnswer pulls the final answer out of a model response: the text
// after "the answer is" / "my final answer is", else the last non-empty line.
func ExtractAnswer(prediction string) string {
	if m := answerPattern.FindStringSubmatch(prediction); m != nil {
		return strings.TrimSpace(m[1])
	}
	lines := strings.Split(strings.TrimSpace(prediction), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return strings.TrimSpace(prediction)
}

// Correct compares an extracted answer with one reference item.
func Correct(extracted string, ref core.Example) bool {
	switch {
	case ref.Has("answer"):
		gold := ref.String("answer")
		if idx := strings.LastIndex(gold, "####"); idx >= 0 {
			gold = gold[idx+len("####"):]
		}
		return nonNumeric.ReplaceAllString(extracted, "") == strings.TrimSpace(gold)

	case ref.Has("label") && ref.Has("choices"):
		label := ref.String("label")
		if extracted == label {
			return true
		}
		idx, err := strconv.Atoi(label)
		choices := ref.Strings("choices")
		if err != nil || idx < 0 || idx >= len(choices) || extracted == "" {
			return false
		}
		return strings.Contains(strings.ToLower(choices[idx]), strings.ToLower(extracted))

	case ref.Has("target"):
		return extracted == ref.String("target")
	}
	return false
}
