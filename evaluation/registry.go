package evaluation

import (
	"fmt"
	"strings"

	"github.com/snow-ghost/factorsearch/core"
)

// ByName returns the evaluator registered under name. Lookup ignores case.
func ByName(name string) (core.Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "accuracy", "accuracyevaluator":
		return NewAccuracyEvaluator(), nil
	case "rouge-l", "rouge", "rougel", "rougeevaluator":
		return NewRougeLEvaluator(), nil
	default:
		return nil, fmt.Errorf("unknown evaluator %q", name)
	}
}
