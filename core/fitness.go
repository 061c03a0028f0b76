package core

import (
	"fmt"
	"sort"
)

// PrimaryMetric resolves the metric name an evaluator scores by. Evaluators
// implementing MetricNamer declare it; otherwise the evaluator is probed with
// an empty prediction list and one placeholder reference. When the probe
// returns several keys the lexicographically smallest one is used so the
// choice is stable across calls.
func PrimaryMetric(ev Evaluator) (string, error) {
	if n, ok := ev.(MetricNamer); ok && n.PrimaryMetric() != "" {
		return n.PrimaryMetric(), nil
	}
	probe, err := ev.Evaluate([]string{}, []Example{{}})
	if err != nil {
		return "", fmt.Errorf("probe evaluator: %w", err)
	}
	if len(probe) == 0 {
		return "", ErrNoMetric
	}
	keys := make([]string, 0, len(probe))
	for k := range probe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0], nil
}

// MetricValue reads key from metrics, failing when the evaluator did not
// report it.
func MetricValue(metrics map[string]float64, key string) (float64, error) {
	v, ok := metrics[key]
	if !ok {
		return 0, fmt.Errorf("metric %q missing from evaluator result", key)
	}
	return v, nil
}
