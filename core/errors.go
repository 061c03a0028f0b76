package core

import (
	"errors"
	"fmt"
)

// ErrNoMetric is returned when an evaluator's probe call reports no metrics.
var ErrNoMetric = errors.New("evaluator reported no metrics")

// GenerationError reports a transport or provider failure of a Generator.
// The core never retries it; it propagates to the caller of Step or
// DiscoverStructure.
type GenerationError struct {
	Role       string // "architect" | "worker" | ""
	Model      string
	StatusCode int // HTTP status when known, 0 otherwise
	Err        error
}

func (e *GenerationError) Error() string {
	prefix := "generation failed"
	if e.Role != "" {
		prefix = e.Role + " generation failed"
	}
	if e.Model != "" {
		prefix += " (" + e.Model + ")"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", prefix, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps err unless it already is a GenerationError.
func NewGenerationError(role, model string, statusCode int, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Role: role, Model: model, StatusCode: statusCode, Err: err}
}

// IsGenerationError reports whether err wraps a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
