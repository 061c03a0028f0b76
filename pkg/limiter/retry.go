package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/snow-ghost/factorsearch/core"
)

// RetryConfig is the backoff policy for transient provider failures.
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay       time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor" yaml:"backoff_factor"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
	RetryableErrors []int         `json:"retryable_errors" yaml:"retryable_errors"`
}

// DefaultRetryConfig retries throttling and 5xx gateway errors three times.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		Jitter:          true,
		RetryableErrors: []int{408, 429, 500, 502, 503, 504},
	}
}

// RetryHook is called before every retry with the attempt that failed.
type RetryHook func(attempt int, err error, delay time.Duration)

// Retryable reports whether err carries one of the configured statuses.
// Cancellation is never retried.
func (c *RetryConfig) Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := StatusCode(err)
	return status != 0 && slices.Contains(c.RetryableErrors, status)
}

// Delay is the wait before retrying after the given zero-based attempt. A
// server-sent Retry-After wins over the computed backoff, up to MaxDelay.
func (c *RetryConfig) Delay(attempt int, err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return min(httpErr.RetryAfter, c.MaxDelay)
	}

	d := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	d = math.Min(d, float64(c.MaxDelay))
	if c.Jitter {
		d *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, fails with a non-retryable error, runs
// out of attempts or ctx ends.
func Retry(ctx context.Context, c *RetryConfig, onRetry RetryHook, fn func(context.Context) (string, error)) (string, error) {
	if c == nil {
		c = DefaultRetryConfig()
	}
	for attempt := 0; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !c.Retryable(err) {
			return "", err
		}
		if attempt >= c.MaxRetries {
			return "", fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		delay := c.Delay(attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func NewHTTPError(statusCode int, message, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message, Body: body}
}

// ParseRetryAfter reads a Retry-After header given in seconds. HTTP dates
// and garbage yield 0.
func ParseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// StatusCode extracts the HTTP status from an HTTPError or a
// core.GenerationError anywhere in err's chain; 0 when unknown.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var genErr *core.GenerationError
	if errors.As(err, &genErr) {
		return genErr.StatusCode
	}
	return 0
}
