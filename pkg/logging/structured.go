package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snow-ghost/factorsearch/pkg/tracing"
)

// Logger wraps both slog and zap loggers. Core packages receive the slog
// side; adapter events (LLM requests, retries, breaker and cache events) go
// through zap with typed fields.
type Logger struct {
	slog *slog.Logger
	zap  *zap.Logger
}

// Config holds logging configuration
type Config struct {
	Level     string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Format    string `yaml:"format" env:"FORMAT" validate:"omitempty,oneof=json console"`
	Output    string `yaml:"output" env:"OUTPUT"` // "stdout", "stderr" or a file path
	AddCaller bool   `yaml:"add_caller" env:"ADD_CALLER"`
	AddStack  bool   `yaml:"add_stack" env:"ADD_STACK"`
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stderr"}
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*Logger, error) {
	if config.Output == "" {
		config.Output = "stderr"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	w, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: parseSlogLevel(config.Level), AddSource: config.AddCaller}
	var handler slog.Handler
	if config.Format == "console" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseZapLevel(config.Level)
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack
	if config.Format == "console" {
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return &Logger{
		slog: slog.New(handler),
		zap:  zapLogger,
	}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		slog: slog.New(slog.NewTextHandler(io.Discard, nil)),
		zap:  zap.NewNop(),
	}
}

// New wraps existing loggers; used by tests that capture output.
func New(s *slog.Logger, z *zap.Logger) *Logger {
	return &Logger{slog: s, zap: z}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log output: %w", err)
		}
		return f, nil
	}
}

// parseSlogLevel parses slog level from string
func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseZapLevel parses zap level from string
func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithRunID tags every record with the run identifier.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		slog: l.slog.With("run_id", runID),
		zap:  l.zap.With(zap.String("run_id", runID)),
	}
}

// withTrace appends the active span's trace ID so event lines can be joined
// with Jaeger traces.
func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if id := tracing.GetTraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}

// LogLLMRequest logs an LLM request
func (l *Logger) LogLLMRequest(ctx context.Context, role, provider, model, status string, duration time.Duration, tokens int, cost float64) {
	l.zap.Info("LLM request completed", withTrace(ctx, []zap.Field{
		zap.String("role", role),
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("status", status),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
		zap.Int("tokens", tokens),
		zap.Float64("cost", cost),
	})...)
}

// LogCacheOperation logs a cache operation
func (l *Logger) LogCacheOperation(ctx context.Context, operation string, hit bool) {
	if hit {
		l.zap.Debug("Cache hit", zap.String("operation", operation))
	} else {
		l.zap.Debug("Cache miss", zap.String("operation", operation))
	}
}

// LogRetry logs a retry operation
func (l *Logger) LogRetry(ctx context.Context, provider, model, reason string, attempt int, delay time.Duration) {
	l.zap.Warn("Request retry", withTrace(ctx, []zap.Field{
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("reason", reason),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	})...)
}

// LogCircuitBreaker logs a circuit breaker state change
func (l *Logger) LogCircuitBreaker(ctx context.Context, provider, model, from, to string) {
	l.zap.Warn("Circuit breaker state changed",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// Sync flushes buffered zap output.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	// stdout and stderr cannot be fsynced on most terminals
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// GetSlog returns the slog logger
func (l *Logger) GetSlog() *slog.Logger {
	return l.slog
}

// GetZap returns the zap logger
func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}
