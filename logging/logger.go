// Package logging provides a tiny abstraction over slog so pipeline code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a PipelineLogger with contextual helpers
// (component, run) and helpers for model call and run summaries.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a PipelineLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// NewHandler builds the slog handler described by cfg. The text format uses
// tint for colourised human-readable output.
func NewHandler(cfg *LoggerConfig) slog.Handler {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	if cfg.Format == "text" {
		return tint.NewHandler(out, &tint.Options{
			Level:      slogLevel(cfg.Level),
			AddSource:  cfg.AddSource,
			TimeFormat: time.Kitchen,
		})
	}

	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource})
}

// PipelineLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type PipelineLogger struct {
	logger *slog.Logger
}

// NewLogger builds a PipelineLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *PipelineLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	l := slog.New(NewHandler(cfg))
	if cfg.Component != "" {
		l = l.With(slog.String("component", cfg.Component))
	}

	return &PipelineLogger{logger: l}
}

// Slog exposes the underlying slog logger, e.g. for slog.SetDefault.
func (l *PipelineLogger) Slog() *slog.Logger { return l.logger }

// WithComponent sets the logical component (loop, step, sink, server, ...).
func (l *PipelineLogger) WithComponent(c string) *PipelineLogger {
	return &PipelineLogger{logger: l.logger.With(slog.String("component", c))}
}

// WithRun attaches a run identifier to every entry.
func (l *PipelineLogger) WithRun(runID string) *PipelineLogger {
	return &PipelineLogger{logger: l.logger.With(slog.String("run_id", runID))}
}

// Debug logs at debug level.
func (l *PipelineLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *PipelineLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warn level.
func (l *PipelineLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *PipelineLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogModelCall records model call latency, token usage and outcome.
// Cancellation is logged at info level, never as a failure.
func (l *PipelineLogger) LogModelCall(model string, tokens int64, dur time.Duration, cancelled bool, err error) {
	attrs := []slog.Attr{slog.String("model", model), slog.Int64("token_count", tokens), slog.Duration("duration", dur)}

	level := slog.LevelInfo
	msg := "model.call.finish"

	switch {
	case cancelled:
		msg = "model.call.cancelled"
	case err != nil:
		level = slog.LevelError
		msg = "model.call.failed"
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogRun records aggregate run metrics. Cancellation is logged at info level.
func (l *PipelineLogger) LogRun(steps int, dur time.Duration, cancelled bool, err error) {
	attrs := []slog.Attr{slog.Int("step_count", steps), slog.Duration("duration", dur)}

	level := slog.LevelInfo
	msg := "run.finish"

	switch {
	case cancelled:
		msg = "run.cancelled"
	case err != nil:
		level = slog.LevelError
		msg = "run.failed"
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
