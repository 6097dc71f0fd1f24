// Package log provides the structured logging interface used across the
// forecasting service.
//
// The Logger interface is slog-shaped (message plus key/value fields) and is
// backed by zerolog. Errors passed as fields are expanded: their message goes
// under "error", typed errors that implement zerolog.LogObjectMarshaler are
// emitted as an object, and stacks captured by cockroachdb/errors are emitted
// under "stacktrace".
//
// Example usage:
//
//	logger := log.GetLoggerWithName("forecast.trainer").With(
//	    log.ModelVersionKey, version,
//	)
//	logger.Info("Training completed",
//	    log.SamplesKey, 1000,
//	    log.FeaturesKey, 13,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
type Logger interface {
	// Debug logs a debug-level message with optional key/value fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional key/value fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional key/value fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. A bare error value may appear
	// anywhere in fields and is logged under "error".
	//
	//	logger.Error("Training failed", err, log.StageKey, "fit")
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. Components receive one instead of
// reaching for the global logger when they need per-name loggers.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
