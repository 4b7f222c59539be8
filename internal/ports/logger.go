// Package ports defines the interfaces the engine needs from the outside
// world: logging, the filesystem, and the host application.
package ports

import (
	"context"
	"strings"
)

// Level is the severity of a log entry.
type Level int

const (
	// LevelDebug carries match reports and per-request detail.
	LevelDebug Level = iota
	// LevelInfo carries normal progress.
	LevelInfo
	// LevelWarn carries degraded but recoverable outcomes.
	LevelWarn
	// LevelError carries failed operations.
	LevelError
)

// String returns the upper-case label of the level.
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

// ParseLevel converts a configuration string into a Level.
// Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is a structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates an "error" Field. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the structured logging sink used by every component.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a Logger that adds fields to every entry.
	With(fields ...Field) Logger

	Level() Level
	SetLevel(level Level)
}

type loggerKey struct{}

// ContextWithLogger attaches a logger to ctx.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger attached to ctx, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return nil
}
