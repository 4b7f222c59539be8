package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// HCLogger adapts an hclog.Logger to ports.Logger. It backs the
// diagnostic log file, which keeps full error detail for every operation.
type HCLogger struct {
	inner hclog.Logger
}

// NewHCLogger wraps an existing hclog logger.
func NewHCLogger(inner hclog.Logger) *HCLogger {
	return &HCLogger{inner: inner}
}

// OpenDiagnosticLog opens (appending) the diagnostic log at path and returns
// a JSON hclog logger writing to it along with the file to close.
func OpenDiagnosticLog(path string, level ports.Level) (*HCLogger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open diagnostic log: %w", err)
	}

	inner := hclog.New(&hclog.LoggerOptions{
		Name:       "modkeeper",
		Level:      toHCLevel(level),
		Output:     f,
		JSONFormat: true,
	})
	return NewHCLogger(inner), f, nil
}

// Debug logs at debug level.
func (l *HCLogger) Debug(_ context.Context, msg string, fields ...ports.Field) {
	l.inner.Debug(msg, toArgs(fields)...)
}

// Info logs at info level.
func (l *HCLogger) Info(_ context.Context, msg string, fields ...ports.Field) {
	l.inner.Info(msg, toArgs(fields)...)
}

// Warn logs at warn level.
func (l *HCLogger) Warn(_ context.Context, msg string, fields ...ports.Field) {
	l.inner.Warn(msg, toArgs(fields)...)
}

// Error logs at error level.
func (l *HCLogger) Error(_ context.Context, msg string, fields ...ports.Field) {
	l.inner.Error(msg, toArgs(fields)...)
}

// With returns a child logger with implied fields.
func (l *HCLogger) With(fields ...ports.Field) ports.Logger {
	return &HCLogger{inner: l.inner.With(toArgs(fields)...)}
}

// Level returns the current level.
func (l *HCLogger) Level() ports.Level {
	switch l.inner.GetLevel() {
	case hclog.Trace, hclog.Debug:
		return ports.LevelDebug
	case hclog.Warn:
		return ports.LevelWarn
	case hclog.Error:
		return ports.LevelError
	default:
		return ports.LevelInfo
	}
}

// SetLevel changes the level.
func (l *HCLogger) SetLevel(level ports.Level) {
	l.inner.SetLevel(toHCLevel(level))
}

func toHCLevel(level ports.Level) hclog.Level {
	switch level {
	case ports.LevelDebug:
		return hclog.Debug
	case ports.LevelWarn:
		return hclog.Warn
	case ports.LevelError:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func toArgs(fields []ports.Field) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

var _ ports.Logger = (*HCLogger)(nil)
