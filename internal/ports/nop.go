package ports

import "context"

// NopLogger discards everything.
type NopLogger struct {
	level Level
}

// NewNopLogger creates a no-op logger.
func NewNopLogger() *NopLogger {
	return &NopLogger{level: LevelInfo}
}

// OrNop returns logger, or a NopLogger when logger is nil.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return NewNopLogger()
	}
	return logger
}

// Debug does nothing.
func (l *NopLogger) Debug(context.Context, string, ...Field) {}

// Info does nothing.
func (l *NopLogger) Info(context.Context, string, ...Field) {}

// Warn does nothing.
func (l *NopLogger) Warn(context.Context, string, ...Field) {}

// Error does nothing.
func (l *NopLogger) Error(context.Context, string, ...Field) {}

// With returns the receiver.
func (l *NopLogger) With(...Field) Logger { return l }

// Level returns the stored level.
func (l *NopLogger) Level() Level { return l.level }

// SetLevel stores the level.
func (l *NopLogger) SetLevel(level Level) { l.level = level }

var _ Logger = (*NopLogger)(nil)
