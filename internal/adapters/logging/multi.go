package logging

import (
	"context"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// MultiLogger fans each entry out to several loggers. Each sink applies its
// own level filter.
type MultiLogger struct {
	sinks []ports.Logger
}

// NewMultiLogger combines sinks; nil sinks are skipped.
func NewMultiLogger(sinks ...ports.Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Debug logs to every sink.
func (m *MultiLogger) Debug(ctx context.Context, msg string, fields ...ports.Field) {
	for _, s := range m.sinks {
		s.Debug(ctx, msg, fields...)
	}
}

// Info logs to every sink.
func (m *MultiLogger) Info(ctx context.Context, msg string, fields ...ports.Field) {
	for _, s := range m.sinks {
		s.Info(ctx, msg, fields...)
	}
}

// Warn logs to every sink.
func (m *MultiLogger) Warn(ctx context.Context, msg string, fields ...ports.Field) {
	for _, s := range m.sinks {
		s.Warn(ctx, msg, fields...)
	}
}

// Error logs to every sink.
func (m *MultiLogger) Error(ctx context.Context, msg string, fields ...ports.Field) {
	for _, s := range m.sinks {
		s.Error(ctx, msg, fields...)
	}
}

// With applies fields to every sink.
func (m *MultiLogger) With(fields ...ports.Field) ports.Logger {
	child := &MultiLogger{sinks: make([]ports.Logger, len(m.sinks))}
	for i, s := range m.sinks {
		child.sinks[i] = s.With(fields...)
	}
	return child
}

// Level returns the most verbose level among the sinks.
func (m *MultiLogger) Level() ports.Level {
	if len(m.sinks) == 0 {
		return ports.LevelInfo
	}
	lowest := m.sinks[0].Level()
	for _, s := range m.sinks[1:] {
		if lvl := s.Level(); lvl < lowest {
			lowest = lvl
		}
	}
	return lowest
}

// SetLevel sets the level on the first sink only; the remaining sinks
// (diagnostic files) keep their configured verbosity.
func (m *MultiLogger) SetLevel(level ports.Level) {
	if len(m.sinks) > 0 {
		m.sinks[0].SetLevel(level)
	}
}

var _ ports.Logger = (*MultiLogger)(nil)
