// Package logging implements ports.Logger for the terminal and for the
// diagnostic log file.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// ConsoleLogger writes log entries to a terminal stream as text or JSON.
type ConsoleLogger struct {
	mu         *sync.Mutex
	out        io.Writer
	level      ports.Level
	fields     []ports.Field
	jsonFormat bool
	timestamps bool
}

// ConsoleOption configures a ConsoleLogger.
type ConsoleOption func(*ConsoleLogger)

// WithOutput sets the destination (default os.Stderr).
func WithOutput(w io.Writer) ConsoleOption {
	return func(l *ConsoleLogger) { l.out = w }
}

// WithLevel sets the minimum level (default Info).
func WithLevel(level ports.Level) ConsoleOption {
	return func(l *ConsoleLogger) { l.level = level }
}

// WithJSONFormat switches to one JSON object per line.
func WithJSONFormat(enabled bool) ConsoleOption {
	return func(l *ConsoleLogger) { l.jsonFormat = enabled }
}

// WithTimestamp toggles the time prefix.
func WithTimestamp(enabled bool) ConsoleOption {
	return func(l *ConsoleLogger) { l.timestamps = enabled }
}

// NewConsoleLogger creates a console logger.
func NewConsoleLogger(opts ...ConsoleOption) *ConsoleLogger {
	l := &ConsoleLogger{
		mu:         &sync.Mutex{},
		out:        os.Stderr,
		level:      ports.LevelInfo,
		timestamps: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Debug logs at debug level.
func (l *ConsoleLogger) Debug(ctx context.Context, msg string, fields ...ports.Field) {
	l.write(ctx, ports.LevelDebug, msg, fields)
}

// Info logs at info level.
func (l *ConsoleLogger) Info(ctx context.Context, msg string, fields ...ports.Field) {
	l.write(ctx, ports.LevelInfo, msg, fields)
}

// Warn logs at warn level.
func (l *ConsoleLogger) Warn(ctx context.Context, msg string, fields ...ports.Field) {
	l.write(ctx, ports.LevelWarn, msg, fields)
}

// Error logs at error level.
func (l *ConsoleLogger) Error(ctx context.Context, msg string, fields ...ports.Field) {
	l.write(ctx, ports.LevelError, msg, fields)
}

// With returns a child logger sharing the output and lock.
func (l *ConsoleLogger) With(fields ...ports.Field) ports.Logger {
	child := *l
	child.fields = appendFields(l.fields, fields)
	return &child
}

// Level returns the minimum level.
func (l *ConsoleLogger) Level() ports.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevel changes the minimum level.
func (l *ConsoleLogger) SetLevel(level ports.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *ConsoleLogger) write(_ context.Context, level ports.Level, msg string, fields []ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	all := appendFields(l.fields, fields)
	if l.jsonFormat {
		l.writeJSON(level, msg, all)
		return
	}
	l.writeText(level, msg, all)
}

func (l *ConsoleLogger) writeJSON(level ports.Level, msg string, fields []ports.Field) {
	entry := make(map[string]interface{}, len(fields)+3)
	if l.timestamps {
		entry["time"] = time.Now().UTC().Format(time.RFC3339)
	}
	entry["level"] = level.String()
	entry["msg"] = msg
	for _, f := range fields {
		entry[f.Key] = f.Value
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(l.out, string(data))
}

func (l *ConsoleLogger) writeText(level ports.Level, msg string, fields []ports.Field) {
	var b strings.Builder
	if l.timestamps {
		b.WriteString(time.Now().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] %s", level.String(), msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	_, _ = fmt.Fprintln(l.out, b.String())
}

func appendFields(base, extra []ports.Field) []ports.Field {
	out := make([]ports.Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

var _ ports.Logger = (*ConsoleLogger)(nil)
