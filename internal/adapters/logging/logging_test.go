package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

func TestConsoleLogger_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsoleLogger(WithOutput(&buf), WithTimestamp(false))

	logger.Info(context.Background(), "catalog refreshed", ports.F("packages", 12))

	assert.Equal(t, "[INFO] catalog refreshed packages=12\n", buf.String())
}

func TestConsoleLogger_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsoleLogger(WithOutput(&buf), WithLevel(ports.LevelWarn))
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	logger.Info(ctx, "hidden")
	logger.Warn(ctx, "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	logger.SetLevel(ports.LevelDebug)
	logger.Debug(ctx, "now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestConsoleLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsoleLogger(WithOutput(&buf), WithJSONFormat(true), WithTimestamp(false))

	logger.With(ports.F("repo", "a/b")).Error(context.Background(), "fetch failed", ports.F("status", 500))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "fetch failed", entry["msg"])
	assert.Equal(t, "a/b", entry["repo"])
	assert.InDelta(t, 500, entry["status"], 0)
	assert.NotContains(t, entry, "time")
}

func TestConsoleLogger_WithDoesNotLeakFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewConsoleLogger(WithOutput(&buf), WithTimestamp(false))
	_ = parent.With(ports.F("child", true))

	parent.Info(context.Background(), "plain")
	assert.Equal(t, "[INFO] plain\n", buf.String())
}

func TestHCLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewHCLogger(hclog.New(&hclog.LoggerOptions{
		Output:     &buf,
		Level:      hclog.Debug,
		JSONFormat: true,
	}))

	logger.With(ports.F("component", "installer")).Debug(context.Background(), "copied", ports.F("file", "Mod.dll"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "copied", entry["@message"])
	assert.Equal(t, "installer", entry["component"])
	assert.Equal(t, "Mod.dll", entry["file"])

	assert.Equal(t, ports.LevelDebug, logger.Level())
	logger.SetLevel(ports.LevelWarn)
	assert.Equal(t, ports.LevelWarn, logger.Level())
}

func TestOpenDiagnosticLog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "modkeeper.log")
	logger, closer, err := OpenDiagnosticLog(path, ports.LevelInfo)
	require.NoError(t, err)

	logger.Debug(context.Background(), "not written")
	logger.Warn(context.Background(), "rate limited", ports.F("status", 429))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "not written")
	assert.True(t, strings.Contains(string(data), "rate limited"))
}

func TestMultiLogger(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	first := NewConsoleLogger(WithOutput(&a), WithTimestamp(false))
	second := NewConsoleLogger(WithOutput(&b), WithTimestamp(false), WithLevel(ports.LevelDebug))
	multi := NewMultiLogger(first, nil, second)

	multi.Debug(context.Background(), "detail")
	multi.With(ports.F("id", "x")).Warn(context.Background(), "mismatch")

	assert.NotContains(t, a.String(), "detail")
	assert.Contains(t, a.String(), "mismatch id=x")
	assert.Contains(t, b.String(), "detail")
	assert.Contains(t, b.String(), "mismatch id=x")
	assert.Equal(t, ports.LevelDebug, multi.Level())

	multi.SetLevel(ports.LevelError)
	assert.Equal(t, ports.LevelError, first.Level())
	assert.Equal(t, ports.LevelDebug, second.Level())
}
