// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/domscout/internal/config"
)

// syncBuffer is a goroutine-safe WriteSyncer backed by a buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)
		GetLogger().Info("This is a test message.")
		Sync()

		output := out.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, "TestService.")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset)
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, out)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &logEntry), "Log output should be valid JSON")
		assert.Equal(t, "warn", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should respect the level", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "error", Format: "json"}, out)
		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		first, second := &syncBuffer{}, &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)
		GetLogger().Info("once")
		Sync()

		assert.Contains(t, first.String(), "once")
		assert.Empty(t, second.String())
	})
}

func TestNewLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "domscout.log")
	console := &syncBuffer{}

	logger, err := NewLogger(config.LoggerConfig{
		Level:   "debug",
		Format:  "console",
		LogFile: logPath,
		MaxSize: 1,
	}, console)
	require.NoError(t, err)

	logger.Debug("to file", zap.Int("n", 7))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry), "file output is JSON even with a console format")
	assert.Equal(t, "to file", entry["msg"])
	assert.EqualValues(t, 7, entry["n"])
	assert.Contains(t, console.String(), "to file")
}

func TestGetLogger(t *testing.T) {
	t.Run("returns fallback before initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		logger := GetLogger()
		require.NotNil(t, logger)
		assert.Equal(t, "fallback", logger.Name())
	})

	t.Run("returns the initialized instance", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, zapcore.AddSync(&syncBuffer{}))
		assert.Equal(t, "svc", GetLogger().Name())
		assert.Same(t, GetLogger(), GetLogger())
	})
}

func TestColorizedLevelEncoder_UnknownColor(t *testing.T) {
	enc := newColorizedLevelEncoder(config.ColorConfig{Warn: "no-such-color"})
	arr := &stringArray{}
	enc(zapcore.WarnLevel, arr)
	assert.Equal(t, []string{"WARN"}, arr.items, "unknown colors fall back to plain text")
}

type stringArray struct {
	zapcore.PrimitiveArrayEncoder
	items []string
}

func (s *stringArray) AppendString(v string) { s.items = append(s.items, v) }
