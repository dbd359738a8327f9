// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/rover-cli/internal/config"
)

// initWithBuffer wires the logger to an in-memory sink so assertions can
// inspect what was written. The global logger is reset first for isolation.
func initWithBuffer(cfg config.LoggerConfig) *bytes.Buffer {
	ResetForTest()
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitializeConsoleLoggerWithColors(t *testing.T) {
	buf := initWithBuffer(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "TestService",
		Colors:      config.ColorConfig{Info: "green"},
	})

	GetLogger().Info("exploration started")

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "exploration started")
	assert.Contains(t, output, colorGreen)
	assert.Contains(t, output, colorReset)
}

func TestInitializeJSONLogger(t *testing.T) {
	buf := initWithBuffer(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "JSONTest",
	})

	GetLogger().Warn("selector lookup failed", zap.String("selector", "#login"))

	var entry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "log output should be valid JSON")

	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "JSONTest", entry["logger"])
	assert.Equal(t, "selector lookup failed", entry["msg"])
	assert.Equal(t, "#login", entry["selector"])
}

func TestInitializeHonorsLevel(t *testing.T) {
	buf := initWithBuffer(config.LoggerConfig{
		Level:  "warn",
		Format: "json",
	})

	GetLogger().Info("should be dropped")
	GetLogger().Warn("should be kept")

	assert.NotContains(t, buf.String(), "should be dropped")
	assert.Contains(t, buf.String(), "should be kept")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	buf := initWithBuffer(config.LoggerConfig{
		Level:  "shouting",
		Format: "json",
	})

	GetLogger().Debug("debug is filtered at info level")
	GetLogger().Info("info passes")

	assert.NotContains(t, buf.String(), "debug is filtered")
	assert.Contains(t, buf.String(), "info passes")
}

func TestGetLoggerBeforeInitialization(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
	// Must not panic and must be usable.
	logger.Debug("fallback logger in use")
}

func TestInitializeIsIdempotent(t *testing.T) {
	buf := initWithBuffer(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"})
	var second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(&second))

	GetLogger().Info("routed to the first sink")
	assert.Contains(t, buf.String(), "routed to the first sink")
	assert.Empty(t, second.String())
}
