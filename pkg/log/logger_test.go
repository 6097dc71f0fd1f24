package log

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerrors "github.com/YuminosukeSato/replenish/pkg/errors"
)

func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", "warning_code", "LOW_DATA")
	testLogger.Error("error message", fmt.Errorf("test error"), "error_code", "TEST_ERROR")

	require.NotEmpty(t, buffer.String())
	assert.True(t, testLogger.ContainsMessage("debug message"))
	assert.True(t, testLogger.ContainsMessage("info message"))
	assert.True(t, testLogger.ContainsMessage("warning message"))
	assert.True(t, testLogger.ContainsMessage("error message"))

	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "test error"))
	assert.Len(t, testLogger.EntriesAt(LevelWarn), 1)
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	scoped := testLogger.With(StoreIDKey, "S1", ProductIDKey, "P1")
	scoped.Info("forecast served", PredictedQuantityKey, 12)

	entries := testLogger.GetLogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "S1", entries[0][StoreIDKey])
	assert.Equal(t, "P1", entries[0][ProductIDKey])
	assert.Equal(t, 12.0, entries[0][PredictedQuantityKey])
}

func TestLoggerLevelFiltering(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelWarn)

	testLogger.Debug("hidden")
	testLogger.Info("hidden")
	testLogger.Warn("shown")

	assert.False(t, testLogger.ContainsMessage("hidden"))
	assert.True(t, testLogger.ContainsMessage("shown"))
	assert.False(t, testLogger.Enabled(context.Background(), LevelInfo))
	assert.True(t, testLogger.Enabled(context.Background(), LevelError))
	assert.NotEmpty(t, buffer.String())
}

func TestStructuredErrorFields(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	err := scerrors.NewInputError("features.build", scerrors.For("S1", "P1"), scerrors.ErrEmptyData)
	testLogger.Error("build failed", err)

	entries := testLogger.GetLogEntries()
	require.Len(t, entries, 1)
	detail, ok := entries[0][ErrAttrKey+"_detail"].(map[string]interface{})
	require.True(t, ok, "typed errors should be logged as objects")
	assert.Equal(t, "InputError", detail["type"])
	assert.Equal(t, "S1", detail["store_id"])
	assert.NotEmpty(t, entries[0][StacktraceAttrKey])
}

func TestBadKeys(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)
	testLogger.Info("odd fields", "dangling")
	assert.True(t, testLogger.ContainsField("!BADKEY", "dangling"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	prev := GetLogger()
	defer SetGlobal(prev)

	var buf bytes.Buffer
	_, err := SetupLogger("info", &buf)
	require.NoError(t, err)

	scerrors.Warn(scerrors.NewUndefinedMetricWarning("mape", "all actual values are zero", 0))
	assert.Contains(t, buf.String(), "UndefinedMetricWarning")
	assert.Contains(t, buf.String(), `"component":"warnings"`)

	GetLoggerWithName("trainer").Info("hello")
	assert.Contains(t, buf.String(), `"component":"trainer"`)
}

func TestProvider(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		raiseTo Level
		debug   bool
		info    bool
	}{
		{"info level", LevelInfo, LevelInfo, false, true},
		{"lowered to debug", LevelInfo, LevelDebug, true, true},
		{"raised to warn", LevelInfo, LevelWarn, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewProvider(&buf, tt.level)
			p.SetLevel(tt.raiseTo)

			logger := p.GetLoggerWithName("predictions")
			logger.Debug("debug line")
			logger.Info("info line")

			assert.Equal(t, tt.debug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Equal(t, tt.info, bytes.Contains(buf.Bytes(), []byte("info line")))
			if tt.info {
				assert.Contains(t, buf.String(), `"component":"predictions"`)
			}
		})
	}
}
