package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestScope(t *testing.T) {
	for _, scope := range []string{"loader", "loader.batched", ""} {
		attr := Scope(scope)
		assert.Equal(t, "scope", attr.Key)
		assert.Equal(t, scope, attr.Value.String())
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"simple error", errors.New("chunk failed")},
		{"nil error", nil},
		{"joined error", errors.Join(errors.New("outer"), errors.New("inner"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Error(tt.err)
			assert.Equal(t, "error", attr.Key)
			assert.Equal(t, tt.err, attr.Value.Any())
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		level    string
		enabled  slog.Level
		disabled *slog.Level
	}{
		{level: "", enabled: slog.LevelInfo, disabled: ptr(slog.LevelDebug)},
		{level: "debug", enabled: slog.LevelDebug},
		{level: "DEBUG", enabled: slog.LevelDebug},
		{level: "dEbUg", enabled: slog.LevelDebug},
		{level: "warn", enabled: slog.LevelWarn, disabled: ptr(slog.LevelInfo)},
		{level: "warning", enabled: slog.LevelWarn, disabled: ptr(slog.LevelInfo)},
		{level: "error", enabled: slog.LevelError, disabled: ptr(slog.LevelWarn)},
		{level: "invalid", enabled: slog.LevelInfo, disabled: ptr(slog.LevelDebug)},
	}

	for _, tt := range tests {
		t.Run("LOG_LEVEL="+tt.level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			t.Setenv("GO_ENV", "")

			log := NewLogger()
			require.NotNil(t, log)
			assert.True(t, log.Enabled(ctx, tt.enabled))
			if tt.disabled != nil {
				assert.False(t, log.Enabled(ctx, *tt.disabled))
			}
		})
	}
}

func TestNewLogger_ProductionJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GO_ENV", "production")

	log := NewLogger()
	require.NotNil(t, log)
	assert.IsType(t, &slog.JSONHandler{}, log.Handler())
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewZapLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("GO_ENV", "")

	log, err := NewZapLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
}

func ptr(l slog.Level) *slog.Level { return &l }
