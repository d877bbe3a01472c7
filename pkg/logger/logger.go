// Package logger builds the process loggers: slog for application code and a
// zap logger for the migration runner.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("logger",
	fx.Provide(
		NewLogger,
		NewZapLogger,
	),
)

// NewLogger creates the slog logger. LOG_LEVEL picks the level (default info)
// and GO_ENV=production switches to JSON output.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	if isProduction() {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// NewZapLogger creates a zap logger honouring the same environment variables.
func NewZapLogger() (*zap.Logger, error) {
	var cfg zap.Config
	if isProduction() {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(levelFromEnv()))
	return cfg.Build()
}

// Scope returns the attribute used to tag log lines with a component name.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error returns an attribute holding err.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isProduction() bool {
	return strings.EqualFold(os.Getenv("GO_ENV"), "production")
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
