// Package log provides structured logging for feeding-monitor.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	once.Do(func() {
		logger = New(os.Stdout, level, os.Getenv("GO_ENV") == "production")
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w. JSON output is used when json is true,
// text otherwise.
func New(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
