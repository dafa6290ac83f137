// Package logging provides the engine's structured logger: a thin wrapper
// around slog emitting JSON to stdout.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger embeds slog.Logger so call sites use the standard Info/Warn/Error
// methods directly.
type Logger struct {
	*slog.Logger
}

// New creates a logger at the given level. Unknown levels fall back to info.
func New(level string) *Logger {
	var logLevel slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger. Components accept a nil logger and
// fall back to this.
func Default() *Logger {
	return New("info")
}

// With returns a logger carrying extra key-value context on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
