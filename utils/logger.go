package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	*slog.Logger
}

// LogOptions selects the handler behind a Logger.
type LogOptions struct {
	Writer io.Writer
	Level  string // debug, info, warn, error
	JSON   bool
}

// NewLogger creates a colored console Logger writing to stderr at info level.
func NewLogger() *Logger {
	return NewLoggerWith(LogOptions{})
}

// NewLoggerWith creates a Logger from explicit options.
func NewLoggerWith(opts LogOptions) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := parseLevel(opts.Level)

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NopLogger discards everything. Used by tests.
func NopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
