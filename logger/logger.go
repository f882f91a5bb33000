package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
	// Slog exposes the underlying slog.Logger for libraries that need one.
	Slog() *slog.Logger
}

// Level represents the log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// SlogLevel converts the level to its slog equivalent.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new logger using the standard library's slog.
func New(handler slog.Handler) Logger {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &slogLogger{
		logger: slog.New(handler),
	}
}

// NewJSON creates a JSON logger writing to w (stderr when nil).
func NewJSON(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.SlogLevel()}))
}

// NewText creates a new logger with text output instead of JSON.
func NewText(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.SlogLevel()}))
}

// Default returns a default logger (Info level, JSON output).
func Default() Logger {
	return NewJSON(os.Stderr, LevelInfo)
}

// Noop returns a no-op logger that discards all log messages.
func Noop() Logger {
	return noop
}
