package logger

import (
	"context"
	"log/slog"
)

var noop = &noopLogger{logger: slog.New(slog.DiscardHandler)}

// noopLogger discards everything, including records sent through Slog.
type noopLogger struct {
	logger *slog.Logger
}

func (n *noopLogger) Debug(msg string, args ...any) {}

func (n *noopLogger) Info(msg string, args ...any) {}

func (n *noopLogger) Warn(msg string, args ...any) {}

func (n *noopLogger) Error(msg string, args ...any) {}

func (n *noopLogger) With(args ...any) Logger {
	return n
}

func (n *noopLogger) WithContext(ctx context.Context) Logger {
	return n
}

func (n *noopLogger) Slog() *slog.Logger {
	return n.logger
}
