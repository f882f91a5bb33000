package logger

import (
	"context"
	"log/slog"
)

// slogLogger is an adapter that wraps slog.Logger to implement our Logger interface.
type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func (l *slogLogger) context() context.Context {
	if l.ctx != nil {
		return l.ctx
	}
	return context.Background()
}

// Debug logs a debug message with optional key-value pairs.
func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.DebugContext(l.context(), msg, args...)
}

// Info logs an informational message with optional key-value pairs.
func (l *slogLogger) Info(msg string, args ...any) {
	l.logger.InfoContext(l.context(), msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func (l *slogLogger) Warn(msg string, args ...any) {
	l.logger.WarnContext(l.context(), msg, args...)
}

// Error logs an error message with optional key-value pairs.
func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.ErrorContext(l.context(), msg, args...)
}

// With returns a new logger with the given key-value pairs added to all log messages.
func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{
		logger: l.logger.With(args...),
		ctx:    l.ctx,
	}
}

// WithContext returns a logger that passes ctx to the handler on every
// record, so context-aware handlers can pick up request-scoped values.
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{
		logger: l.logger,
		ctx:    ctx,
	}
}

// Slog returns the wrapped slog.Logger.
func (l *slogLogger) Slog() *slog.Logger {
	return l.logger
}
