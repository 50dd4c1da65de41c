package output

import "context"

// LoggerPort takes a message followed by alternating key/value pairs.
type LoggerPort interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	WithField(key string, value any) LoggerPort
	WithFields(fields map[string]any) LoggerPort

	Close() error
}

type loggerKey struct{}

// ContextWithLogger attaches the logger of one task run to ctx.
func ContextWithLogger(ctx context.Context, log LoggerPort) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// LoggerFromContext returns the run logger carried by ctx, or fallback.
func LoggerFromContext(ctx context.Context, fallback LoggerPort) LoggerPort {
	if log, ok := ctx.Value(loggerKey{}).(LoggerPort); ok && log != nil {
		return log
	}
	return fallback
}
