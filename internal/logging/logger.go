// Package logging provides structured logging for the annealing solver service.
//
// The Logger keeps a small map-of-fields API for handlers and middleware
// while the records themselves are encoded by a zap core.
package logging

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in
	// production.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel is the default logging priority.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel logs are high-priority. If an application is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel LogLevel = "ERROR"
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel LogLevel = "FATAL"
)

// Logger represents an active logging object.
type Logger struct {
	level LogLevel
	zl    *zap.Logger
}

// New creates a Logger on top of an existing zap logger.
func New(level LogLevel, zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{
		level: level,
		zl:    zl,
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return New(InfoLevel, zap.NewNop())
}

// Zap exposes the underlying zap logger for packages that log with typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.zl.WithOptions(zap.AddCallerSkip(-2))
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() LogLevel {
	return l.level
}

// WithFields returns a new Logger with the specified fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.With(toZapFields(fields)...),
	}
}

// WithField returns a new Logger with the specified key-value pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithError returns a new Logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.With(zap.Error(err)),
	}
}

// Named adds a sub-scope to the logger name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.Named(name),
	}
}

// log writes a log entry with the given level and message.
func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	zf := toZapFields(fields)
	switch level {
	case DebugLevel:
		l.zl.Debug(msg, zf...)
	case InfoLevel:
		l.zl.Info(msg, zf...)
	case WarnLevel:
		l.zl.Warn(msg, zf...)
	case ErrorLevel:
		l.zl.Error(msg, zf...)
	case FatalLevel:
		l.zl.Fatal(msg, zf...)
	}
}

// shouldLog returns true if the given level should be logged.
func (l *Logger) shouldLog(level LogLevel) bool {
	return l.zl.Core().Enabled(zapLevel(level))
}

// toZapFields converts a field map into zap fields in key order so output
// is stable across runs.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(fields))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(DebugLevel, msg, f)
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(InfoLevel, msg, f)
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(WarnLevel, msg, f)
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(ErrorLevel, msg, f)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	var f map[string]interface{}
	if len(fields) > 0 {
		f = fields[0]
	}
	l.log(FatalLevel, msg, f)
}

// Sync flushes any buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// CtxLogger is a logger that can be used with context.
type CtxLogger struct {
	*Logger
}

// FromContext returns a logger from the context or a new one if none exists.
func FromContext(ctx context.Context) *CtxLogger {
	if logger, ok := Lookup(ctx); ok {
		return logger
	}
	return &CtxLogger{newDefault(os.Stderr)}
}

// Lookup returns the logger stored in ctx by Middleware, if any.
func Lookup(ctx context.Context) (*CtxLogger, bool) {
	logger, ok := ctx.Value(ctxLoggerKey{}).(*CtxLogger)
	return logger, ok && logger != nil && logger.Logger != nil
}

// WithContext returns a new context with the logger.
func (l *CtxLogger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

type ctxLoggerKey struct{}
