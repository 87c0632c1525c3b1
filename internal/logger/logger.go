// Package logger provides structured logging for the worker, backed by
// log/slog. Consumers depend on the Logger interface and the typed field
// helpers so the backing handler can be swapped in tests.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel controls the minimum severity a logger emits.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Field is a typed key/value pair attached to a log record.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Any creates a field with an arbitrary value.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Error creates an "error" field from err. A nil err yields "<nil>".
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the structured logging interface used throughout the worker.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	sl *slog.Logger
}

// NewSlogLogger creates a Logger writing JSON records to w at the given
// minimum level. opts may be nil for defaults.
func NewSlogLogger(w io.Writer, level LogLevel, opts *slog.HandlerOptions) Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	opts.Level = slogLevel(level)
	return &slogLogger{sl: slog.New(slog.NewJSONHandler(w, opts))}
}

// Default returns a Logger writing to stderr at info level.
func Default() Logger {
	return NewSlogLogger(os.Stderr, LogLevelInfo, nil)
}

// ParseLevel maps a configuration string to a LogLevel. Unknown values
// fall back to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toAttrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.sl.Debug(msg, toAttrs(fields)...) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.sl.Info(msg, toAttrs(fields)...) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.sl.Warn(msg, toAttrs(fields)...) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.sl.Error(msg, toAttrs(fields)...) }

func (l *slogLogger) With(fields ...Field) Logger {
	return &slogLogger{sl: l.sl.With(toAttrs(fields)...)}
}
