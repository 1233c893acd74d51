package logging

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newZap builds the zap logger behind a Logger. Records carry the same keys
// the service has always emitted: timestamp, level, message, caller.
func newZap(level LogLevel, format string, w io.Writer) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     utcRFC3339Nano,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(zapLevel(level)))

	// Skip Logger.log and the exported level method.
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

func newDefault(w io.Writer) *Logger {
	return New(InfoLevel, newZap(InfoLevel, "json", w))
}

// NewWriterLogger builds a JSON logger writing to w. Tests use it to capture
// output.
func NewWriterLogger(level string, w io.Writer) *Logger {
	lvl := parseLevel(level)
	return New(lvl, newZap(lvl, "json", w))
}

func utcRFC3339Nano(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339Nano))
}
