package logger

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured key/value logging with optional PII redaction.
// It is constructed once in main and passed to every component that logs.
type Logger struct {
	sugar     *zap.SugaredLogger
	redactPII bool
}

// Options controls how New builds the zap backend.
type Options struct {
	// Mode is "production" for JSON output, anything else for console output.
	Mode string
	// Level is one of debug, info, warn, error. Empty means info.
	Level     string
	RedactPII bool
}

// New returns a Logger backed by zap.
func New(opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar(), redactPII: opts.RedactPII}, nil
}

// NewFromZap wraps an existing zap logger. Tests use it with zaptest/observer.
func NewFromZap(z *zap.Logger, redactPII bool) *Logger {
	return &Logger{sugar: z.Sugar(), redactPII: redactPII}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Debug emits a DEBUG-level structured log entry.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.sugar.Debugw(msg, l.redact(fields)...)
}

// Info emits an INFO-level structured log entry.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.sugar.Infow(msg, l.redact(fields)...)
}

// Warn emits a WARN-level structured log entry.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.sugar.Warnw(msg, l.redact(fields)...)
}

// Error emits an ERROR-level structured log entry.
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.sugar.Errorw(msg, l.redact(fields)...)
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(l.redact(fields)...), redactPII: l.redactPII}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) redact(fields []interface{}) []interface{} {
	if !l.redactPII || len(fields) == 0 {
		return fields
	}
	out := make([]interface{}, len(fields))
	copy(out, fields)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if val, ok := out[i+1].(string); ok {
			out[i+1] = redactPIIValue(key, val)
		}
	}
	return out
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "subscriber") {
		return RedactEmail(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
