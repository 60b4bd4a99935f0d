// Package log provides a process-wide zap logger with the small set of
// package-level helpers used throughout this repository's call sites.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	lvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	l   = NewLoggerWithLevel("opendut", lvl.Level())
)

// NewLoggerWithLevel constructs a zap.Logger writing JSON to stderr at the given level.
func NewLoggerWithLevel(name string, level zapcore.Level, opts ...zap.Option) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	return zap.New(core, opts...).Named(name)
}

// SetLevel adjusts the process-wide default logger's level, e.g. from a CCPD_LOG/ECAD_LOG
// environment variable.
func SetLevel(level zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	lvl.SetLevel(level)
	l = NewLoggerWithLevel("opendut", level)
}

// SetLogger replaces the process-wide logger outright (used by daemons to attach a
// component name or fields at startup).
func SetLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	l = logger
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return l
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { current().Fatal(msg, fields...) }

func Debugf(format string, args ...any) { current().Sugar().Debugf(format, args...) }
func Infof(format string, args ...any)  { current().Sugar().Infof(format, args...) }
func Warnf(format string, args ...any)  { current().Sugar().Warnf(format, args...) }
func Errorf(format string, args ...any) { current().Sugar().Errorf(format, args...) }
func Fatalf(format string, args ...any) { current().Sugar().Fatalf(format, args...) }

// ParseLevel parses one of "debug", "info", "warn", "error" (case-insensitive), defaulting
// to info on an empty or unrecognised string. Used for CCPD_LOG / ECAD_LOG.
func ParseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
