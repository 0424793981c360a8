// Package logger provides a thread-safe, levelled logger backed by
// go.uber.org/zap.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Level represents a logging verbosity level.
type Level int

const (
	// LevelTrace emits per-frame/per-byte detail: raw ClientHello bytes,
	// SETTINGS frame contents, individual header lines. Noisy enough that
	// it sits below LevelDebug and is almost never the default.
	LevelTrace Level = iota
	// LevelDebug emits connector/pipeline decisions (pool hits, redirect
	// follows, retry attempts).
	LevelDebug
	// LevelInfo emits request/response summaries.
	LevelInfo
	// LevelError emits only ERROR messages.
	LevelError
)

// Logger is a structured, levelled logger wrapping a zap.SugaredLogger.
//
// Thread-safety: zap's core serialises writes to the underlying encoder/sink
// itself. The Logger wrapper adds its own mutex only for the level field so
// that SetLevel may be called concurrently with logging methods.
type Logger struct {
	sugar *zap.SugaredLogger
	mu    sync.RWMutex
	level Level
}

// New creates a Logger at the given minimum level, backed by a production
// zap.Logger (JSON-encoded, epoch-seconds timestamps, stderr sink) whose own
// level is opened to Debug, so level filtering is left to the Logger.
func New(level Level) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	return &Logger{sugar: zl.Sugar(), level: level}
}

// SetLevel changes the minimum log level at runtime. Safe for concurrent use.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) enabled(at Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level <= at
}

// Trace logs a message at TRACE level.
func (l *Logger) Trace(msg string) {
	if l.enabled(LevelTrace) {
		l.sugar.Debug(msg)
	}
}

// Tracef logs a formatted message at TRACE level.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Trace(fmt.Sprintf(format, args...))
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string) {
	if l.enabled(LevelDebug) {
		l.sugar.Debug(msg)
	}
}

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string) {
	if l.enabled(LevelInfo) {
		l.sugar.Info(msg)
	}
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string) {
	if l.enabled(LevelError) {
		l.sugar.Error(msg)
	}
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// Sync flushes any buffered log entries, per zap's own convention of calling
// Sync before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
