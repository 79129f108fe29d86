package logging

import (
	"context"
	"log/slog"
)

// LeveledLogger adapts the facade to libraries that log with a message and
// key/value pairs, such as go-retryablehttp.
type LeveledLogger struct {
	subsystem string
}

// NewLeveledLogger returns a LeveledLogger tagging entries with subsystem.
func NewLeveledLogger(subsystem string) *LeveledLogger {
	return &LeveledLogger{subsystem: subsystem}
}

func (l *LeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LevelError, msg, keysAndValues)
}

func (l *LeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LevelWarn, msg, keysAndValues)
}

func (l *LeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LevelInfo, msg, keysAndValues)
}

// Debug is where retryablehttp reports every request; keep it quiet.
func (l *LeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LevelDebug, msg, keysAndValues)
}

func (l *LeveledLogger) log(level LogLevel, msg string, keysAndValues []interface{}) {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()
	if logger == nil || !logger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	args := append([]any{slog.String("subsystem", l.subsystem)}, keysAndValues...)
	logger.Log(context.Background(), level.SlogLevel(), msg, args...)
}
