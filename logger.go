package saldo

import (
	"log"

	"github.com/google/uuid"
)

// Logger is the structured logging interface used for debug output. Keys and
// values alternate in keysAndValues, slog style.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes key/value pairs through the standard library logger.
// Intended for examples and local debugging, not production log pipelines.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger on the default log output.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{logger: log.Default()}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.print("DEBUG", msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.print("INFO", msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.print("WARN", msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.print("ERROR", msg, keysAndValues...)
}

func (l *SimpleLogger) print(level, msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("[%s] %s %v", level, msg, keysAndValues)
}

// DebugConfig controls which pipeline stages emit debug logs. All flags are
// off unless enabled explicitly; RequestIDGen tags every log line of one
// logical call with the same ID.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogCircuit   bool
	LogRateLimit bool
	LogPool      bool
	LogAuth      bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a config with all stages enabled once Enabled
// is flipped on, and a UUID-prefix request ID generator.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogCircuit:   true,
		LogRateLimit: true,
		LogPool:      true,
		LogAuth:      true,
		RequestIDGen: generateRequestID,
	}
}

// generateRequestID returns a short unique ID for correlating log lines.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
