// Package observability provides unified logging and metrics for the
// provisioning and execution-logging subsystems. It follows a consistent
// approach across all components so callers can inject a single logger.
package observability

import (
	"time"
)

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for logging
type Logger interface {
	// Core logging methods with fields
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// Formatted logging methods
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// Context methods
	WithPrefix(prefix string) Logger
	With(fields map[string]interface{}) Logger
}

// MetricsClient defines the interface for metrics collection. Components
// record counters and durations through this interface; binding an actual
// exporter is the embedding application's concern.
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordDuration(name string, duration time.Duration)
	RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string)
	IncrementCounter(name string, value float64)
	Close() error
}
