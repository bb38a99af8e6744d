package core

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (e.g., integration with zap, slog, etc.)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger is a Logger backed by logrus
type DefaultLogger struct {
	logger *logrus.Logger
}

// NewDefaultLogger creates a logger writing info and above to stderr
func NewDefaultLogger() *DefaultLogger {
	return NewLogrusLogger("info", os.Stderr)
}

// NewLogrusLogger creates a logger with the given level name and output.
// Unknown levels fall back to info.
func NewLogrusLogger(level string, out io.Writer) *DefaultLogger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if out != nil {
		log.SetOutput(out)
	}

	return &DefaultLogger{logger: log}
}

// WrapLogrus adapts an existing logrus logger
func WrapLogrus(log *logrus.Logger) *DefaultLogger {
	return &DefaultLogger{logger: log}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.entry(fields).Debug(msg)
}

func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.entry(fields).Info(msg)
}

func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.entry(fields).Warn(msg)
}

func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.entry(fields).Error(msg)
}

func (l *DefaultLogger) entry(fields []Field) *logrus.Entry {
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return l.logger.WithFields(data)
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
