package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger provides different logging levels
type Logger struct {
	debug   bool
	verbose bool
	entry   *logrus.Entry
}

// NewLogger creates a new logger with the specified levels
func NewLogger(debug, verbose bool) *Logger {
	return newLogger(debug, verbose, os.Stdout)
}

// NewLoggerWithFile creates a new logger that writes to both stdout and a file
func NewLoggerWithFile(debug, verbose bool, logFilePath string) (*Logger, error) {
	// Ensure directory for the specific log file exists (handles nested paths)
	if err := EnsureDirForFile(logFilePath); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", logFilePath, err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	return newLogger(debug, verbose, io.MultiWriter(os.Stdout, logFile)), nil
}

// NewDiscardLogger returns a logger that drops everything. Used by tests and
// library callers that did not configure logging.
func NewDiscardLogger() *Logger {
	return newLogger(false, false, io.Discard)
}

func newLogger(debug, verbose bool, w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	switch {
	case verbose:
		l.SetLevel(logrus.TraceLevel)
	case debug:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return &Logger{debug: debug, verbose: verbose, entry: logrus.NewEntry(l)}
}

// With returns a child logger carrying a structured field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{debug: l.debug, verbose: l.verbose, entry: l.entry.WithField(key, value)}
}

// IsDebug reports whether debug output is enabled
func (l *Logger) IsDebug() bool { return l.debug || l.verbose }

// Info logs informational messages (always shown)
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs recoverable problems (always shown)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Debug logs debug messages (only if debug enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Verbose logs verbose messages (only if verbose enabled)
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Error logs error messages (always shown)
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
