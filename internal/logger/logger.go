// Package logger provides the leveled logger shared by the capture pipeline
// and the command surface.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// Debug level for per-frame detail
	Debug LogLevel = iota
	// Info level for session lifecycle
	Info
	// Warn level for skipped work
	Warn
	// Error level for failures that need attention
	Error
)

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Config holds logger configuration
type Config struct {
	// Level is the minimum level to log
	Level LogLevel
	// File is the path to the log file. If empty, logs go to Output only
	File string
	// MaxSizeMB is the size at which the log file is rotated
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int
	// Output receives every line in addition to File. Defaults to stderr.
	Output io.Writer
}

// Logger writes printf-style messages at or above its level.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	out    *log.Logger
	closer io.Closer
}

var (
	defaultLogger *Logger
	defaultMu     sync.Mutex
)

// New creates a logger. When cfg.File is set the file is rotated by
// lumberjack.
func New(cfg Config) (*Logger, error) {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	writers := []io.Writer{output}

	var closer io.Closer
	if cfg.File != "" {
		file := filepath.Clean(cfg.File)
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	return &Logger{
		level:  cfg.Level,
		out:    log.New(io.MultiWriter(writers...), "", log.Ldate|log.Ltime|log.Lmicroseconds),
		closer: closer,
	}, nil
}

// Initialize replaces the package default logger.
func Initialize(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger != nil {
		defaultLogger.Close()
	}
	defaultLogger = l
	return nil
}

// GetLogger returns the default logger, creating an Info level stderr logger
// if Initialize was never called.
func GetLogger() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger, _ = New(Config{Level: Info})
	}
	return defaultLogger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l, _ := New(Config{Level: Error + 1, Output: io.Discard})
	return l
}

// Close releases the rotated log file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) logf(level LogLevel, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	l.out.Printf("%s: "+format, append([]interface{}{level}, v...)...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) { l.logf(Debug, format, v...) }

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) { l.logf(Info, format, v...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) { l.logf(Warn, format, v...) }

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) { l.logf(Error, format, v...) }

// ParseLogLevel converts a string level to LogLevel
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return Debug, nil
	case "info", "":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	default:
		return Info, fmt.Errorf("unknown log level: %s", level)
	}
}
