package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// maxLogSizeMB is the size at which the debug log file is rotated.
	maxLogSizeMB = 10

	// maxLogBackups is how many rotated log files are kept.
	maxLogBackups = 3
)

// Logger defines the common logging interface used throughout the application.
// It separates internal (debug) logs from user-facing messages.
type Logger interface {
	// Info logs an informational message to the debug log only.
	Info(format string, args ...any)

	// Warning logs a warning to the debug log, and to stdout in verbose mode.
	Warning(format string, args ...any)

	// Error logs an error to the debug log and always to stderr.
	Error(format string, args ...any)

	// InfoToUser logs an informational message and always shows it to the user.
	InfoToUser(format string, args ...any)

	// WarningToUser logs a warning and always shows it to the user.
	WarningToUser(format string, args ...any)

	// Success logs a success message and shows it to the user.
	Success(format string, args ...any)

	// StatusMessage prints a status line to stdout without logging it.
	StatusMessage(format string, args ...any)

	// Close flushes and closes the debug log file, if any.
	Close() error
}

// DefaultLogger provides structured logging capability and implements the Logger interface
type DefaultLogger struct {
	mu        sync.Mutex
	logger    *slog.Logger
	enabled   bool
	logFile   string
	verbose   bool
	sessionID string
	stdout    io.Writer
	stderr    io.Writer
	file      io.WriteCloser
}

// New creates a new Logger instance
func New(enabled bool, logFile string, verbose bool) Logger {
	return NewWithOutput(enabled, logFile, verbose, os.Stdout, os.Stderr)
}

// NewWithOutput creates a DefaultLogger with custom output writers
func NewWithOutput(enabled bool, logFile string, verbose bool, stdout, stderr io.Writer) *DefaultLogger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	sessionID := uuid.NewString()

	var (
		handler slog.Handler
		file    io.WriteCloser
	)

	if enabled {
		logDir := filepath.Dir(logFile)
		if logDir != "." {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				_, _ = fmt.Fprintf(stderr, "⚠️ Failed to create log directory: %v\n", err)
			}
		}

		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
		}

		// lumberjack opens lazily; probe once so a bad path falls back to stderr
		if _, err := rotating.Write(nil); err == nil {
			file = rotating
			handler = slog.NewTextHandler(rotating, opts)
			_, _ = fmt.Fprintf(stdout, "🔍 Debug logging enabled. Logs will be written to: %s\n", logFile)
		} else {
			handler = slog.NewTextHandler(stderr, opts)
			_, _ = fmt.Fprintf(stderr, "⚠️ Failed to open log file: %v, using stderr instead\n", err)
		}
	} else {
		handler = slog.NewTextHandler(stderr, opts)
	}

	logger := slog.New(handler).With(slog.String("session", sessionID))
	if file != nil {
		logger.Info("gitwatch debug logging started")
	}

	return &DefaultLogger{
		logger:    logger,
		enabled:   enabled,
		logFile:   logFile,
		verbose:   verbose,
		sessionID: sessionID,
		stdout:    stdout,
		stderr:    stderr,
		file:      file,
	}
}

// SessionID returns the identifier attached to every record of this logger.
func (l *DefaultLogger) SessionID() string {
	return l.sessionID
}

// Info logs an informational message (file only)
func (l *DefaultLogger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	l.logger.Info(fmt.Sprintf(format, args...))
}

// InfoToUser logs an informational message to both file and stdout
func (l *DefaultLogger) InfoToUser(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.enabled {
		l.logger.Info(msg)
	}

	_, _ = fmt.Fprintf(l.stdout, "ℹ️  %s\n", msg)
}

// Success logs a success message to both file and stdout
func (l *DefaultLogger) Success(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.enabled {
		l.logger.Info(msg)
	}

	_, _ = fmt.Fprintf(l.stdout, "✅ %s\n", msg)
}

// Warning logs a warning message
func (l *DefaultLogger) Warning(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.enabled {
		l.logger.Warn(msg)
	}

	if l.verbose {
		_, _ = fmt.Fprintf(l.stdout, "⚠️  %s\n", msg)
	}
}

// WarningToUser logs a warning message to both file and stdout
func (l *DefaultLogger) WarningToUser(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.enabled {
		l.logger.Warn(msg)
	}

	_, _ = fmt.Fprintf(l.stdout, "⚠️  %s\n", msg)
}

// Error logs an error message
func (l *DefaultLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.enabled {
		l.logger.Error(msg)
	}

	_, _ = fmt.Fprintf(l.stderr, "❌ %s\n", msg)
}

// StatusMessage prints a status message to stdout only (no logging)
func (l *DefaultLogger) StatusMessage(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintln(l.stdout, fmt.Sprintf(format, args...))
}

// Close closes the rotating log file, if one is open
func (l *DefaultLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// SetStdout sets a custom writer for user-facing stdout messages only.
// It does not affect where structured slog records are written.
func (l *DefaultLogger) SetStdout(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = w
}

// SetStderr sets a custom writer for user-facing stderr messages only.
func (l *DefaultLogger) SetStderr(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stderr = w
}

// Nop returns a Logger that discards everything. Useful in tests.
func Nop() Logger {
	return NewWithOutput(false, "", false, io.Discard, io.Discard)
}
