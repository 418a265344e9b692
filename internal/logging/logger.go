// Package logging builds the structured logger shared by every repotidy
// component. Console output goes to stderr; when a log file is configured
// entries are appended to it as JSON lines instead.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
)

// Log levels supported by the logger
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// New creates a logger at the given level. An empty logFile logs to stderr
// with the console writer.
func New(level, logFile string) (*log.Logger, io.Closer, error) {
	logger := &log.Logger{
		Level: parseLevel(level),
	}

	if logFile == "" {
		logger.Writer = &log.ConsoleWriter{
			ColorOutput:    true,
			QuoteString:    true,
			EndWithMessage: true,
			Writer:         os.Stderr,
		}
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger.Writer = &log.IOWriter{Writer: file}
	return logger, file, nil
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.ErrorLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// parseLevel converts a string log level to a log.Level.
// Defaults to info if the level string is not recognized.
func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return log.DebugLevel
	case LevelInfo:
		return log.InfoLevel
	case LevelWarn, "warning":
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
