// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line written by a logger from Setup.
const ServiceName = "go-term-sync"

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. A nil Output writes to os.Stderr.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	// Configure output
	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Str("service", ServiceName).Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForItem scopes logger to one work item.
func ForItem(logger zerolog.Logger, reference string) zerolog.Logger {
	return logger.With().Str("reference", reference).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Individual requests (method, url)
//   - Pages fetched and cursors followed
//   - Each inserted term or list row
//
// Info: Normal operation events
//   - Job started/finished with counts
//   - Item added to the queue
//   - Dispatch summary
//   - Scheduler and worker startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Dispatch retries (with backoff)
//   - Subtree skipped in lenient tree fetch
//   - Non-2xx responses before classification
//
// Error: Error conditions requiring attention
//   - Failed record upserts
//   - Items that exhausted their attempts
//   - Jobs skipped on fetch, digest or credential failures
//
// Context Fields:
//   - component: emitting package (go-client, term-tree, dispatcher, queue, worker)
//   - reference: work item reference (<date>_<job>)
//   - job, kind, case_type: catalog job being processed
//   - url, status, error_class: remote request outcome
//   - attempt, attempts, backoff: dispatch retry state
//   - procedure, id, row_id: store writes
