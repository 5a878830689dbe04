// Package logging configures the global zerolog logger and hands out
// component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

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

// Component names used across the pipeline.
const (
	ComponentClient     = "subgraph-client"
	ComponentOverview   = "overview"
	ComponentIndexNode  = "index-node"
	ComponentOverlay    = "overlay"
	ComponentServer     = "overview-server"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool `yaml:"pretty"`

	// Output defaults to os.Stderr.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns JSON output at info level.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Validate rejects unknown levels.
func (c Config) Validate() error {
	if _, ok := levels[LogLevel(strings.ToLower(string(c.Level)))]; !ok && c.Level != "" {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	return nil
}

var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel falls back to info for unknown levels.
func parseLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[LogLevel(strings.ToLower(string(level)))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// NewLogger creates a logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: page retries, overlay query results, cache hits and misses,
// partial indexing status.
//
// Info: completed overview loads, server startup and shutdown.
//
// Warn: page failures returning partial results, retry attempts, cache or
// Redis errors, failed indexing of the current deployment.
//
// Error: requests failing after all retries, configuration errors.
//
// Context Fields:
//   - component: emitting package
//   - endpoint: subgraph query URL
//   - subgraph: subgraph name (org/name)
//   - skip, page: pagination position
//   - status_code: HTTP status code
//   - error_class: client, server, rate_limit, network, query
//   - errors_remaining: endpoint error budget
//   - duration: elapsed time
