// Package corelog is the core's structured logging setup, shared by the
// async runtime, the pipeline engine, and the container lifecycle so every
// subsystem logs through one configured zerolog.Logger.
package corelog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger instance, configured by Init.
var Logger zerolog.Logger

// Level is the core's own level enum, kept distinct from zerolog's so
// callers never need to import zerolog just to configure logging.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds the startup logging configuration, normally populated from
// the daemon's YAML config file or overridden by CLI flags.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init configures the global Logger. Safe to call once at process startup.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

func init() {
	// A usable default before Init is called, so package-level loggers
	// obtained during tests or early init never panic on a zero Logger.
	Init(Config{Level: InfoLevel})
}

// WithComponent returns a child logger tagged with the subsystem name, e.g.
// "scheduler", "runtime", "pipeline", "isolation".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTaskID returns a child logger tagged with a task identity.
func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

// WithPipelineID returns a child logger tagged with a pipeline identity.
func WithPipelineID(pipelineID string) zerolog.Logger {
	return Logger.With().Str("pipeline_id", pipelineID).Logger()
}

// WithContainerID returns a child logger tagged with a container identity.
func WithContainerID(containerID string) zerolog.Logger {
	return Logger.With().Str("container_id", containerID).Logger()
}
