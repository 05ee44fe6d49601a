// Package proxydlog configures the process-wide zerolog logger used by
// every ProxyD component.
package proxydlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level names a logging verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Options controls how Init builds the global logger.
type Options struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Logger is the process-wide logger, safe for concurrent use once Init has
// run. Before Init it behaves as a no-op disabled logger.
var Logger zerolog.Logger = zerolog.Nop()

// Init configures Logger from opts. JSONOutput selects structured logging
// suited to production log aggregation; its absence selects a
// human-readable console writer suited to local runs.
func Init(opts Options) {
	var level zerolog.Level
	switch opts.Level {
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

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	if opts.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component name,
// the unit most ProxyD log lines are scoped to (store, lookup, scheduler,
// importer, downloader).
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
