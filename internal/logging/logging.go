// Package logging builds the zerolog.Logger every other package takes
// as a constructor parameter. There is no global logger: New returns a
// value the caller threads through explicitly. ForRelay attaches
// per-relay context; other context is attached with the ordinary
// zerolog.With chain.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the verbosity and rendering of the root logger.
type Config struct {
	Debug bool
	JSONOutput bool
	Output io.Writer // defaults to os.Stderr
}

// New builds the root logger. Debug enables debug-level output;
// everything else stays at info and above.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var w io.Writer = output
	if !cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ForRelay attaches the relay URL a connection's log lines should carry,
// so messages from concurrent relay goroutines can be told apart.
func ForRelay(log zerolog.Logger, uri string) zerolog.Logger {
	return log.With().Str("relay", uri).Logger()
}
