// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/slimedodge/server/internal/config"
)

// New returns a zerolog logger honoring level, format and output path.
// The returned closer releases the log file when one was opened.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, eris.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	switch cfg.OutputPath {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, eris.Wrapf(err, "open log file %s", cfg.OutputPath)
		}
		out = f
		closer = f
	}

	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// Component returns a sub-logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
