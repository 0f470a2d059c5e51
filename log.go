package onvif

import (
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// NewLogger builds the diagnostic logger. Output defaults to stderr so
// stdout only ever carries stream links. format is "json" or "console".
func NewLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), errors.Annotatef(err, "log level %q", level)
		}
		lvl = parsed
	}

	if w == nil {
		w = os.Stderr
	}
	switch format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), errors.NotValidf("log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
