// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level, encoding and destination.
type Options struct {
	Level string // debug|info|warn|error; empty means info
	// Format is "json" (default) or "console".
	Format string
	Writer io.Writer
}

// New returns a logger with timestamps. Unknown levels fall back to info.
func New(o Options) zerolog.Logger {
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(o.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(o.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a config string onto a zerolog level.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Nop is a logger that discards everything, used as the zero value in
// component configs.
func Nop() zerolog.Logger { return zerolog.Nop() }
