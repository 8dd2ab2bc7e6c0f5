// Package logging builds the zerolog logger used by the tinyrpc binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/marrasen/tinyrpc/config"
)

// New returns a logger tagged with app. Console output is human-readable;
// otherwise records are JSON lines on stderr.
func New(app string, cfg config.LogConfig) zerolog.Logger {
	return NewWriter(os.Stderr, app, cfg)
}

// NewWriter is like New but writes to w.
func NewWriter(w io.Writer, app string, cfg config.LogConfig) zerolog.Logger {
	out := w
	if cfg.Console {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
