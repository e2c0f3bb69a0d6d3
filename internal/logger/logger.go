// Package logger builds the zerolog logger shared by every component.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/sse-chat/internal/config"
)

// Output formats accepted in LogConfig.Format. Anything other than
// FormatJSON produces human-readable console output.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New creates a logger writing to stdout.
func New(cfg config.LogConfig, service string) zerolog.Logger {
	return NewWithWriter(cfg, service, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Unknown levels fall back to info.
func NewWithWriter(cfg config.LogConfig, service string, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.ToLower(cfg.Format) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
