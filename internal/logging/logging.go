// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var (
	isTerminalFn           = term.IsTerminal
	baseWriter   io.Writer = os.Stderr
)

// Config controls logger initialization.
type Config struct {
	Level     string // "debug", "info", "warn", "error"
	Format    string // "json", "console", or "auto"
	Component string // optional component name
}

// Init configures zerolog globals and returns the base logger. With format
// "auto" the console writer is used only when stderr is a terminal.
func Init(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	writer := selectWriter(cfg.Format)
	logger := zerolog.New(writer).With().Timestamp()
	if cfg.Component != "" {
		logger = logger.Str("component", cfg.Component)
	}

	base := logger.Logger()
	log.Logger = base
	return base
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func selectWriter(format string) io.Writer {
	switch strings.ToLower(format) {
	case "json":
		return baseWriter
	case "console":
		return zerolog.ConsoleWriter{Out: baseWriter, TimeFormat: time.RFC3339}
	default:
		if f, ok := baseWriter.(*os.File); ok && isTerminalFn(int(f.Fd())) {
			return zerolog.ConsoleWriter{Out: baseWriter, TimeFormat: time.RFC3339}
		}
		return baseWriter
	}
}
