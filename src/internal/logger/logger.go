// Package logger configures the process-wide zerolog logger and hands out
// per-component child loggers.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Setup installs the base logger writing to w at the given level
// ("debug", "info", "warn", "error", "disabled"). Terminals get a human
// readable console writer; anything else gets JSON lines.
func Setup(level string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.TimeOnly}
	}

	mu.Lock()
	base = zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	mu.Unlock()
	return nil
}

// SetLevel changes the level of the base logger without replacing its output.
func SetLevel(lvl zerolog.Level) {
	mu.Lock()
	base = base.Level(lvl)
	mu.Unlock()
}

// Base returns the current base logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Component returns a child of the base logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Base().With().Str("component", name).Logger()
}
