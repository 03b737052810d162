// File: internal/logging/logging.go
// Package logging
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Root logger construction. Components derive children with
// For(root, "http") and log through zerolog's leveled API.

package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New returns a logger writing to w. A terminal gets the console writer,
// anything else gets JSON lines. trace enables debug level globally.
func New(w io.Writer, trace bool) zerolog.Logger {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: "15:04:05.000"}
	}
	SetTrace(trace)
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetTrace switches the global level between debug and info.
func SetTrace(trace bool) {
	if trace {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Tracing reports whether debug output is enabled.
func Tracing() bool {
	return zerolog.GlobalLevel() <= zerolog.DebugLevel
}

// For returns a child of root tagged with component.
func For(root zerolog.Logger, component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
