// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package bridge

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// EnvLogLevel overrides the configured log level when set.
const EnvLogLevel = "QBRIDGE_LOG_LEVEL"

// NewLogger builds the session logger. Output is human-readable when
// stderr is a terminal and JSON otherwise, so journald and pipe captures
// stay machine-parseable.
func NewLogger(level string) zerolog.Logger {
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}

	lvl, ok := parseLevel(level)
	if !ok {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// NewTestLogger returns a silent logger for tests.
func NewTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
