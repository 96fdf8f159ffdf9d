// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging owns the process logger. Pipeline components receive
// L (or a derived logger via With) explicitly.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// L is the package-level logger. Callers should use the helper functions
// below for compatibility with existing calls.
var L = clog.New(os.Stderr)

// Setup replaces L with a logger writing to w at the given level. format is
// "text", "logfmt" or "json"; "text" falls back to logfmt when w is not a
// terminal.
func Setup(level, format string, w io.Writer) (*clog.Logger, error) {
	lvl, err := clog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := clog.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}
	switch strings.ToLower(format) {
	case "", "text":
		opts.Formatter = clog.TextFormatter
		if !isTerminal(w) {
			opts.Formatter = clog.LogfmtFormatter
		}
	case "logfmt":
		opts.Formatter = clog.LogfmtFormatter
	case "json":
		opts.Formatter = clog.JSONFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	L = clog.NewWithOptions(w, opts)
	return L, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// With returns a child of L carrying the given key/value pairs.
func With(keyvals ...interface{}) *clog.Logger {
	return L.With(keyvals...)
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Error(fmt.Sprintf(format, v...))
}
