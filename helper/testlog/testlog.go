// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package testlog creates hclog loggers backed by testing.T so that test
// output interleaves with logging from the code under test.
package testlog

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// LogPrinter is the methods of testing.T (or testing.B) needed by the test
// logger.
type LogPrinter interface {
	Logf(format string, args ...interface{})
}

// writer implements io.Writer on top of a LogPrinter.
type writer struct {
	t LogPrinter
}

// Write to an underlying LogPrinter. Never returns an error.
func (w *writer) Write(p []byte) (n int, err error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// NewWriter creates a new io.Writer backed by a LogPrinter.
func NewWriter(t LogPrinter) io.Writer {
	return &writer{t}
}

// HCLogger returns a trace-level hclog logger that writes through t. Set
// FIELDWARD_TEST_LOG_LEVEL to lower the verbosity.
func HCLogger(t LogPrinter) hclog.InterceptLogger {
	level := hclog.Trace
	if env := os.Getenv("FIELDWARD_TEST_LOG_LEVEL"); env != "" {
		level = hclog.LevelFromString(env)
	}
	opts := &hclog.LoggerOptions{
		Level:           level,
		Output:          NewWriter(t),
		IncludeLocation: true,
	}
	return hclog.NewInterceptLogger(opts)
}
