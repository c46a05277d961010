// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType is the kind of logging selected by build tags.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes every subsystem directly to stdout.
	LogTypeStdOut

	// LogTypeDefault hands subsystems the backend of the coinmux binary,
	// which writes to stdout and the rotating log file.
	LogTypeDefault
)

// String returns the name of the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger returns the logger of a subsystem.  Packages call it from init
// with a nil constructor and stay silent until the coinmux binary installs a
// logger through their UseLogger functions.  Development builds tagged stdlog,
// which is how unit tests are run, log every subsystem straight to stdout.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if IsDevBuild() && LoggingType == LogTypeStdOut {
		return stdoutLogger(subsystem)
	}

	// Production builds always use the binary's backend.  Development
	// builds only do with default logging.
	useBackend := IsProdBuild() || LoggingType == LogTypeDefault
	if useBackend && genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}

// stdoutLogger returns a logger on its own stdout backend at the level picked
// by the loglevel build tags.
func stdoutLogger(subsystem string) btclog.Logger {
	logger := btclog.NewBackend(os.Stdout).Logger(subsystem)
	if level, ok := btclog.LevelFromString(LogLevel); ok {
		logger.SetLevel(level)
	}

	return logger
}
