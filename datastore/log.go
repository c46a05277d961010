// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/coinmux/build"
)

// Log is the logger shared by the store drivers.  It is exported so driver
// subpackages log under the same subsystem.
var Log btclog.Logger

// The default amount of logging is none.
func init() {
	UseLogger(build.NewSubLogger("STOR", nil))
}

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	Log = logger
}
