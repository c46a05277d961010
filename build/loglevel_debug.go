// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build debug
// +build debug

package build

// LogLevel specifies the debug log level.
var LogLevel = "debug"
