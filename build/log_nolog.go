// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build nolog
// +build nolog

package build

// LoggingType disables every subsystem logger, including the stdout
// loggers of test binaries.
const LoggingType = LogTypeNone
