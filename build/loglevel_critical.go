// Copyright (c) 2015-2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build critical
// +build critical

package build

// LogLevel specifies the critical log level.
var LogLevel = "critical"
