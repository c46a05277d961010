// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build integration_test

package sqltest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register the SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// NewSQLiteDB opens a SQLite file in a temporary directory of the test.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "coinmux_"+testID(t)+".sqlite")
	dsn := "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "failed to open SQLite database")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		require.NoError(t, err, "failed to ping SQLite database")
	}

	// The temporary directory is removed by the testing package.
	t.Cleanup(func() {
		assert.NoError(t, db.Close(), "failed to close SQLite database")
	})

	return db
}
