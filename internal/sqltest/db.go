// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build integration_test

// Package sqltest provides isolated PostgreSQL and SQLite databases for
// integration tests of the SQL store.
package sqltest

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	// Postgres names the PostgreSQL backend.
	Postgres = "postgres"

	// SQLite names the SQLite backend.
	SQLite = "sqlite"
)

// DBFactory returns a fresh database handle unique to the calling test.  The
// database is removed when the test ends.
type DBFactory func(t testing.TB) *sql.DB

// DBTestFunc is a test run once per backend.  The backend name matches the
// store driver type.
type DBTestFunc func(t *testing.T, backend string, dbFactory DBFactory)

// RunDatabaseTest runs testFunc in parallel against PostgreSQL and SQLite.
func RunDatabaseTest(t *testing.T, testFunc DBTestFunc) {
	t.Helper()

	backends := []struct {
		name    string
		factory DBFactory
	}{
		{name: Postgres, factory: NewPostgresDB},
		{name: SQLite, factory: NewSQLiteDB},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			testFunc(t, b.name, b.factory)
		})
	}
}

// testID derives a short database name suffix from the test name.  Names are
// hashed because Postgres truncates long identifiers.
func testID(t testing.TB) string {
	t.Helper()

	h := fnv.New32a()
	_, err := h.Write([]byte(t.Name()))
	require.NoError(t, err)

	return fmt.Sprintf("%08x", h.Sum32())
}
