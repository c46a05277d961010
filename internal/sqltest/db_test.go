// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build integration_test

package sqltest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDatabaseIsolation checks that every test receives its own empty
// database.
func TestDatabaseIsolation(t *testing.T) {
	const (
		createSQL = `CREATE TABLE IF NOT EXISTS counter (n INTEGER);`
		insertSQL = `INSERT INTO counter (n) VALUES ($1);`
		countSQL  = `SELECT COUNT(*) FROM counter;`
	)

	RunDatabaseTest(t, func(t *testing.T, backend string,
		dbFactory DBFactory) {

		for _, name := range []string{"first", "second"} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				db := dbFactory(t)
				_, err := db.Exec(createSQL)
				require.NoError(t, err)

				var count int
				err = db.QueryRow(countSQL).Scan(&count)
				require.NoError(t, err)
				require.Zero(t, count, backend)

				_, err = db.Exec(insertSQL, 1)
				require.NoError(t, err)
			})
		}
	})
}
