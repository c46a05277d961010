// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build integration_test

package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	pgOnce     sync.Once
	pgAdminDSN string
	pgErr      error
)

// adminDSN starts the shared Postgres container on first use and returns the
// DSN of its admin database.
func adminDSN(t testing.TB) string {
	t.Helper()

	pgOnce.Do(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 2*time.Minute,
		)
		defer cancel()

		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("coinmux"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = fmt.Errorf("start container: %w", err)
			return
		}

		pgAdminDSN, pgErr = container.ConnectionString(
			ctx, "sslmode=disable",
		)
	})
	require.NoError(t, pgErr, "postgres container unavailable")

	return pgAdminDSN
}

// execAdmin runs a statement against the admin database.
func execAdmin(ctx context.Context, dsn, stmt string) error {
	admin, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer admin.Close()

	_, err = admin.ExecContext(ctx, stmt)
	return err
}

// NewPostgresDB creates a database named after the test inside the shared
// container and drops it when the test ends.
func NewPostgresDB(t testing.TB) *sql.DB {
	t.Helper()

	dsn := adminDSN(t)
	name := "coinmux_test_" + testID(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := execAdmin(ctx, dsn, "CREATE DATABASE "+name)
	require.NoError(t, err, "failed to create test database")

	testDSN, err := withDBName(dsn, name)
	require.NoError(t, err)

	db, err := sql.Open("pgx", testDSN)
	require.NoError(t, err, "failed to open test database")

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(30 * time.Second)

	t.Cleanup(func() {
		assert.NoError(t, db.Close())

		ctx, cancel := context.WithTimeout(
			context.Background(), 30*time.Second,
		)
		defer cancel()

		_ = execAdmin(ctx, dsn, fmt.Sprintf(
			"DROP DATABASE IF EXISTS %s WITH (FORCE)", name,
		))
	})

	return db
}

// withDBName replaces the database of a postgres:// DSN.
func withDBName(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	u.Path = "/" + name

	return u.String(), nil
}
