// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqlstore implements stores backed by PostgreSQL and SQLite.  Both
// keep every message in a single table ordered by an increasing id.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/coinmux/datastore"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register the SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

const (
	// PostgresType is the driver type of PostgreSQL stores.
	PostgresType = "postgres"

	// SQLiteType is the driver type of SQLite stores.
	SQLiteType = "sqlite"
)

const (
	postgresSchema = `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			namespace TEXT NOT NULL,
			payload BYTEA NOT NULL,
			published_at BIGINT NOT NULL
		);`

	sqliteSchema = `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			payload BLOB NOT NULL,
			published_at BIGINT NOT NULL
		);`

	indexSQL = `
		CREATE INDEX IF NOT EXISTS messages_namespace_idx
		ON messages (namespace, id);`

	insertSQL = `
		INSERT INTO messages (namespace, payload, published_at)
		VALUES ($1, $2, $3);`

	selectSQL = `
		SELECT payload FROM messages
		WHERE namespace = $1
		ORDER BY id;`
)

// Store is a SQL backed store.
type Store struct {
	storeType string

	// open returns a fresh handle.  It is nil for stores wrapping a
	// caller owned handle.
	open func() (*sql.DB, error)

	mu sync.RWMutex
	db *sql.DB

	// external is set when db belongs to the caller and must survive
	// Disconnect.
	external  *sql.DB
	connected bool
}

// A compile-time assertion to ensure Store meets the datastore.Store
// interface.
var _ datastore.Store = (*Store)(nil)

// New returns a store of the given type that opens dsn with the matching
// database/sql driver on Connect.
func New(storeType, dsn string) (*Store, error) {
	var driverName string
	switch storeType {
	case PostgresType:
		driverName = "pgx"
	case SQLiteType:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("%w: %q", datastore.ErrUnknownType,
			storeType)
	}

	return &Store{
		storeType: storeType,
		open: func() (*sql.DB, error) {
			return sql.Open(driverName, dsn)
		},
	}, nil
}

// NewWithDB returns a store of the given type over an existing handle.
// Disconnect leaves the handle open.
func NewWithDB(storeType string, db *sql.DB) (*Store, error) {
	if storeType != PostgresType && storeType != SQLiteType {
		return nil, fmt.Errorf("%w: %q", datastore.ErrUnknownType,
			storeType)
	}

	return &Store{storeType: storeType, external: db}, nil
}

// Connect opens the database and creates the schema when needed.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	db := s.external
	if db == nil {
		var err error
		db, err = s.open()
		if err != nil {
			return err
		}
	}

	// SQLite allows a single writer.
	if s.storeType == SQLiteType {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(ctx, db, s.storeType); err != nil {
		if s.external == nil {
			_ = db.Close()
		}
		return fmt.Errorf("unable to prepare %s store: %w",
			s.storeType, err)
	}

	s.db = db
	s.connected = true

	datastore.Log.Debugf("Connected %s store", s.storeType)

	return nil
}

// migrate creates the messages table.
func migrate(ctx context.Context, db *sql.DB, storeType string) error {
	schema := postgresSchema
	if storeType == SQLiteType {
		schema = sqliteSchema
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, indexSQL)

	return err
}

// Disconnect implements datastore.Store.
func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	s.connected = false

	db := s.db
	s.db = nil
	if s.external != nil {
		return nil
	}

	return db.Close()
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, datastore.ErrNotConnected
	}
	return s.db, nil
}

// Publish implements datastore.Store.
func (s *Store) Publish(ctx context.Context, namespace string,
	msg []byte) error {

	if err := datastore.CheckNamespace(namespace); err != nil {
		return err
	}

	db, err := s.handle()
	if err != nil {
		return err
	}

	// A nil payload would be stored as NULL.
	if msg == nil {
		msg = []byte{}
	}
	_, err = db.ExecContext(
		ctx, insertSQL, namespace, msg, time.Now().UnixNano(),
	)

	return err
}

// Poll implements datastore.Store.
func (s *Store) Poll(ctx context.Context, namespace string) ([][]byte, error) {
	if err := datastore.CheckNamespace(namespace); err != nil {
		return nil, err
	}

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectSQL, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		msgs = append(msgs, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return msgs, nil
}

// openPostgres is the callback provided during driver registration.  The
// postgres:// URI is handed to pgx unchanged.
func openPostgres(args ...interface{}) (datastore.Store, error) {
	u, err := datastore.URIArg(PostgresType, args...)
	if err != nil {
		return nil, err
	}

	return New(PostgresType, u.String())
}

// openSQLite is the callback provided during driver registration.  It takes
// a sqlite:///path/to/file.db URI.
func openSQLite(args ...interface{}) (datastore.Store, error) {
	u, err := datastore.URIArg(SQLiteType, args...)
	if err != nil {
		return nil, err
	}

	path := u.Host + u.Path
	if path == "" {
		return nil, fmt.Errorf("%w: %s URI without a path",
			datastore.ErrInvalidArgs, SQLiteType)
	}
	dsn := "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)"

	return New(SQLiteType, dsn)
}

func init() {
	drivers := []datastore.Driver{
		{Type: PostgresType, Open: openPostgres},
		{Type: SQLiteType, Open: openSQLite},
	}
	for _, driver := range drivers {
		if err := datastore.RegisterDriver(driver); err != nil {
			panic(fmt.Sprintf("Failed to register store driver "+
				"'%s': %v", driver.Type, err))
		}
	}
}
