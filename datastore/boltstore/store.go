// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package boltstore implements a store in a bolt file opened through the
// walletdb bdb driver.  Every namespace is a top level bucket keyed by its
// bucket sequence number, so Poll returns messages in publish order.
//
// A bolt file can only be opened by one process at a time.  Mixers sharing
// the store must share the Store value, which is safe for concurrent use.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/coinmux/datastore"
)

const (
	storeType = "bolt"

	// dbType is the walletdb driver the file is opened with.
	dbType = "bdb"

	// defaultOpenTimeout bounds the wait for the file lock.
	defaultOpenTimeout = 5 * time.Second
)

// Store is a bolt backed store.
type Store struct {
	path    string
	timeout time.Duration

	mu sync.RWMutex
	db walletdb.DB
}

// A compile-time assertion to ensure Store meets the datastore.Store
// interface.
var _ datastore.Store = (*Store)(nil)

// New returns a store for the file at path.  The file is created on Connect
// if it does not exist.
func New(path string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	return &Store{path: path, timeout: timeout}
}

// Connect implements datastore.Store.
func (s *Store) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	// The freelist is rebuilt on open instead of synced on every publish.
	db, err := walletdb.Open(dbType, s.path, true, s.timeout)
	if errors.Is(err, walletdb.ErrDbDoesNotExist) {
		db, err = walletdb.Create(dbType, s.path, true, s.timeout)
	}
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", s.path, err)
	}
	s.db = db

	datastore.Log.Debugf("Opened bolt store %s", s.path)

	return nil
}

// Disconnect implements datastore.Store.
func (s *Store) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil

	return err
}

// withDB runs f against the open database.
func (s *Store) withDB(f func(db walletdb.DB) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return datastore.ErrNotConnected
	}
	return f(s.db)
}

// Publish implements datastore.Store.
func (s *Store) Publish(_ context.Context, namespace string,
	msg []byte) error {

	if err := datastore.CheckNamespace(namespace); err != nil {
		return err
	}

	r := record{
		payload:     msg,
		publishedAt: uint64(time.Now().UnixNano()),
	}
	var buf bytes.Buffer
	if err := r.encode(&buf); err != nil {
		return err
	}

	return s.withDB(func(db walletdb.DB) error {
		return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
			name := []byte(namespace)
			bucket := tx.ReadWriteBucket(name)
			if bucket == nil {
				var err error
				bucket, err = tx.CreateTopLevelBucket(name)
				if err != nil {
					return err
				}
			}

			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}

			var key [8]byte
			binary.BigEndian.PutUint64(key[:], seq)

			return bucket.Put(key[:], buf.Bytes())
		})
	})
}

// Poll implements datastore.Store.
func (s *Store) Poll(_ context.Context, namespace string) ([][]byte, error) {
	if err := datastore.CheckNamespace(namespace); err != nil {
		return nil, err
	}

	var msgs [][]byte
	err := s.withDB(func(db walletdb.DB) error {
		return walletdb.View(db, func(tx walletdb.ReadTx) error {
			bucket := tx.ReadBucket([]byte(namespace))
			if bucket == nil {
				return nil
			}

			return bucket.ForEach(func(k, v []byte) error {
				r, err := decodeRecord(v)
				if err != nil {
					datastore.Log.Warnf("Skipping corrupt "+
						"record %x in %s: %v", k,
						namespace, err)
					return nil
				}

				// Values are only valid during the
				// transaction.
				msgs = append(msgs,
					append([]byte(nil), r.payload...))
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	return msgs, nil
}

// stores caches stores by path so every Open of the same file shares one
// handle.
var (
	storesMtx sync.Mutex
	stores    = make(map[string]*Store)
)

// openDriver is the callback provided during driver registration.  It takes a
// bolt:///path/to/file.db URI.
func openDriver(args ...interface{}) (datastore.Store, error) {
	u, err := datastore.URIArg(storeType, args...)
	if err != nil {
		return nil, err
	}

	path := u.Host + u.Path
	if path == "" {
		return nil, fmt.Errorf("%w: %s URI without a path",
			datastore.ErrInvalidArgs, storeType)
	}
	path = filepath.Clean(path)

	storesMtx.Lock()
	defer storesMtx.Unlock()

	store, ok := stores[path]
	if !ok {
		store = New(path, defaultOpenTimeout)
		stores[path] = store
	}

	return store, nil
}

func init() {
	driver := datastore.Driver{
		Type: storeType,
		Open: openDriver,
	}
	if err := datastore.RegisterDriver(driver); err != nil {
		panic(fmt.Sprintf("Failed to register store driver '%s': %v",
			storeType, err))
	}
}
