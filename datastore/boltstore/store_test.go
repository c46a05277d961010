// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package boltstore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/coinmux/datastore"
	"github.com/btcsuite/coinmux/datastore/storetest"
	"github.com/stretchr/testify/require"
)

// TestConformance runs the driver conformance tests.
func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) datastore.Store {
		// The driver hands out one shared handle per file.
		dir := filepath.Join(t.TempDir(), "..", "bolt")
		uri := "bolt://" + filepath.Join(dir, "store.db")

		store, err := datastore.OpenURI(uri)
		require.NoError(t, err)
		require.NoError(t, store.Connect(context.Background()))
		t.Cleanup(func() { _ = store.Disconnect() })

		return store
	})
}

// TestRecordEncoding checks the TLV form of stored records.
func TestRecordEncoding(t *testing.T) {
	t.Parallel()

	r := &record{payload: []byte("payload"), publishedAt: 1234}

	var buf bytes.Buffer
	require.NoError(t, r.encode(&buf))

	decoded, err := decodeRecord(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, r, decoded)

	_, err = decodeRecord([]byte{0x00, 0x09, 0x01})
	require.Error(t, err)
}

// TestOpenArgs checks URI handling of the driver.
func TestOpenArgs(t *testing.T) {
	t.Parallel()

	_, err := datastore.Open(storeType, "bolt://")
	require.ErrorIs(t, err, datastore.ErrInvalidArgs)

	_, err = datastore.Open(storeType, "memory://x")
	require.ErrorIs(t, err, datastore.ErrInvalidArgs)

	a, err := datastore.Open(storeType, "bolt:///tmp/x/../coin.db")
	require.NoError(t, err)
	b, err := datastore.Open(storeType, "bolt:///tmp/coin.db")
	require.NoError(t, err)
	require.Same(t, a, b)
}

// TestReconnect checks that messages survive closing the file and that the
// file is a walletdb database.
func TestReconnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	store := New(path, 0)
	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.Publish(ctx, "session", []byte("first")))
	require.NoError(t, store.Publish(ctx, "session", []byte("second")))
	require.NoError(t, store.Disconnect())

	_, err := store.Poll(ctx, "session")
	require.ErrorIs(t, err, datastore.ErrNotConnected)

	db, err := walletdb.Open(dbType, path, true, time.Second)
	require.NoError(t, err)
	var keys int
	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket([]byte("session"))
		require.NotNil(t, bucket)

		return bucket.ForEach(func(_, _ []byte) error {
			keys++
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 2, keys)
	require.NoError(t, db.Close())

	require.NoError(t, store.Connect(ctx))
	defer store.Disconnect()

	require.NoError(t, store.Publish(ctx, "session", []byte("third")))
	msgs, err := store.Poll(ctx, "session")
	require.NoError(t, err)
	require.Equal(t, [][]byte{
		[]byte("first"), []byte("second"), []byte("third"),
	}, msgs)
}
