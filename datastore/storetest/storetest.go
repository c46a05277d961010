// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storetest holds the behavior every store driver must show.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/btcsuite/coinmux/datastore"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, connected store.  Stores returned by the same
// factory within one test share their content.
type Factory func(t *testing.T) datastore.Store

// Run runs the driver conformance tests.
func Run(t *testing.T, newStore Factory) {
	t.Run("PublishPoll", func(t *testing.T) {
		testPublishPoll(t, newStore)
	})
	t.Run("Namespaces", func(t *testing.T) {
		testNamespaces(t, newStore)
	})
	t.Run("Concurrent", func(t *testing.T) {
		testConcurrent(t, newStore)
	})
	t.Run("Lifecycle", func(t *testing.T) {
		testLifecycle(t, newStore)
	})
}

func testPublishPoll(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)

	msgs, err := store.Poll(ctx, "coinjoins")
	require.NoError(t, err)
	require.Empty(t, msgs)

	expected := [][]byte{
		[]byte(`{"n":1}`),
		[]byte(`{"n":2}`),
		[]byte(`{"n":2}`),
		{0x00, 0xff},
	}
	for _, msg := range expected {
		require.NoError(t, store.Publish(ctx, "coinjoins", msg))
	}

	msgs, err = store.Poll(ctx, "coinjoins")
	require.NoError(t, err)
	require.Equal(t, expected, msgs)

	// Returned slices are owned by the caller.
	msgs[0][0] = 'x'
	again, err := store.Poll(ctx, "coinjoins")
	require.NoError(t, err)
	require.Equal(t, expected, again)

	require.ErrorIs(t, store.Publish(ctx, "", []byte("x")),
		datastore.ErrInvalidNamespace)
}

func testNamespaces(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Publish(ctx, "coinjoin/a", []byte("a1")))
	require.NoError(t, store.Publish(ctx, "coinjoin/b", []byte("b1")))
	require.NoError(t, store.Publish(ctx, "coinjoin/a", []byte("a2")))

	a, err := store.Poll(ctx, "coinjoin/a")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a1"), []byte("a2")}, a)

	b, err := store.Poll(ctx, "coinjoin/b")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("b1")}, b)

	// A second handle on the same store sees the same board.
	other := newStore(t)
	a, err = other.Poll(ctx, "coinjoin/a")
	require.NoError(t, err)
	require.Len(t, a, 2)
}

func testConcurrent(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)

	const writers, perWriter = 4, 10

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				msg := []byte(fmt.Sprintf("%d-%d", w, i))
				require.NoError(t, store.Publish(ctx, "ns", msg))
			}
		}()
	}
	wg.Wait()

	msgs, err := store.Poll(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)
}

func testLifecycle(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Publish(ctx, "ns", []byte("kept")))
	require.NoError(t, store.Disconnect())

	_, err := store.Poll(ctx, "ns")
	require.ErrorIs(t, err, datastore.ErrNotConnected)
	require.ErrorIs(t, store.Publish(ctx, "ns", []byte("x")),
		datastore.ErrNotConnected)

	require.NoError(t, store.Connect(ctx))
	msgs, err := store.Poll(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("kept")}, msgs)
}
