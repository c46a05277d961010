// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memstore

import (
	"context"
	"testing"

	"github.com/btcsuite/coinmux/datastore"
	"github.com/btcsuite/coinmux/datastore/storetest"
	"github.com/stretchr/testify/require"
)

// TestConformance runs the driver conformance tests.
func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) datastore.Store {
		name := t.Name()
		t.Cleanup(func() { Reset(name) })

		store, err := datastore.OpenURI("memory://" + name)
		require.NoError(t, err)
		require.NoError(t, store.Connect(context.Background()))

		return store
	})
}

// TestOpenArgs checks the driver accepts names and URIs only.
func TestOpenArgs(t *testing.T) {
	store, err := datastore.Open(storeType, "plain-name")
	require.NoError(t, err)
	require.Equal(t, "plain-name", store.(*Store).name)

	_, err = datastore.Open(storeType, 42)
	require.ErrorIs(t, err, datastore.ErrInvalidArgs)

	_, err = datastore.Open("carrier-pigeon", "x")
	require.ErrorIs(t, err, datastore.ErrUnknownType)

	require.Contains(t, datastore.SupportedDrivers(), storeType)
	require.ErrorIs(t, datastore.RegisterDriver(datastore.Driver{
		Type: storeType,
	}), datastore.ErrDbTypeRegistered)
}
