// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

var testKeys = btccrypto.New(&chaincfg.RegressionNetParams)

func testPrivKey(seed string) *btcec.PrivateKey {
	h := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(h[:])
	return priv
}

func testAddress(t *testing.T, seed string) string {
	t.Helper()

	addr, err := testKeys.AddressFromKey(testPrivKey(seed).PubKey())
	require.NoError(t, err)
	return addr
}

func testSession(t *testing.T) *coinjoin.Session {
	t.Helper()

	s, err := coinjoin.NewSession(btcutil.Amount(1_000_000), 3, 2_000)
	require.NoError(t, err)
	return s
}

// fakeChain is a chain view with a fixed height and a set of mined and
// pooled transactions.
type fakeChain struct {
	height    int32
	confirmed map[chainhash.Hash]bool
}

func newFakeChain(height int32) *fakeChain {
	return &fakeChain{
		height:    height,
		confirmed: make(map[chainhash.Hash]bool),
	}
}

func (f *fakeChain) BestHeight(context.Context) (int32, error) {
	return f.height, nil
}

func (f *fakeChain) IsConfirmed(_ context.Context,
	txid chainhash.Hash) (bool, error) {

	return f.confirmed[txid], nil
}

// addToPool makes the transaction known but unmined.
func (f *fakeChain) addToPool(txid chainhash.Hash) {
	f.confirmed[txid] = false
}

// confirm mines the transaction in a new block.
func (f *fakeChain) confirm(txid chainhash.Hash) {
	f.height++
	f.confirmed[txid] = true
}

func testTxid(seed string) chainhash.Hash {
	return chainhash.DoubleHashH([]byte(seed))
}

var noTxid = fn.None[chainhash.Hash]()
