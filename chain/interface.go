// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain gives the mixer its view of the Bitcoin network: the best
// height, confirmation state, spendable outputs and transaction broadcast.
package chain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is a confirmed unspent output.
type Utxo struct {
	// OutPoint identifies the output.
	OutPoint wire.OutPoint

	// Value is the output amount.
	Value btcutil.Amount

	// PkScript is the output script.
	PkScript []byte

	// Height is the block the output was mined in.
	Height int32
}

// Oracle is the chain capability the coin join needs.
type Oracle interface {
	// BestHeight returns the height of the best known block.
	BestHeight(ctx context.Context) (int32, error)

	// IsConfirmed reports whether the transaction is mined.
	IsConfirmed(ctx context.Context, txid chainhash.Hash) (bool, error)

	// UnspentOutputs returns the confirmed outputs paying to the address.
	UnspentOutputs(ctx context.Context, address string) ([]Utxo, error)

	// Broadcast relays the transaction.  A transaction the backend
	// already knows is not an error.
	Broadcast(ctx context.Context, tx *wire.MsgTx) (chainhash.Hash, error)
}
