// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaintest provides an in-memory chain.Oracle for tests.  It keeps
// a UTXO set and a mempool, verifies the scripts of broadcast transactions
// and mines the mempool on demand.
package chaintest

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinmux/chain"
)

// ErrScriptFailure is returned when a broadcast input fails verification.
var ErrScriptFailure = errors.New("script verification failed")

// Chain is a simulated chain.  It is safe for concurrent use.
type Chain struct {
	params *chaincfg.Params

	mu        sync.Mutex
	height    int32
	utxos     map[wire.OutPoint]chain.Utxo
	mempool   map[chainhash.Hash]*wire.MsgTx
	confirmed map[chainhash.Hash]int32

	// broadcastErr is returned by Broadcast when set.
	broadcastErr error
}

// A compile-time check to ensure Chain satisfies the chain.Oracle interface.
var _ chain.Oracle = (*Chain)(nil)

// New returns a chain of the network at the given height.
func New(params *chaincfg.Params, height int32) *Chain {
	return &Chain{
		params:    params,
		height:    height,
		utxos:     make(map[wire.OutPoint]chain.Utxo),
		mempool:   make(map[chainhash.Hash]*wire.MsgTx),
		confirmed: make(map[chainhash.Hash]int32),
	}
}

// Fund adds a confirmed output of the amount paying to the address.
func (c *Chain) Fund(address string, amount btcutil.Amount) (wire.OutPoint,
	error) {

	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return wire.OutPoint{}, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return wire.OutPoint{}, err
	}

	var hash chainhash.Hash
	if _, err := rand.Read(hash[:]); err != nil {
		return wire.OutPoint{}, err
	}
	op := wire.OutPoint{Hash: hash, Index: 0}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.utxos[op] = chain.Utxo{
		OutPoint: op,
		Value:    amount,
		PkScript: script,
		Height:   c.height,
	}

	return op, nil
}

// SetBroadcastError makes Broadcast fail with err until reset with nil.
func (c *Chain) SetBroadcastError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broadcastErr = err
}

// BestHeight implements chain.Oracle.
func (c *Chain) BestHeight(context.Context) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.height, nil
}

// IsConfirmed implements chain.Oracle.
func (c *Chain) IsConfirmed(_ context.Context, txid chainhash.Hash) (bool,
	error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.confirmed[txid]
	return ok, nil
}

// Confirm marks an arbitrary transaction as mined at the current height.
func (c *Chain) Confirm(txid chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.confirmed[txid] = c.height
}

// UnspentOutputs implements chain.Oracle.
func (c *Chain) UnspentOutputs(_ context.Context,
	address string) ([]chain.Utxo, error) {

	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var utxos []chain.Utxo
	for _, utxo := range c.utxos {
		if bytes.Equal(utxo.PkScript, script) {
			utxos = append(utxos, utxo)
		}
	}

	return utxos, nil
}

// Broadcast implements chain.Oracle.  Every input must spend a confirmed
// output that no other mempool transaction spends.
func (c *Chain) Broadcast(_ context.Context, tx *wire.MsgTx) (chainhash.Hash,
	error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broadcastErr != nil {
		return chainhash.Hash{}, c.broadcastErr
	}

	txid := tx.TxHash()
	if _, ok := c.mempool[txid]; ok {
		return txid, nil
	}
	if _, ok := c.confirmed[txid]; ok {
		return txid, nil
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, in := range tx.TxIn {
		utxo, ok := c.utxos[in.PreviousOutPoint]
		if !ok || c.spentInMempool(in.PreviousOutPoint) {
			return chainhash.Hash{}, fmt.Errorf("%w: %v",
				chain.ErrMissingInputs, in.PreviousOutPoint)
		}
		fetcher.AddPrevOut(in.PreviousOutPoint, wire.NewTxOut(
			int64(utxo.Value), utxo.PkScript,
		))
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, in := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(in.PreviousOutPoint)
		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, prevOut.Value, fetcher,
		)
		if err != nil {
			return chainhash.Hash{}, fmt.Errorf("%w: input %d: %v",
				ErrScriptFailure, i, err)
		}
		if err := vm.Execute(); err != nil {
			return chainhash.Hash{}, fmt.Errorf("%w: input %d: %v",
				ErrScriptFailure, i, err)
		}
	}

	c.mempool[txid] = tx.Copy()

	return txid, nil
}

// spentInMempool must be called with the lock held.
func (c *Chain) spentInMempool(op wire.OutPoint) bool {
	for _, tx := range c.mempool {
		for _, in := range tx.TxIn {
			if in.PreviousOutPoint == op {
				return true
			}
		}
	}

	return false
}

// Mempool returns the unmined transactions.
func (c *Chain) Mempool() []*wire.MsgTx {
	c.mu.Lock()
	defer c.mu.Unlock()

	txs := make([]*wire.MsgTx, 0, len(c.mempool))
	for _, tx := range c.mempool {
		txs = append(txs, tx)
	}

	return txs
}

// MineBlock advances the height by one and confirms the mempool.
func (c *Chain) MineBlock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.height++

	for txid, tx := range c.mempool {
		for _, in := range tx.TxIn {
			delete(c.utxos, in.PreviousOutPoint)
		}
		for i, out := range tx.TxOut {
			op := wire.OutPoint{Hash: txid, Index: uint32(i)}
			c.utxos[op] = chain.Utxo{
				OutPoint: op,
				Value:    btcutil.Amount(out.Value),
				PkScript: out.PkScript,
				Height:   c.height,
			}
		}

		c.confirmed[txid] = c.height
		delete(c.mempool, txid)
	}
}
