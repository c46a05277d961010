// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// rpcBackend is the subset of rpcclient.Client the oracle uses.
type rpcBackend interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetRawTransactionVerbose(txHash *chainhash.Hash) (
		*btcjson.TxRawResult, error)
	GetTxOut(txHash *chainhash.Hash, index uint32,
		mempool bool) (*btcjson.GetTxOutResult, error)
	SendRawTransaction(tx *wire.MsgTx, allowHighFees bool) (
		*chainhash.Hash, error)
	RawRequest(method string, params []json.RawMessage) (
		json.RawMessage, error)
	Shutdown()
}

// A compile-time check to ensure rpcclient.Client satisfies rpcBackend.
var _ rpcBackend = (*rpcclient.Client)(nil)

// RPCConfig describes the connection to a bitcoind or btcd node.
type RPCConfig struct {
	// Host is the host:port of the RPC server.
	Host string

	// User and Pass authenticate the RPC connection.
	User string
	Pass string

	// DisableTLS connects over plain HTTP.
	DisableTLS bool

	// Certificates holds the PEM encoded server certificate when TLS is
	// used.
	Certificates []byte

	// Chain is the network the node must serve.
	Chain *chaincfg.Params
}

// validate checks the required config options are set.
func (c *RPCConfig) validate() error {
	if c == nil {
		return errors.New("missing rpc config")
	}
	if c.Host == "" {
		return errors.New("missing rpc host")
	}
	if c.Chain == nil {
		return errors.New("missing chain params config")
	}
	if !c.DisableTLS && c.Certificates == nil {
		return errors.New("must provide certs when TLS is enabled")
	}

	return nil
}

// RPCClient is an Oracle backed by the JSON-RPC interface of a full node.
type RPCClient struct {
	client rpcBackend
	chain  *chaincfg.Params
}

// A compile-time check to ensure RPCClient satisfies the Oracle interface.
var _ Oracle = (*RPCClient)(nil)

// NewRPCClient creates an HTTP POST mode client for the node.  No request is
// made until Start is called.
func NewRPCClient(cfg *RPCConfig) (*RPCClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		Certificates: cfg.Certificates,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, err
	}

	return &RPCClient{client: client, chain: cfg.Chain}, nil
}

// Start checks that the node serves the configured network.
func (c *RPCClient) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	genesis, err := c.client.GetBlockHash(0)
	if err != nil {
		return fmt.Errorf("unable to query genesis block: %w", err)
	}
	if *genesis != *c.chain.GenesisHash {
		return fmt.Errorf("%w: genesis %v, want %v (%s)",
			ErrWrongNetwork, genesis, c.chain.GenesisHash,
			c.chain.Name)
	}

	log.Infof("Connected to %s node", c.chain.Name)

	return nil
}

// Stop shuts the client down.
func (c *RPCClient) Stop() {
	c.client.Shutdown()
}

// BestHeight returns the height of the best block of the node.
func (c *RPCClient) BestHeight(ctx context.Context) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count, err := c.client.GetBlockCount()
	if err != nil {
		return 0, err
	}

	return int32(count), nil
}

// IsConfirmed reports whether the transaction has at least one confirmation.
// Nodes without a transaction index only find mempool and wallet
// transactions, so an unspent first output is accepted as well.
func (c *RPCClient) IsConfirmed(ctx context.Context,
	txid chainhash.Hash) (bool, error) {

	if err := ctx.Err(); err != nil {
		return false, err
	}

	tx, err := c.client.GetRawTransactionVerbose(&txid)
	if err == nil {
		return tx.Confirmations > 0, nil
	}
	log.Debugf("getrawtransaction %v failed, trying gettxout: %v", txid,
		err)

	out, err := c.client.GetTxOut(&txid, 0, false)
	if err != nil {
		return false, err
	}

	return out != nil && out.Confirmations > 0, nil
}

// scanResult is the reply of scantxoutset.
type scanResult struct {
	Success  bool `json:"success"`
	Unspents []struct {
		TxID         string  `json:"txid"`
		Vout         uint32  `json:"vout"`
		ScriptPubKey string  `json:"scriptPubKey"`
		Amount       float64 `json:"amount"`
		Height       int32   `json:"height"`
	} `json:"unspents"`
}

// UnspentOutputs scans the UTXO set of the node for outputs paying to the
// address.
func (c *RPCClient) UnspentOutputs(ctx context.Context,
	address string) ([]Utxo, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	action, err := json.Marshal("start")
	if err != nil {
		return nil, err
	}
	descriptors, err := json.Marshal(
		[]string{fmt.Sprintf("addr(%s)", address)},
	)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.RawRequest(
		"scantxoutset", []json.RawMessage{action, descriptors},
	)
	if err != nil {
		return nil, fmt.Errorf("scantxoutset: %w", err)
	}

	return parseScanResult(raw)
}

// parseScanResult converts a scantxoutset reply.
func parseScanResult(raw json.RawMessage) ([]Utxo, error) {
	var result scanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed scantxoutset reply: %w", err)
	}
	if !result.Success {
		return nil, errors.New("scantxoutset did not complete")
	}

	utxos := make([]Utxo, 0, len(result.Unspents))
	for _, u := range result.Unspents {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, err
		}
		value, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, err
		}
		script, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, err
		}

		utxos = append(utxos, Utxo{
			OutPoint: *wire.NewOutPoint(hash, u.Vout),
			Value:    value,
			PkScript: script,
			Height:   u.Height,
		})
	}

	return utxos, nil
}

// Broadcast sends the transaction to the node.
func (c *RPCClient) Broadcast(ctx context.Context,
	tx *wire.MsgTx) (chainhash.Hash, error) {

	if err := ctx.Err(); err != nil {
		return chainhash.Hash{}, err
	}

	txid := tx.TxHash()
	_, err := c.client.SendRawTransaction(tx, false)
	if err == nil {
		log.Infof("Broadcast transaction %v", txid)
		return txid, nil
	}

	err = MapRPCErr(err)
	if IsAlreadyKnown(err) {
		log.Infof("Tx %v already broadcast", txid)
		return txid, nil
	}

	return chainhash.Hash{}, err
}
