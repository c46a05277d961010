// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errRPC = errors.New("rpc failure")

// mockBackend is a mock implementation of rpcBackend.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetBlockCount() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBackend) GetBlockHash(height int64) (*chainhash.Hash, error) {
	args := m.Called(height)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

func (m *mockBackend) GetRawTransactionVerbose(
	hash *chainhash.Hash) (*btcjson.TxRawResult, error) {

	args := m.Called(hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*btcjson.TxRawResult), args.Error(1)
}

func (m *mockBackend) GetTxOut(hash *chainhash.Hash, index uint32,
	mempool bool) (*btcjson.GetTxOutResult, error) {

	args := m.Called(hash, index, mempool)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*btcjson.GetTxOutResult), args.Error(1)
}

func (m *mockBackend) SendRawTransaction(tx *wire.MsgTx,
	allowHighFees bool) (*chainhash.Hash, error) {

	args := m.Called(tx, allowHighFees)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chainhash.Hash), args.Error(1)
}

func (m *mockBackend) RawRequest(method string,
	params []json.RawMessage) (json.RawMessage, error) {

	args := m.Called(method, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockBackend) Shutdown() {
	m.Called()
}

func newTestClient(t *testing.T) (*RPCClient, *mockBackend) {
	backend := &mockBackend{}
	t.Cleanup(func() { backend.AssertExpectations(t) })

	return &RPCClient{
		client: backend,
		chain:  &chaincfg.RegressionNetParams,
	}, backend
}

// TestRPCConfigValidate checks the required RPC options.
func TestRPCConfigValidate(t *testing.T) {
	t.Parallel()

	var nilCfg *RPCConfig
	require.Error(t, nilCfg.validate())

	cfg := &RPCConfig{Host: "localhost:18443"}
	require.ErrorContains(t, cfg.validate(), "chain params")

	cfg.Chain = &chaincfg.RegressionNetParams
	require.ErrorContains(t, cfg.validate(), "certs")

	cfg.DisableTLS = true
	require.NoError(t, cfg.validate())

	client, err := NewRPCClient(cfg)
	require.NoError(t, err)
	client.Stop()
}

// TestStartChecksNetwork checks that a node on another network is refused.
func TestStartChecksNetwork(t *testing.T) {
	t.Parallel()

	client, backend := newTestClient(t)

	backend.On("GetBlockHash", int64(0)).Return(
		chaincfg.MainNetParams.GenesisHash, nil,
	).Once()
	err := client.Start(context.Background())
	require.ErrorIs(t, err, ErrWrongNetwork)

	backend.On("GetBlockHash", int64(0)).Return(
		chaincfg.RegressionNetParams.GenesisHash, nil,
	).Once()
	require.NoError(t, client.Start(context.Background()))
}

// TestBestHeight checks the block count query.
func TestBestHeight(t *testing.T) {
	t.Parallel()

	client, backend := newTestClient(t)
	backend.On("GetBlockCount").Return(int64(812), nil).Once()

	height, err := client.BestHeight(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 812, height)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.BestHeight(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// TestIsConfirmed checks both confirmation lookups.
func TestIsConfirmed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	txid := chainhash.Hash{0x01}

	client, backend := newTestClient(t)
	backend.On("GetRawTransactionVerbose", &txid).Return(
		&btcjson.TxRawResult{Confirmations: 2}, nil,
	).Once()
	confirmed, err := client.IsConfirmed(ctx, txid)
	require.NoError(t, err)
	require.True(t, confirmed)

	backend.On("GetRawTransactionVerbose", &txid).Return(
		&btcjson.TxRawResult{}, nil,
	).Once()
	confirmed, err = client.IsConfirmed(ctx, txid)
	require.NoError(t, err)
	require.False(t, confirmed)

	// Without a transaction index the first output is looked up.
	backend.On("GetRawTransactionVerbose", &txid).Return(
		nil, errRPC,
	).Twice()
	backend.On("GetTxOut", &txid, uint32(0), false).Return(
		&btcjson.GetTxOutResult{Confirmations: 1}, nil,
	).Once()
	confirmed, err = client.IsConfirmed(ctx, txid)
	require.NoError(t, err)
	require.True(t, confirmed)

	backend.On("GetTxOut", &txid, uint32(0), false).Return(
		nil, errRPC,
	).Once()
	_, err = client.IsConfirmed(ctx, txid)
	require.ErrorIs(t, err, errRPC)
}

// TestUnspentOutputs checks the scantxoutset request and reply parsing.
func TestUnspentOutputs(t *testing.T) {
	t.Parallel()

	const address = "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080"

	reply := json.RawMessage(`{
		"success": true,
		"unspents": [{
			"txid": "0000000000000000000000000000000000000000000000000000000000000001",
			"vout": 1,
			"scriptPubKey": "0014751e76e8199196d454941c45d1b3a323f1433bd6",
			"amount": 0.5,
			"height": 101
		}]
	}`)

	client, backend := newTestClient(t)
	backend.On("RawRequest", "scantxoutset", []json.RawMessage{
		json.RawMessage(`"start"`),
		json.RawMessage(`["addr(` + address + `)"]`),
	}).Return(reply, nil).Once()

	utxos, err := client.UnspentOutputs(context.Background(), address)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	require.Equal(t, btcutil.Amount(50_000_000), utxos[0].Value)
	require.EqualValues(t, 1, utxos[0].OutPoint.Index)
	require.EqualValues(t, 101, utxos[0].Height)
	require.Len(t, utxos[0].PkScript, 22)

	_, err = parseScanResult(json.RawMessage(`{"success": false}`))
	require.Error(t, err)

	_, err = parseScanResult(json.RawMessage(`[]`))
	require.Error(t, err)
}

// TestBroadcast checks that known transactions are not reported as errors.
func TestBroadcast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	txid := tx.TxHash()

	client, backend := newTestClient(t)

	backend.On("SendRawTransaction", tx, false).Return(&txid, nil).Once()
	got, err := client.Broadcast(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, txid, got)

	backend.On("SendRawTransaction", tx, false).Return(
		nil, errors.New("txn-already-in-mempool"),
	).Once()
	got, err = client.Broadcast(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, txid, got)

	backend.On("SendRawTransaction", tx, false).Return(
		nil, errors.New("bad-txns-inputs-missingorspent"),
	).Once()
	_, err = client.Broadcast(ctx, tx)
	require.ErrorIs(t, err, ErrMissingInputs)
}
