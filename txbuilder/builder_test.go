// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/chain"
	"github.com/btcsuite/coinmux/chain/chaintest"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/stretchr/testify/require"
)

var (
	testParams = &chaincfg.RegressionNetParams
	testKeys   = btccrypto.New(testParams)
)

// member is a test participant with all of its keys.
type member struct {
	key    *btcec.PrivateKey
	part   Participant
	output string
}

func newAddress(t *testing.T) (*btcec.PrivateKey, string) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := testKeys.AddressFromKey(key.PubKey())
	require.NoError(t, err)

	return key, addr
}

func newMember(t *testing.T) *member {
	key, addr := newAddress(t)
	_, change := newAddress(t)
	_, output := newAddress(t)

	return &member{
		key:    key,
		part:   Participant{Address: addr, ChangeAddress: change},
		output: output,
	}
}

// ownFee is the fee share of a participant spending n inputs.
func ownFee(t *testing.T, session *coinjoin.Session, m *member,
	n int) btcutil.Amount {

	script := func(address string) []byte {
		addr, err := btcutil.DecodeAddress(address, testParams)
		require.NoError(t, err)
		s, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)
		return s
	}
	outs := []*wire.TxOut{
		wire.NewTxOut(int64(session.Amount), script(m.part.Address)),
		wire.NewTxOut(0, script(m.part.ChangeAddress)),
	}
	size := txsizes.EstimateVirtualSize(0, 0, n, 0, outs, 0)

	return txrules.FeeForSerializeSize(session.FeeRate, size)
}

type harness struct {
	session *coinjoin.Session
	chain   *chaintest.Chain
	builder *Builder
	members []*member
}

func newHarness(t *testing.T, n int) *harness {
	session, err := coinjoin.NewSession(1_000_000, n, 2_000)
	require.NoError(t, err)

	sim := chaintest.New(testParams, 200)
	h := &harness{
		session: session,
		chain:   sim,
		builder: New(testParams, sim),
	}
	for i := 0; i < n; i++ {
		m := newMember(t)
		_, err := sim.Fund(m.part.Address, 700_000)
		require.NoError(t, err)
		_, err = sim.Fund(m.part.Address, 600_000)
		require.NoError(t, err)
		h.members = append(h.members, m)
	}

	return h
}

// selectAll selects the contribution of every member.
func (h *harness) selectAll(t *testing.T) []*Contribution {
	contributions := make([]*Contribution, 0, len(h.members))
	for _, m := range h.members {
		c, err := h.builder.Select(
			context.Background(), h.session, m.part,
		)
		require.NoError(t, err)
		contributions = append(contributions, c)
	}

	return contributions
}

func (h *harness) build(t *testing.T, order []int) *Transaction {
	selected := h.selectAll(t)

	var (
		contributions []*Contribution
		outputs       []string
	)
	for _, i := range order {
		contributions = append(contributions, selected[i])
		outputs = append(outputs, h.members[i].output)
	}

	tx, err := h.builder.Build(h.session, contributions, outputs)
	require.NoError(t, err)

	return tx
}

// TestBuildDeterministic checks that every participant arrives at the same
// transaction regardless of the order it learned about the others.
func TestBuildDeterministic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)

	a := h.build(t, []int{0, 1, 2})
	b := h.build(t, []int{2, 0, 1})
	require.Equal(t, a.ID(), b.ID())

	tx := a.Tx()
	require.Len(t, tx.TxIn, 6)

	// Three mixed outputs plus three change outputs.
	require.Len(t, tx.TxOut, 6)

	var fees btcutil.Amount
	for _, c := range a.Contributions() {
		require.Len(t, c.Inputs, 2)
		fees += c.Fee
	}
	require.Equal(t, fees, a.Fee())

	for _, m := range h.members {
		require.NoError(t, a.Verify(m.part, m.output))
		require.Len(t, a.InputsOf(m.part.Address), 2)
	}

	owner, ok := a.Owner(0)
	require.True(t, ok)
	require.NotEmpty(t, owner)
	_, ok = a.Owner(100)
	require.False(t, ok)
}

// TestVerifyMissingOutput checks that a participant refuses a transaction
// without its output.
func TestVerifyMissingOutput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	tx := h.build(t, []int{0, 1})

	_, stranger := newAddress(t)
	err := tx.Verify(h.members[0].part, stranger)
	require.ErrorIs(t, err, ErrMissingOutput)

	outsider := newMember(t)
	err = tx.Verify(outsider.part, h.members[0].output)
	require.ErrorIs(t, err, ErrMissingOutput)
}

// TestSignFinalizeBroadcast signs every input, assembles the transaction
// and relays it.
func TestSignFinalizeBroadcast(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	tx := h.build(t, []int{1, 2, 0})

	sigs := make(map[uint32]InputSignature)
	for _, m := range h.members {
		own, err := tx.Sign(m.key, m.part.Address)
		require.NoError(t, err)
		require.Len(t, own, 2)

		for _, s := range own {
			require.NoError(t, tx.VerifySignature(s))
			sigs[s.InputIndex] = s
		}
	}

	// A signature moved to another input does not verify.
	moved := sigs[0]
	moved.InputIndex = 1
	require.ErrorIs(t, tx.VerifySignature(moved), ErrBadSignature)

	// Neither does one with another sighash type.
	other := sigs[0]
	other.Signature = append([]byte(nil), other.Signature...)
	other.Signature[len(other.Signature)-1] = byte(txscript.SigHashNone)
	require.ErrorIs(t, tx.VerifySignature(other), ErrBadSignature)

	partial := make(map[uint32]InputSignature)
	for k, v := range sigs {
		if k != 3 {
			partial[k] = v
		}
	}
	_, err := tx.Finalize(partial)
	require.ErrorIs(t, err, ErrMissingSignature)

	final, err := tx.Finalize(sigs)
	require.NoError(t, err)
	require.Equal(t, tx.ID(), final.TxHash())

	txid, err := h.chain.Broadcast(context.Background(), final)
	require.NoError(t, err)
	require.Equal(t, tx.ID(), txid)
}

// TestInsufficientFunds checks that a participant without enough
// confirmed funds fails the build.
func TestInsufficientFunds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	poor := newMember(t)
	_, err := h.chain.Fund(poor.part.Address, 500_000)
	require.NoError(t, err)

	_, err = h.builder.Select(context.Background(), h.session, poor.part)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// A published contribution that underpays the fee is refused too.
	contributions := h.selectAll(t)
	contributions[1].Change += contributions[1].Fee
	_, err = h.builder.Build(h.session, contributions,
		[]string{h.members[0].output, h.members[1].output})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestDustChange checks that change below the dust limit goes to the fee.
func TestDustChange(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	exact := newMember(t)
	fee := ownFee(t, h.session, exact, 1)
	_, err := h.chain.Fund(exact.part.Address, h.session.Amount+fee+100)
	require.NoError(t, err)

	c, err := h.builder.Select(context.Background(), h.session, exact.part)
	require.NoError(t, err)
	require.Zero(t, c.Change)
	require.Equal(t, fee+100, c.Fee)

	tx, err := h.builder.Build(h.session,
		[]*Contribution{h.selectAll(t)[0], c},
		[]string{h.members[0].output, exact.output},
	)
	require.NoError(t, err)

	for _, c := range tx.Contributions() {
		if c.Address != exact.part.Address {
			continue
		}
		require.Zero(t, c.Change)
		require.Equal(t, fee+100, c.Fee)
	}

	// One mixed output each and a single change output.
	require.Len(t, tx.Tx().TxOut, 3)
	require.NoError(t, tx.Verify(exact.part, exact.output))
}

// TestBuildRejects covers malformed build requests.
func TestBuildRejects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	contributions := h.selectAll(t)

	_, err := h.builder.Build(h.session, contributions,
		[]string{h.members[0].output})
	require.ErrorIs(t, err, ErrOutputMismatch)

	_, err = h.builder.Build(h.session, contributions,
		[]string{h.members[0].output, "not-an-address"})
	require.Error(t, err)

	outputs := []string{h.members[0].output, h.members[1].output}

	// Both participants claim the same output.
	stolen := *contributions[1]
	stolen.Inputs = append(
		[]chain.Utxo{contributions[0].Inputs[0]}, stolen.Inputs...,
	)
	_, err = h.builder.Build(h.session,
		[]*Contribution{contributions[0], &stolen}, outputs)
	require.ErrorIs(t, err, ErrBadContribution)

	// Change below the dust limit has to go to the fee.
	dust := *contributions[1]
	dust.Change = 100
	_, err = h.builder.Build(h.session,
		[]*Contribution{contributions[0], &dust}, outputs)
	require.ErrorIs(t, err, ErrBadContribution)

	empty := *contributions[1]
	empty.Inputs = nil
	_, err = h.builder.Build(h.session,
		[]*Contribution{contributions[0], &empty}, outputs)
	require.ErrorIs(t, err, ErrBadContribution)

	// Legacy inputs cannot be signed without their previous
	// transactions.
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	legacy, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), testParams,
	)
	require.NoError(t, err)

	part := h.members[1].part
	part.Address = legacy.EncodeAddress()
	_, err = h.builder.Select(context.Background(), h.session, part)
	require.ErrorIs(t, err, ErrUnsupportedInput)

	moved := *contributions[1]
	moved.Participant = part
	_, err = h.builder.Build(h.session,
		[]*Contribution{contributions[0], &moved}, outputs)
	require.ErrorIs(t, err, ErrUnsupportedInput)
}

// TestBuildIgnoresLocalView checks that the transaction depends only on the
// published contributions, not on outputs the builder's chain learned about
// after they were selected.
func TestBuildIgnoresLocalView(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	contributions := h.selectAll(t)
	outputs := []string{h.members[0].output, h.members[1].output}

	before, err := h.builder.Build(h.session, contributions, outputs)
	require.NoError(t, err)

	_, err = h.chain.Fund(h.members[1].part.Address, 5_000_000)
	require.NoError(t, err)

	after, err := h.builder.Build(h.session, contributions, outputs)
	require.NoError(t, err)
	require.Equal(t, before.ID(), after.ID())

	// Selecting again would now pick the new output.
	reselected, err := h.builder.Select(
		context.Background(), h.session, h.members[1].part,
	)
	require.NoError(t, err)
	require.Len(t, reselected.Inputs, 1)
	require.Equal(t, btcutil.Amount(5_000_000), reselected.Inputs[0].Value)
}
