// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder builds the joint transaction of a coin join.  Each
// participant selects its own inputs and publishes them.  Every participant
// then runs the same construction over the published contributions, so all of
// them arrive at the same unsigned transaction and sign the same transaction
// id whatever their own view of the chain.
package txbuilder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/coinmux/chain"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/davecgh/go-spew/spew"
)

// txVersion is the version of the joint transaction.
const txVersion = 2

var (
	// ErrInsufficientFunds is returned when a participant's confirmed
	// outputs cannot cover the amount plus its fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnsupportedInput is returned when a participant address does not
	// pay to a witness public key hash.
	ErrUnsupportedInput = errors.New("only p2wpkh inputs are supported")

	// ErrOutputMismatch is returned when the number of output addresses
	// differs from the number of participants.
	ErrOutputMismatch = errors.New("output count does not match " +
		"participants")

	// ErrBadContribution is returned when a published contribution spends
	// an output twice or takes back dust change.
	ErrBadContribution = errors.New("invalid contribution")

	// ErrMissingOutput is returned when the transaction does not pay the
	// local participant as expected.
	ErrMissingOutput = errors.New("transaction is missing an output")
)

// Participant is a member of the join as announced by its input message.
type Participant struct {
	// Address holds the funds the participant contributes.
	Address string

	// ChangeAddress receives what is left after the amount and fee.
	ChangeAddress string
}

// Contribution is what one participant puts into and takes out of the
// transaction besides its mixed output.
type Contribution struct {
	Participant

	// Inputs are the selected outputs of Address.
	Inputs []chain.Utxo

	// Fee is the participant's share of the fee.
	Fee btcutil.Amount

	// Change is the change output value, zero when it would be dust.
	Change btcutil.Amount
}

// Total returns the value of the contribution's inputs.
func (c *Contribution) Total() btcutil.Amount {
	var total btcutil.Amount
	for _, utxo := range c.Inputs {
		total += utxo.Value
	}
	return total
}

// Builder constructs joint transactions.
type Builder struct {
	params *chaincfg.Params
	chain  chain.Oracle
}

// New returns a builder for the network that reads outputs from the oracle.
func New(params *chaincfg.Params, oracle chain.Oracle) *Builder {
	return &Builder{params: params, chain: oracle}
}

// payScript returns the output script of the address.
func (b *Builder) payScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, b.params)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(b.params) {
		return nil, fmt.Errorf("address %s is not for %s", address,
			b.params.Name)
	}

	return txscript.PayToAddrScript(addr)
}

// scripts returns the input and change scripts of the participant.
func (b *Builder) scripts(p Participant) ([]byte, []byte, error) {
	script, err := b.payScript(p.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("input %s: %w", p.Address, err)
	}
	if !txscript.IsPayToWitnessPubKeyHash(script) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedInput,
			p.Address)
	}
	changeScript, err := b.payScript(p.ChangeAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("change %s: %w", p.ChangeAddress,
			err)
	}

	return script, changeScript, nil
}

// makeInputSource returns an input source handing out the outputs in order
// until the target is reached.  Outputs taken by an earlier call stay taken.
func makeInputSource(eligible []chain.Utxo) txauthor.InputSource {
	var (
		total   btcutil.Amount
		inputs  []*wire.TxIn
		values  []btcutil.Amount
		scripts [][]byte
	)

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		for total < target && len(eligible) != 0 {
			next := eligible[0]
			eligible = eligible[1:]

			op := next.OutPoint
			inputs = append(inputs, wire.NewTxIn(&op, nil, nil))
			values = append(values, next.Value)
			scripts = append(scripts, next.PkScript)
			total += next.Value
		}

		return total, inputs, values, scripts, nil
	}
}

// Select chooses the participant's inputs from its confirmed outputs.
// Outputs are taken largest first, ties broken by outpoint, until they cover
// the amount and the fee of the participant's own inputs and outputs.
func (b *Builder) Select(ctx context.Context, session *coinjoin.Session,
	p Participant) (*Contribution, error) {

	script, changeScript, err := b.scripts(p)
	if err != nil {
		return nil, err
	}

	utxos, err := b.chain.UnspentOutputs(ctx, p.Address)
	if err != nil {
		return nil, fmt.Errorf("unable to list outputs of %s: %w",
			p.Address, err)
	}

	eligible := make([]chain.Utxo, 0, len(utxos))
	for _, utxo := range utxos {
		if bytes.Equal(utxo.PkScript, script) {
			eligible = append(eligible, utxo)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Value != eligible[j].Value {
			return eligible[i].Value > eligible[j].Value
		}
		return outPointLess(eligible[i].OutPoint, eligible[j].OutPoint)
	})

	// The mixed output pays to an address only its owner knows.  Any
	// P2WPKH script has the same size.
	mixed := wire.NewTxOut(int64(session.Amount), script)
	authored, err := txauthor.NewUnsignedTransaction(
		[]*wire.TxOut{mixed}, session.FeeRate,
		makeInputSource(eligible), &txauthor.ChangeSource{
			NewScript: func() ([]byte, error) {
				return changeScript, nil
			},
			ScriptSize: len(changeScript),
		},
	)
	var srcErr txauthor.InputSourceError
	switch {
	case errors.As(err, &srcErr):
		var total btcutil.Amount
		for _, utxo := range eligible {
			total += utxo.Value
		}
		return nil, fmt.Errorf("%w: %s has %v, needs more than %v",
			ErrInsufficientFunds, p.Address, total, session.Amount)

	case err != nil:
		return nil, err
	}

	c := &Contribution{
		Participant: p,
		Inputs:      eligible[:len(authored.Tx.TxIn)],
	}
	if authored.ChangeIndex >= 0 {
		c.Change = btcutil.Amount(
			authored.Tx.TxOut[authored.ChangeIndex].Value,
		)
	} else {
		log.Debugf("Dropping dust change of %s", p.Address)
	}
	c.Fee = authored.TotalInput - session.Amount - c.Change

	log.Debugf("Selected %d inputs worth %v for %s, fee %v, change %v",
		len(c.Inputs), authored.TotalInput, p.Address, c.Fee, c.Change)

	return c, nil
}

// check validates a published contribution and fills in its input scripts and
// fee.
func (b *Builder) check(session *coinjoin.Session,
	c *Contribution) (*Contribution, error) {

	script, changeScript, err := b.scripts(c.Participant)
	if err != nil {
		return nil, err
	}
	if len(c.Inputs) == 0 {
		return nil, fmt.Errorf("%w: %s spends nothing",
			ErrBadContribution, c.Address)
	}

	checked := &Contribution{
		Participant: c.Participant,
		Inputs:      make([]chain.Utxo, 0, len(c.Inputs)),
		Change:      c.Change,
	}
	for _, utxo := range c.Inputs {
		if utxo.Value <= 0 {
			return nil, fmt.Errorf("%w: %s spends output %v of "+
				"value %v", ErrBadContribution, c.Address,
				utxo.OutPoint, utxo.Value)
		}
		utxo.PkScript = script
		checked.Inputs = append(checked.Inputs, utxo)
	}

	outputs := []*wire.TxOut{wire.NewTxOut(int64(session.Amount), script)}
	if c.Change > 0 {
		change := wire.NewTxOut(int64(c.Change), changeScript)
		if txrules.IsDustOutput(change, txrules.DefaultRelayFeePerKb) {
			return nil, fmt.Errorf("%w: %s takes dust change %v",
				ErrBadContribution, c.Address, c.Change)
		}
		outputs = append(outputs, change)
	}

	size := txsizes.EstimateVirtualSize(0, 0, len(c.Inputs), 0, outputs, 0)
	minFee := txrules.FeeForSerializeSize(session.FeeRate, size)

	checked.Fee = c.Total() - session.Amount - c.Change
	if c.Change < 0 || checked.Fee < minFee {
		return nil, fmt.Errorf("%w: %s spends %v, needs %v",
			ErrInsufficientFunds, c.Address, c.Total(),
			session.Amount+c.Change+minFee)
	}

	return checked, nil
}

// Build constructs the unsigned joint transaction from the contributions
// every participant published and the revealed outputs.  The result does not
// depend on the order of contributions or outputs.
func (b *Builder) Build(session *coinjoin.Session, contributions []*Contribution,
	outputs []string) (*Transaction, error) {

	if len(outputs) != len(contributions) {
		return nil, fmt.Errorf("%w: %d outputs, %d participants",
			ErrOutputMismatch, len(outputs), len(contributions))
	}

	checked := make([]*Contribution, 0, len(contributions))
	for _, c := range contributions {
		valid, err := b.check(session, c)
		if err != nil {
			return nil, err
		}
		checked = append(checked, valid)
	}
	sort.Slice(checked, func(i, j int) bool {
		return checked[i].Address < checked[j].Address
	})

	tx := wire.NewMsgTx(txVersion)
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	owners := make(map[wire.OutPoint]string)

	for _, address := range outputs {
		script, err := b.payScript(address)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", address, err)
		}

		out := wire.NewTxOut(int64(session.Amount), script)
		err = txrules.CheckOutput(out, txrules.DefaultRelayFeePerKb)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", address, err)
		}
		tx.AddTxOut(out)
	}

	for _, c := range checked {
		for _, utxo := range c.Inputs {
			if _, ok := prevOuts[utxo.OutPoint]; ok {
				return nil, fmt.Errorf("%w: outpoint %v spent "+
					"twice", ErrBadContribution,
					utxo.OutPoint)
			}

			op := utxo.OutPoint
			tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
			prevOuts[op] = wire.NewTxOut(
				int64(utxo.Value), utxo.PkScript,
			)
			owners[op] = c.Address
		}

		if c.Change > 0 {
			script, err := b.payScript(c.ChangeAddress)
			if err != nil {
				return nil, fmt.Errorf("change %s: %w",
					c.ChangeAddress, err)
			}
			tx.AddTxOut(wire.NewTxOut(int64(c.Change), script))
		}
	}

	txsort.InPlaceSort(tx)

	t := &Transaction{
		tx:            tx,
		amount:        session.Amount,
		prevOuts:      prevOuts,
		owners:        owners,
		contributions: checked,
		params:        b.params,
	}

	log.Debugf("Built transaction %v with %d inputs and %d outputs",
		t.ID(), len(tx.TxIn), len(tx.TxOut))
	log.Tracef("Unsigned transaction: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	return t, nil
}

func outPointLess(a, b wire.OutPoint) bool {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}

// Transaction is an unsigned joint transaction and what is needed to sign
// and check it.
type Transaction struct {
	tx            *wire.MsgTx
	amount        btcutil.Amount
	prevOuts      map[wire.OutPoint]*wire.TxOut
	owners        map[wire.OutPoint]string
	contributions []*Contribution
	params        *chaincfg.Params
}

// ID returns the transaction id.  Signing does not change it.
func (t *Transaction) ID() chainhash.Hash {
	return t.tx.TxHash()
}

// Tx returns a copy of the unsigned transaction.
func (t *Transaction) Tx() *wire.MsgTx {
	return t.tx.Copy()
}

// Contributions returns the participants' contributions sorted by address.
func (t *Transaction) Contributions() []*Contribution {
	return t.contributions
}

// Fee returns the total fee of the transaction.
func (t *Transaction) Fee() btcutil.Amount {
	var in, out btcutil.Amount
	for _, prev := range t.prevOuts {
		in += btcutil.Amount(prev.Value)
	}
	for _, txOut := range t.tx.TxOut {
		out += btcutil.Amount(txOut.Value)
	}

	return in - out
}

// InputsOf returns the indexes of the inputs spending from the address.
func (t *Transaction) InputsOf(address string) []uint32 {
	var indexes []uint32
	for i, in := range t.tx.TxIn {
		if t.owners[in.PreviousOutPoint] == address {
			indexes = append(indexes, uint32(i))
		}
	}

	return indexes
}

// Owner returns the address spent by the input.
func (t *Transaction) Owner(index uint32) (string, bool) {
	if int(index) >= len(t.tx.TxIn) {
		return "", false
	}

	owner, ok := t.owners[t.tx.TxIn[index].PreviousOutPoint]
	return owner, ok
}

// Verify checks that the transaction pays output the session amount and
// returns the local participant's change.
func (t *Transaction) Verify(local Participant, output string) error {
	find := func(address string, value btcutil.Amount) error {
		addr, err := btcutil.DecodeAddress(address, t.params)
		if err != nil {
			return err
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return err
		}

		for _, out := range t.tx.TxOut {
			if out.Value == int64(value) &&
				bytes.Equal(out.PkScript, script) {

				return nil
			}
		}

		return fmt.Errorf("%w: %v to %s", ErrMissingOutput, value,
			address)
	}

	if err := find(output, t.amount); err != nil {
		return err
	}

	for _, c := range t.contributions {
		if c.Address != local.Address {
			continue
		}
		if c.ChangeAddress != local.ChangeAddress {
			return fmt.Errorf("%w: change address %s replaced by %s",
				ErrMissingOutput, local.ChangeAddress,
				c.ChangeAddress)
		}
		if c.Change == 0 {
			return nil
		}

		return find(local.ChangeAddress, c.Change)
	}

	return fmt.Errorf("%w: no inputs from %s", ErrMissingOutput,
		local.Address)
}
