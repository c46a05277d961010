// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrBadSignature is returned when a signature does not satisfy the
	// script of its input.
	ErrBadSignature = errors.New("invalid input signature")

	// ErrMissingSignature is returned when finalizing without a signature
	// for every input.
	ErrMissingSignature = errors.New("missing input signature")
)

// InputSignature is the witness of one P2WPKH input.
type InputSignature struct {
	// InputIndex is the index of the signed input.
	InputIndex uint32

	// PublicKey is the compressed public key of the input.
	PublicKey []byte

	// Signature is the DER signature with the sighash type appended.
	Signature []byte
}

func (t *Transaction) prevOutFetcher() *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for op, out := range t.prevOuts {
		fetcher.AddPrevOut(op, out)
	}

	return fetcher
}

// Sign signs every input spending from the address of key.
func (t *Transaction) Sign(key *btcec.PrivateKey,
	address string) ([]InputSignature, error) {

	fetcher := t.prevOutFetcher()
	sigHashes := txscript.NewTxSigHashes(t.tx, fetcher)
	pubKey := key.PubKey().SerializeCompressed()

	var sigs []InputSignature
	for _, idx := range t.InputsOf(address) {
		prevOut := t.prevOuts[t.tx.TxIn[idx].PreviousOutPoint]

		sig, err := txscript.RawTxInWitnessSignature(
			t.tx, sigHashes, int(idx), prevOut.Value,
			prevOut.PkScript, txscript.SigHashAll, key,
		)
		if err != nil {
			return nil, fmt.Errorf("unable to sign input %d: %w",
				idx, err)
		}

		s := InputSignature{
			InputIndex: idx,
			PublicKey:  pubKey,
			Signature:  sig,
		}
		if err := t.VerifySignature(s); err != nil {
			return nil, err
		}
		sigs = append(sigs, s)
	}

	if len(sigs) == 0 {
		return nil, fmt.Errorf("no inputs spend from %s", address)
	}

	return sigs, nil
}

// VerifySignature checks the signature against the script and value of its
// input.  Only SIGHASH_ALL signatures are accepted.
func (t *Transaction) VerifySignature(sig InputSignature) error {
	if int(sig.InputIndex) >= len(t.tx.TxIn) {
		return fmt.Errorf("%w: input %d does not exist",
			ErrBadSignature, sig.InputIndex)
	}
	if len(sig.Signature) == 0 || txscript.SigHashType(
		sig.Signature[len(sig.Signature)-1]) != txscript.SigHashAll {

		return fmt.Errorf("%w: input %d is not signed with "+
			"SIGHASH_ALL", ErrBadSignature, sig.InputIndex)
	}

	tx := t.tx.Copy()
	idx := int(sig.InputIndex)
	tx.TxIn[idx].Witness = wire.TxWitness{sig.Signature, sig.PublicKey}

	fetcher := t.prevOutFetcher()
	prevOut := t.prevOuts[tx.TxIn[idx].PreviousOutPoint]

	vm, err := txscript.NewEngine(
		prevOut.PkScript, tx, idx, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), prevOut.Value, fetcher,
	)
	if err != nil {
		return fmt.Errorf("%w: input %d: %v", ErrBadSignature, idx,
			err)
	}
	if err := vm.Execute(); err != nil {
		return fmt.Errorf("%w: input %d: %v", ErrBadSignature, idx,
			err)
	}

	return nil
}

// Finalize assembles the signed transaction.  Every input needs a valid
// signature.
func (t *Transaction) Finalize(sigs map[uint32]InputSignature) (*wire.MsgTx,
	error) {

	packet, err := psbt.NewFromUnsignedTx(t.tx.Copy())
	if err != nil {
		return nil, err
	}
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, err
	}

	for i, in := range t.tx.TxIn {
		idx := uint32(i)
		sig, ok := sigs[idx]
		if !ok {
			return nil, fmt.Errorf("%w: input %d", ErrMissingSignature,
				idx)
		}
		if err := t.VerifySignature(sig); err != nil {
			return nil, err
		}

		prevOut := t.prevOuts[in.PreviousOutPoint]
		if err := updater.AddInWitnessUtxo(prevOut, i); err != nil {
			return nil, err
		}

		outcome, err := updater.Sign(
			i, sig.Signature, sig.PublicKey, nil, nil,
		)
		if err != nil {
			return nil, err
		}
		if outcome != psbt.SignSuccesful {
			return nil, fmt.Errorf("%w: psbt rejected input %d",
				ErrBadSignature, idx)
		}
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, err
	}

	return psbt.Extract(packet)
}
