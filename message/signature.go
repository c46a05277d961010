// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Signature carries a participant's signature for one input of the joint
// transaction.
type Signature struct {
	// TransactionID is the id of the transaction the signature commits
	// to.  All inputs spend segwit outputs, so it does not change once the
	// witnesses are added.
	TransactionID chainhash.Hash

	// InputIndex is the index of the signed input.
	InputIndex uint32

	// PublicKey is the compressed key the input pays to.
	PublicKey []byte

	// Signature is the DER signature with the sighash type appended.
	Signature []byte
}

type signatureWire struct {
	TransactionID *string `json:"transaction_id"`
	InputIndex    *uint32 `json:"input_index"`
	PublicKey     *string `json:"public_key"`
	Signature     *string `json:"signature"`
}

// Validate checks the encoding of the key and signature.
func (s *Signature) Validate() FieldErrors {
	var errs FieldErrors

	if _, err := btcec.ParsePubKey(s.PublicKey); err != nil ||
		len(s.PublicKey) != btcec.PubKeyBytesLenCompressed {

		errs.Add("public_key", "is not a valid public key")
	}

	if len(s.Signature) < 2 {
		errs.Add("signature", "is not a valid signature")
	} else if _, err := ecdsa.ParseDERSignature(
		s.Signature[:len(s.Signature)-1]); err != nil {

		errs.Add("signature", "is not a valid signature")
	}

	return errs
}

// MarshalJSON implements json.Marshaler.
func (s *Signature) MarshalJSON() ([]byte, error) {
	txid := s.TransactionID.String()
	pub := hex.EncodeToString(s.PublicKey)
	sig := hex.EncodeToString(s.Signature)
	idx := s.InputIndex

	return json.Marshal(signatureWire{
		TransactionID: &txid,
		InputIndex:    &idx,
		PublicKey:     &pub,
		Signature:     &sig,
	})
}

// Encode returns the wire form of the signature.
func (s *Signature) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// ParseSignature decodes and validates a signature message.
func ParseSignature(data []byte) (*Signature, error) {
	var w signatureWire
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}

	var errs FieldErrors
	requireField(&errs, "transaction_id", w.TransactionID != nil)
	requireField(&errs, "input_index", w.InputIndex != nil)
	requireField(&errs, "public_key", w.PublicKey != nil)
	requireField(&errs, "signature", w.Signature != nil)
	if !errs.Empty() {
		return nil, errs.Err(KindSignature)
	}

	var sig Signature
	txid, err := chainhash.NewHashFromStr(*w.TransactionID)
	if err != nil {
		errs.Add("transaction_id", "is not a valid transaction id")
	} else {
		sig.TransactionID = *txid
	}
	sig.InputIndex = *w.InputIndex

	if sig.PublicKey, err = hex.DecodeString(*w.PublicKey); err != nil {
		errs.Add("public_key", "is not a valid public key")
	}
	if sig.Signature, err = hex.DecodeString(*w.Signature); err != nil {
		errs.Add("signature", "is not a valid signature")
	}
	if errs.Empty() {
		errs = sig.Validate()
	}
	if err := errs.Err(KindSignature); err != nil {
		return nil, err
	}

	return &sig, nil
}
