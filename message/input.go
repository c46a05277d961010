// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/coinjoin"
)

// Input is a participant's commitment to a session: the address it spends
// from, where its change goes, a proof that it controls the address and the
// key peers seal payloads for it with.
type Input struct {
	Address          string `json:"address"`
	ChangeAddress    string `json:"change_address"`
	Signature        string `json:"signature"`
	MessagePublicKey string `json:"message_public_key"`

	// challenge is the session-bound value the signature covers.
	challenge string

	// The keys below only exist on the participant that built the
	// message.  They are never serialized.
	privateKey        *btcec.PrivateKey
	messagePrivateKey *btcec.PrivateKey
}

// Challenge returns the value an input of the session must sign.
func Challenge(session *coinjoin.Session) string {
	return session.Identifier
}

// BuildInput builds the local participant's input for the session.
func BuildInput(keys Keys, session *coinjoin.Session, key *btcec.PrivateKey,
	changeAddress string) (*Input, error) {

	address, err := keys.AddressFromKey(key.PubKey())
	if err != nil {
		return nil, err
	}

	messageKey, err := keys.NewMessageKey()
	if err != nil {
		return nil, err
	}

	challenge := Challenge(session)
	signature, err := keys.SignMessage(key, challenge)
	if err != nil {
		return nil, err
	}

	return &Input{
		Address:           address,
		ChangeAddress:     changeAddress,
		Signature:         signature,
		MessagePublicKey:  btccrypto.EncodePublicKey(messageKey.PubKey()),
		challenge:         challenge,
		privateKey:        key,
		messagePrivateKey: messageKey,
	}, nil
}

// PrivateKey returns the address key of a locally built input, nil
// otherwise.
func (i *Input) PrivateKey() *btcec.PrivateKey {
	return i.privateKey
}

// MessagePrivateKey returns the message key of a locally built input, nil
// otherwise.
func (i *Input) MessagePrivateKey() *btcec.PrivateKey {
	return i.messagePrivateKey
}

// MessageKey parses the message public key.
func (i *Input) MessageKey() (*btcec.PublicKey, error) {
	return btccrypto.ParsePublicKey(i.MessagePublicKey)
}

// Zero clears the private keys of a locally built input.
func (i *Input) Zero() {
	if i.privateKey != nil {
		i.privateKey.Zero()
		i.privateKey = nil
	}
	if i.messagePrivateKey != nil {
		i.messagePrivateKey.Zero()
		i.messagePrivateKey = nil
	}
}

// Validate checks the input against its session.
func (i *Input) Validate(keys Keys) FieldErrors {
	var errs FieldErrors

	if !keys.IsValidAddress(i.Address) {
		errs.Add("address", "is not a valid address")
	}

	if !keys.VerifyMessage(i.Address, i.Signature, i.challenge) {
		errs.Add("signature", fmt.Sprintf(
			"is not correct for address %s", i.Address))
	}

	if !keys.IsValidAddress(i.ChangeAddress) {
		errs.Add("change_address", "is not a valid address")
	}

	if _, err := i.MessageKey(); err != nil {
		errs.Add("message_public_key", "is not a valid public key")
	}

	return errs
}

// inputWire is the decoding form of an input.  Pointers tell missing fields
// apart from empty ones.
type inputWire struct {
	Address          *string `json:"address"`
	ChangeAddress    *string `json:"change_address"`
	Signature        *string `json:"signature"`
	MessagePublicKey *string `json:"message_public_key"`
}

// ParseInput decodes an input published for the session and validates it.
func ParseInput(data []byte, session *coinjoin.Session, keys Keys) (*Input,
	error) {

	var w inputWire
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}

	var errs FieldErrors
	requireField(&errs, "address", w.Address != nil)
	requireField(&errs, "change_address", w.ChangeAddress != nil)
	requireField(&errs, "signature", w.Signature != nil)
	requireField(&errs, "message_public_key", w.MessagePublicKey != nil)
	if !errs.Empty() {
		return nil, errs.Err(KindInput)
	}

	input := &Input{
		Address:          *w.Address,
		ChangeAddress:    *w.ChangeAddress,
		Signature:        *w.Signature,
		MessagePublicKey: *w.MessagePublicKey,
		challenge:        Challenge(session),
	}
	if err := input.Validate(keys).Err(KindInput); err != nil {
		return nil, err
	}

	return input, nil
}

// Encode returns the wire form of the input.
func (i *Input) Encode() ([]byte, error) {
	return json.Marshal(i)
}
