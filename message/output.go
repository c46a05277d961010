// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/coinmux/btccrypto"
)

// ErrNotAddressed is returned when an output carries no copy for the local
// message key.
var ErrNotAddressed = errors.New("output not addressed to this participant")

// Output announces a mixed output address.  The address is sealed separately
// to the message key of every participant so the store never sees it in the
// clear, and the message is published without a sender.
type Output struct {
	// Sealed maps hex encoded message public keys to the sealed address.
	Sealed map[string][]byte `json:"sealed"`
}

// SealOutput seals the address to every recipient.
func SealOutput(keys Keys, address string,
	recipients []*btcec.PublicKey) (*Output, error) {

	out := &Output{Sealed: make(map[string][]byte, len(recipients))}
	for _, pub := range recipients {
		sealed, err := keys.Encrypt(pub, []byte(address))
		if err != nil {
			return nil, err
		}
		out.Sealed[btccrypto.EncodePublicKey(pub)] = sealed
	}

	return out, nil
}

// Open returns the address sealed to the message key.
func (o *Output) Open(keys Keys, messageKey *btcec.PrivateKey) (string,
	error) {

	sealed, ok := o.Sealed[btccrypto.EncodePublicKey(messageKey.PubKey())]
	if !ok {
		return "", ErrNotAddressed
	}

	plaintext, err := keys.Decrypt(messageKey, sealed)
	if err != nil {
		return "", err
	}

	address := string(plaintext)
	if !keys.IsValidAddress(address) {
		var errs FieldErrors
		errs.Add("sealed", "is not a valid address")
		return "", errs.Err(KindOutput)
	}

	return address, nil
}

// Validate checks the shape of the output.  The address itself can only be
// checked once opened.
func (o *Output) Validate() FieldErrors {
	var errs FieldErrors

	if len(o.Sealed) == 0 {
		errs.Add("sealed", "must not be empty")
	}
	for key := range o.Sealed {
		if _, err := btccrypto.ParsePublicKey(key); err != nil {
			errs.Add("sealed", "is not keyed by public keys")
			break
		}
	}

	return errs
}

// ParseOutput decodes and validates an output.
func ParseOutput(data []byte) (*Output, error) {
	var out Output
	if err := decodeStrict(data, &out); err != nil {
		return nil, err
	}
	if err := out.Validate().Err(KindOutput); err != nil {
		return nil, err
	}

	return &out, nil
}

// Encode returns the wire form of the output.
func (o *Output) Encode() ([]byte, error) {
	return json.Marshal(o)
}
