// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btccrypto provides the key, address, signing and encryption
// primitives mixing peers use to talk to each other.
//
// Ownership proofs are Bitcoin signed messages: a compact recoverable ECDSA
// signature over the double SHA-256 of the message prefixed with the
// "Bitcoin Signed Message" magic, encoded as base64.  Payloads addressed to a
// single peer are sealed to its message key with ECDH over secp256k1,
// HKDF-SHA256 and ChaCha20-Poly1305.
package btccrypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinmux/internal/zero"
)

const messageMagic = "Bitcoin Signed Message:\n"

var (
	// ErrInvalidPrivateKey is returned when a private key string is
	// neither WIF nor 32 bytes of hex.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrWrongNetwork is returned when a WIF key or address belongs to
	// another network.
	ErrWrongNetwork = errors.New("key is for a different network")
)

// Keys implements the key and address operations for one network.  It holds
// no key material and is safe for concurrent use.
type Keys struct {
	params *chaincfg.Params
}

// New returns the primitives for the given network.
func New(params *chaincfg.Params) *Keys {
	return &Keys{params: params}
}

// Params returns the network the primitives operate on.
func (k *Keys) Params() *chaincfg.Params {
	return k.params
}

// AddressFromKey returns the native segwit (P2WPKH) address paying to the
// public key.
func (k *Keys) AddressFromKey(pub *btcec.PublicKey) (string, error) {
	pkHash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, k.params)
	if err != nil {
		return "", err
	}

	return addr.EncodeAddress(), nil
}

// DecodeAddress decodes an address and checks it belongs to the network.
func (k *Keys) DecodeAddress(address string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, k.params)
	if err != nil {
		return nil, err
	}
	if !addr.IsForNet(k.params) {
		return nil, fmt.Errorf("%w: %s", ErrWrongNetwork, address)
	}

	return addr, nil
}

// IsValidAddress reports whether the string is an address of the network.
func (k *Keys) IsValidAddress(address string) bool {
	_, err := k.DecodeAddress(address)
	return err == nil
}

// DecodePrivateKey parses a private key given either in wallet import format
// or as 64 hex characters.  The input buffer is not modified.
func (k *Keys) DecodePrivateKey(key string) (*btcec.PrivateKey, error) {
	if len(key) == 64 {
		raw, err := hex.DecodeString(key)
		if err == nil {
			defer zero.Bytes(raw)

			priv, _ := btcec.PrivKeyFromBytes(raw)
			if priv.Key.IsZero() {
				return nil, ErrInvalidPrivateKey
			}
			return priv, nil
		}
	}

	wif, err := btcutil.DecodeWIF(key)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	if !wif.IsForNet(k.params) {
		return nil, ErrWrongNetwork
	}
	if wif.PrivKey.Key.IsZero() {
		return nil, ErrInvalidPrivateKey
	}

	return wif.PrivKey, nil
}

// messageHash returns the digest a Bitcoin signed message commits to.
func messageHash(msg string) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, messageMagic)
	_ = wire.WriteVarString(&buf, 0, msg)

	return chainhash.DoubleHashB(buf.Bytes())
}

// SignMessage signs the message with the key and returns the base64 encoded
// compact signature.
func (k *Keys) SignMessage(key *btcec.PrivateKey, msg string) (string,
	error) {

	if key.Key.IsZero() {
		return "", ErrInvalidPrivateKey
	}
	sig := ecdsa.SignCompact(key, messageHash(msg), true)

	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyMessage reports whether the base64 compact signature over the
// message was produced by the key behind the address.  Both P2PKH and P2WPKH
// addresses are accepted.
func (k *Keys) VerifyMessage(address, signature, msg string) bool {
	addr, err := k.DecodeAddress(address)
	if err != nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	pub, compressed, err := ecdsa.RecoverCompact(sig, messageHash(msg))
	if err != nil {
		return false
	}

	var serialized []byte
	if compressed {
		serialized = pub.SerializeCompressed()
	} else {
		serialized = pub.SerializeUncompressed()
	}
	pkHash := btcutil.Hash160(serialized)

	switch a := addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return bytes.Equal(a.ScriptAddress(), pkHash)

	case *btcutil.AddressWitnessPubKeyHash:
		return compressed && bytes.Equal(a.ScriptAddress(), pkHash)

	default:
		return false
	}
}

// NewMessageKey generates an ephemeral key pair for sealed payloads.
func (k *Keys) NewMessageKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// EncodePublicKey returns the hex encoding of the compressed key.
func EncodePublicKey(pub *btcec.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// ParsePublicKey parses a hex encoded compressed public key.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("public key must be %d bytes, got %d",
			btcec.PubKeyBytesLenCompressed, len(raw))
	}

	return btcec.ParsePubKey(raw)
}
