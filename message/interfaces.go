// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Keys is the key and address capability messages are built and checked
// with.  btccrypto.Keys implements it.
type Keys interface {
	// AddressFromKey returns the address paying to the public key.
	AddressFromKey(pub *btcec.PublicKey) (string, error)

	// IsValidAddress reports whether the string is an address of the
	// active network.
	IsValidAddress(address string) bool

	// SignMessage proves control of key by signing msg.
	SignMessage(key *btcec.PrivateKey, msg string) (string, error)

	// VerifyMessage checks a SignMessage signature against the address.
	VerifyMessage(address, signature, msg string) bool

	// NewMessageKey generates an ephemeral key pair.
	NewMessageKey() (*btcec.PrivateKey, error)

	// Encrypt seals a payload to a public key.
	Encrypt(pub *btcec.PublicKey, plaintext []byte) ([]byte, error)

	// Decrypt opens a payload sealed to key.
	Decrypt(key *btcec.PrivateKey, ciphertext []byte) ([]byte, error)
}

// ChainView is the read-only chain access status validation needs.
type ChainView interface {
	// BestHeight returns the height of the best known block.
	BestHeight(ctx context.Context) (int32, error)

	// IsConfirmed reports whether the transaction is mined.
	IsConfirmed(ctx context.Context, txid chainhash.Hash) (bool, error)
}
