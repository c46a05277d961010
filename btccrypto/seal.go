// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btccrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/coinmux/internal/zero"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var sealInfo = []byte("coinmux sealed payload v1")

// ErrCiphertextTooShort is returned when a sealed payload cannot even hold
// the ephemeral key and nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// sealKey derives the symmetric key from the ECDH secret, bound to the
// ephemeral public key.
func sealKey(secret, ephemeral []byte) (*[32]byte, error) {
	var key [32]byte
	kdf := hkdf.New(sha256.New, secret, ephemeral, sealInfo)
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return nil, err
	}

	return &key, nil
}

// Encrypt seals the plaintext so that only the holder of the private half of
// pub can open it.  The result is the compressed ephemeral public key, the
// nonce and the ciphertext with its tag.
func (k *Keys) Encrypt(pub *btcec.PublicKey, plaintext []byte) ([]byte,
	error) {

	ephemeral, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Zero()

	ephemeralPub := ephemeral.PubKey().SerializeCompressed()

	secret := secp256k1.GenerateSharedSecret(ephemeral, pub)
	defer zero.Bytes(secret)

	key, err := sealKey(secret, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer zero.Bytea32(key)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ephemeralPub)+aead.NonceSize()+
		len(plaintext)+aead.Overhead())
	out = append(out, ephemeralPub...)

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out = append(out, nonce...)

	return aead.Seal(out, nonce, plaintext, ephemeralPub), nil
}

// Decrypt opens a payload sealed by Encrypt.
func (k *Keys) Decrypt(priv *btcec.PrivateKey, sealed []byte) ([]byte,
	error) {

	const pubLen = btcec.PubKeyBytesLenCompressed

	if len(sealed) < pubLen+chacha20poly1305.NonceSize+
		chacha20poly1305.Overhead {

		return nil, ErrCiphertextTooShort
	}

	ephemeralPub := sealed[:pubLen]
	pub, err := secp256k1.ParsePubKey(ephemeralPub)
	if err != nil {
		return nil, err
	}

	secret := secp256k1.GenerateSharedSecret(priv, pub)
	defer zero.Bytes(secret)

	key, err := sealKey(secret, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer zero.Bytea32(key)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}

	nonce := sealed[pubLen : pubLen+aead.NonceSize()]
	ciphertext := sealed[pubLen+aead.NonceSize():]

	return aead.Open(nil, nonce, ciphertext, ephemeralPub)
}
