// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btccrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func testKey(seed string) *btcec.PrivateKey {
	h := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(h[:])
	return priv
}

// TestSignVerifyMessage checks signed messages against both supported
// address kinds and rejects signatures from other keys or other messages.
func TestSignVerifyMessage(t *testing.T) {
	t.Parallel()

	keys := New(&chaincfg.RegressionNetParams)
	priv := testKey("alice")

	segwit, err := keys.AddressFromKey(priv.PubKey())
	require.NoError(t, err)

	legacy, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(priv.PubKey().SerializeCompressed()),
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	sig, err := keys.SignMessage(priv, "session-1")
	require.NoError(t, err)

	require.True(t, keys.VerifyMessage(segwit, sig, "session-1"))
	require.True(t, keys.VerifyMessage(legacy.EncodeAddress(), sig,
		"session-1"))

	require.False(t, keys.VerifyMessage(segwit, sig, "session-2"))

	bob, err := keys.AddressFromKey(testKey("bob").PubKey())
	require.NoError(t, err)
	require.False(t, keys.VerifyMessage(bob, sig, "session-1"))

	require.False(t, keys.VerifyMessage(segwit, "not base64!", "session-1"))
	require.False(t, keys.VerifyMessage("nope", sig, "session-1"))
}

// TestIsValidAddress checks the network is part of address validity.
func TestIsValidAddress(t *testing.T) {
	t.Parallel()

	regtest := New(&chaincfg.RegressionNetParams)
	mainnet := New(&chaincfg.MainNetParams)

	addr, err := regtest.AddressFromKey(testKey("carol").PubKey())
	require.NoError(t, err)

	require.True(t, regtest.IsValidAddress(addr))
	require.False(t, mainnet.IsValidAddress(addr))
	require.False(t, regtest.IsValidAddress("Invalid Bitcoin Address"))
	require.False(t, regtest.IsValidAddress(""))
}

// TestDecodePrivateKey checks the accepted private key encodings.
func TestDecodePrivateKey(t *testing.T) {
	t.Parallel()

	keys := New(&chaincfg.RegressionNetParams)
	priv := testKey("dave")

	fromHex, err := keys.DecodePrivateKey(hex.EncodeToString(priv.Serialize()))
	require.NoError(t, err)
	require.Equal(t, priv.Serialize(), fromHex.Serialize())

	wif, err := btcutil.NewWIF(priv, &chaincfg.RegressionNetParams, true)
	require.NoError(t, err)
	fromWIF, err := keys.DecodePrivateKey(wif.String())
	require.NoError(t, err)
	require.Equal(t, priv.Serialize(), fromWIF.Serialize())

	mainWIF, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	require.NoError(t, err)
	_, err = keys.DecodePrivateKey(mainWIF.String())
	require.ErrorIs(t, err, ErrWrongNetwork)

	_, err = keys.DecodePrivateKey("garbage")
	require.ErrorIs(t, err, ErrInvalidPrivateKey)

	// Zero and the group order both decode to the zero scalar, which
	// cannot sign.
	for _, bad := range []string{
		strings.Repeat("0", 64),
		"fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141",
	} {
		_, err = keys.DecodePrivateKey(bad)
		require.ErrorIs(t, err, ErrInvalidPrivateKey, bad)
	}

	_, err = keys.SignMessage(&btcec.PrivateKey{}, "message")
	require.ErrorIs(t, err, ErrInvalidPrivateKey)
}

// TestSealOpen checks that sealed payloads only open with the right key and
// that tampering is detected.
func TestSealOpen(t *testing.T) {
	t.Parallel()

	keys := New(&chaincfg.RegressionNetParams)
	recipient, err := keys.NewMessageKey()
	require.NoError(t, err)

	plaintext := []byte("bcrt1qexampleoutputaddress")
	sealed, err := keys.Encrypt(recipient.PubKey(), plaintext)
	require.NoError(t, err)

	opened, err := keys.Decrypt(recipient, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	other, err := keys.NewMessageKey()
	require.NoError(t, err)
	_, err = keys.Decrypt(other, sealed)
	require.Error(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = keys.Decrypt(recipient, sealed)
	require.Error(t, err)

	_, err = keys.Decrypt(recipient, sealed[:10])
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

// TestPublicKeyEncoding checks the hex form of message keys.
func TestPublicKeyEncoding(t *testing.T) {
	t.Parallel()

	pub := testKey("erin").PubKey()
	parsed, err := ParsePublicKey(EncodePublicKey(pub))
	require.NoError(t, err)
	require.True(t, pub.IsEqual(parsed))

	_, err = ParsePublicKey(hex.EncodeToString(pub.SerializeUncompressed()))
	require.Error(t, err)
	_, err = ParsePublicKey("zz")
	require.Error(t, err)
}
