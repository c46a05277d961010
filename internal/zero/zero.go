// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear key material from memory once a
// mixing session no longer needs it.
package zero

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear private key material, such as a decoded WIF string or a
// typed-in key, from memory.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// This is used to explicitly clear ECDH shared secrets and derived symmetric
// keys from memory.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}
