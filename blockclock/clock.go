// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockclock implements the logical clock that orders status claims
// published by mixing peers.
//
// A stamp pairs the best block height known to the publisher with a nonce.
// Stamps are ordered by height first and nonce second.  Anchoring the clock to
// the chain bounds how far into the future a claim can be dated: no valid
// stamp may carry a height above the chain tip.
package blockclock

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Stamp is a logical clock value.
type Stamp struct {
	// BlockHeight is the best block height the publisher knew of.
	BlockHeight int32 `json:"block_height"`

	// Nonce orders stamps taken at the same height.
	Nonce int64 `json:"nonce"`
}

// Compare returns -1 if a is older than b, 1 if a is newer and 0 if both
// stamps are equal.
func Compare(a, b Stamp) int {
	switch {
	case a.BlockHeight < b.BlockHeight:
		return -1
	case a.BlockHeight > b.BlockHeight:
		return 1
	case a.Nonce < b.Nonce:
		return -1
	case a.Nonce > b.Nonce:
		return 1
	default:
		return 0
	}
}

// After reports whether s is strictly newer than other.
func (s Stamp) After(other Stamp) bool {
	return Compare(s, other) > 0
}

// String returns the stamp as height/nonce.
func (s Stamp) String() string {
	return fmt.Sprintf("%d/%d", s.BlockHeight, s.Nonce)
}

// HeightSource reports the current best block height.
type HeightSource interface {
	BestHeight(ctx context.Context) (int32, error)
}

// Clock hands out stamps for a single local participant.  Nonces increase by
// one with every stamp, so two stamps taken by the same clock never compare
// equal.  It is safe for concurrent use.
type Clock struct {
	chain HeightSource
	nonce atomic.Int64
}

// New returns a clock reading heights from the given source.
func New(chain HeightSource) *Clock {
	return &Clock{chain: chain}
}

// Now returns a fresh stamp at the current chain height.
func (c *Clock) Now(ctx context.Context) (Stamp, error) {
	height, err := c.chain.BestHeight(ctx)
	if err != nil {
		return Stamp{}, fmt.Errorf("unable to fetch best height: %w", err)
	}

	return Stamp{
		BlockHeight: height,
		Nonce:       c.nonce.Add(1),
	}, nil
}
