// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package statemachine

import (
	"context"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/blockclock"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/message"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

type testChain struct {
	height    int32
	confirmed map[chainhash.Hash]bool
}

func newTestChain(height int32) *testChain {
	return &testChain{
		height:    height,
		confirmed: make(map[chainhash.Hash]bool),
	}
}

func (c *testChain) BestHeight(context.Context) (int32, error) {
	return c.height, nil
}

func (c *testChain) IsConfirmed(_ context.Context,
	txid chainhash.Hash) (bool, error) {

	return c.confirmed[txid], nil
}

var (
	alice = "alice"
	bob   = "bob"
	carol = "carol"

	everyone = []string{alice, bob, carol}
)

// claimSeq numbers claims so every test claim has its own digest.
var claimSeq int

func claim(sender string, state coinjoin.State, height int32,
	nonce int64) Claim {

	claimSeq++
	status := &message.Status{
		State:     state,
		UpdatedAt: blockclock.Stamp{BlockHeight: height, Nonce: nonce},
	}
	return Claim{
		Sender: sender,
		Digest: chainhash.HashH([]byte(fmt.Sprint(claimSeq))),
		Status: status,
	}
}

func withTx(c Claim, txid chainhash.Hash) Claim {
	c.Status.TransactionID = fn.Some(txid)
	return c
}

// TestControllerOrdering checks that the newest claim by logical clock wins.
func TestControllerOrdering(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		claims   []Claim
		expected blockclock.Stamp
	}{
		{
			name: "higher nonce at same height",
			claims: []Claim{
				claim(alice, coinjoin.Signing, 100, 1),
				claim(alice, coinjoin.Joining, 100, 2),
			},
			expected: blockclock.Stamp{BlockHeight: 100, Nonce: 2},
		},
		{
			name: "higher height over higher nonce",
			claims: []Claim{
				claim(alice, coinjoin.Signing, 100, 0),
				claim(alice, coinjoin.Joining, 99, 99),
			},
			expected: blockclock.Stamp{BlockHeight: 100, Nonce: 0},
		},
		{
			name: "tie keeps the first accepted claim",
			claims: []Claim{
				claim(alice, coinjoin.Signing, 100, 5),
				claim(alice, coinjoin.Joining, 100, 5),
			},
			expected: blockclock.Stamp{BlockHeight: 100, Nonce: 5},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(newTestChain(100), 0)
			c.Ingest(ctx, everyone, tc.claims)

			head := c.Head(alice)
			require.NotNil(t, head)
			require.Equal(t, tc.expected, head.UpdatedAt)
		})
	}

	// The tie keeps the earlier claim across passes as well.
	c := NewController(newTestChain(100), 0)
	c.Ingest(ctx, everyone, []Claim{claim(alice, coinjoin.Signing, 100, 5)})
	snap := c.Ingest(ctx, everyone,
		[]Claim{claim(alice, coinjoin.Joining, 100, 5)})
	require.Equal(t, coinjoin.Signing, snap.Participants[alice])
	require.Zero(t, snap.Accepted)
}

// TestControllerAggregate checks the minimum rule over participants.
func TestControllerAggregate(t *testing.T) {
	ctx := context.Background()
	c := NewController(newTestChain(100), 0)

	snap := c.Ingest(ctx, nil, nil)
	require.Equal(t, coinjoin.Requested, snap.State)

	snap = c.Ingest(ctx, everyone, nil)
	require.Equal(t, coinjoin.Joining, snap.State)

	snap = c.Ingest(ctx, everyone, []Claim{
		claim(alice, coinjoin.Signing, 100, 1),
		claim(bob, coinjoin.Signing, 100, 1),
	})
	require.Equal(t, coinjoin.Joining, snap.State)
	require.Equal(t, 2, snap.Accepted)

	snap = c.Ingest(ctx, everyone, []Claim{
		claim(carol, coinjoin.Signing, 100, 1),
	})
	require.Equal(t, coinjoin.Signing, snap.State)
	require.True(t, snap.Reached(coinjoin.Signing))
	require.False(t, snap.Reached(coinjoin.Broadcasting))
}

// TestControllerCancelMidSigning checks that one participant cancelling
// aborts the session for everyone.
func TestControllerCancelMidSigning(t *testing.T) {
	ctx := context.Background()
	c := NewController(newTestChain(100), 0)

	snap := c.Ingest(ctx, everyone, []Claim{
		claim(alice, coinjoin.Signing, 100, 1),
		claim(bob, coinjoin.Signing, 100, 1),
		claim(carol, coinjoin.Signing, 100, 1),
	})
	require.Equal(t, coinjoin.Signing, snap.State)

	snap = c.Ingest(ctx, everyone, []Claim{
		claim(bob, coinjoin.Cancelled, 100, 2),
	})
	require.Equal(t, coinjoin.Cancelled, snap.State)
	require.Equal(t, &Abort{Sender: bob, State: coinjoin.Cancelled},
		snap.Abort)
	require.False(t, snap.Reached(coinjoin.Signing))

	// Later forward claims cannot revive the session.
	snap = c.Ingest(ctx, everyone, []Claim{
		claim(bob, coinjoin.Signing, 101, 1),
	})
	require.Equal(t, coinjoin.Cancelled, snap.State)
}

// TestControllerDiscardsInvalidClaims checks that forged claims are dropped,
// counted and never applied.
func TestControllerDiscardsInvalidClaims(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(100)
	c := NewController(chain, 2)

	c.Ingest(ctx, everyone, []Claim{claim(alice, coinjoin.Signing, 100, 1)})

	// Broadcasting without a transaction id, Signing with one.
	forged := []Claim{
		claim(alice, coinjoin.Broadcasting, 100, 2),
		withTx(claim(alice, coinjoin.Signing, 100, 3),
			chainhash.HashH([]byte("tx"))),
	}
	snap := c.Ingest(ctx, everyone, forged)
	require.Equal(t, 2, snap.Discarded)
	require.Equal(t, []string{alice}, snap.Suspicious)
	require.Equal(t, coinjoin.Signing, snap.Participants[alice])

	// Judged claims are not counted again.
	snap = c.Ingest(ctx, everyone, forged)
	require.Zero(t, snap.Discarded)
	require.Empty(t, snap.Suspicious)
}

// TestControllerDefersChainDependentClaims checks that claims ahead of the
// local chain view are retried.
func TestControllerDefersChainDependentClaims(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(100)
	c := NewController(chain, 0)

	txid := chainhash.HashH([]byte("joint"))
	ahead := withTx(claim(alice, coinjoin.Complete, 101, 1), txid)

	snap := c.Ingest(ctx, everyone, []Claim{ahead})
	require.Zero(t, snap.Discarded)
	require.Zero(t, snap.Accepted)
	require.Nil(t, c.Head(alice))

	chain.height = 101
	chain.confirmed[txid] = true
	snap = c.Ingest(ctx, everyone, []Claim{ahead})
	require.Equal(t, 1, snap.Accepted)
	require.Equal(t, coinjoin.Complete, snap.Participants[alice])
}

// TestControllerExpiresDeferredClaims checks that a claim the local view can
// never prove is eventually discarded.
func TestControllerExpiresDeferredClaims(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain(100)
	c := NewController(chain, 0)

	// Dated far beyond the local tip.
	far := claim(bob, coinjoin.Failed, 1_000_000, 1)
	snap := c.Ingest(ctx, everyone, []Claim{far})
	require.Equal(t, 1, snap.Discarded)
	require.Nil(t, snap.Abort)
	require.Nil(t, c.Head(bob))

	// A transaction that never confirms.
	never := withTx(
		claim(alice, coinjoin.Complete, 100, 1),
		chainhash.HashH([]byte("never")),
	)
	snap = c.Ingest(ctx, everyone, []Claim{never})
	require.Zero(t, snap.Discarded)

	chain.height = 100 + MaxChainLag - 1
	snap = c.Ingest(ctx, everyone, []Claim{never})
	require.Zero(t, snap.Discarded)
	require.Nil(t, c.Head(alice))

	chain.height = 100 + MaxChainLag
	snap = c.Ingest(ctx, everyone, []Claim{never})
	require.Equal(t, 1, snap.Discarded)
	require.Nil(t, c.Head(alice))
	require.Equal(t, coinjoin.Joining, snap.Participants[alice])

	// Once judged, the claim is not looked at again.
	snap = c.Ingest(ctx, everyone, []Claim{never})
	require.Zero(t, snap.Discarded)
	require.Empty(t, c.deferred)
}

// TestControllerUnknownSender checks that claims from senders without an
// accepted input wait for that input.
func TestControllerUnknownSender(t *testing.T) {
	ctx := context.Background()
	c := NewController(newTestChain(100), 0)

	early := claim("dave", coinjoin.Failed, 100, 1)
	snap := c.Ingest(ctx, everyone, []Claim{early})
	require.Equal(t, coinjoin.Joining, snap.State)

	snap = c.Ingest(ctx, append(everyone, "dave"), []Claim{early})
	require.Equal(t, coinjoin.Failed, snap.State)
}
