// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinjoin

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestStateNames checks that every state round trips through its wire name
// and that unknown names are rejected.
func TestStateNames(t *testing.T) {
	t.Parallel()

	for _, s := range States() {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}

	_, err := ParseState("Mixing")
	require.ErrorIs(t, err, ErrUnknownState)
	require.False(t, numStates.IsValid())
}

// TestStateRules checks which states need on-chain evidence.
func TestStateRules(t *testing.T) {
	t.Parallel()

	needsTx := map[State]bool{
		Broadcasting: true,
		Complete:     true,
	}
	for _, s := range States() {
		require.Equal(t, needsTx[s], s.RequiresTransactionID(), s)
		require.Equal(t, s == Complete, s.RequiresConfirmation(), s)
	}

	require.True(t, Failed.IsAbort())
	require.True(t, Cancelled.IsTerminal())
	require.False(t, Signing.IsTerminal())
	require.Less(t, Joining, Signing)
	require.Less(t, Signing, Broadcasting)
}

// TestSessionValidate checks the session rules.
func TestSessionValidate(t *testing.T) {
	t.Parallel()

	valid, err := NewSession(btcutil.Amount(1_000_000), 3, 2_000)
	require.NoError(t, err)
	require.Equal(t, "coinjoin/"+valid.Identifier, valid.Namespace())

	testCases := []struct {
		name   string
		mutate func(s *Session)
	}{
		{"bad identifier", func(s *Session) { s.Identifier = "abc" }},
		{"dust amount", func(s *Session) { s.Amount = 100 }},
		{"too few participants", func(s *Session) { s.Participants = 1 }},
		{"too many participants", func(s *Session) { s.Participants = 101 }},
		{"fee rate too low", func(s *Session) { s.FeeRate = 10 }},
		{"fee rate too high", func(s *Session) { s.FeeRate = 5_000_000 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := *valid
			tc.mutate(&s)
			require.ErrorIs(t, s.Validate(), ErrInvalidSession)
		})
	}
}

// TestIsDustAmount checks the dust limit of mixed outputs.
func TestIsDustAmount(t *testing.T) {
	t.Parallel()

	require.True(t, IsDustAmount(0))
	require.True(t, IsDustAmount(100))
	require.False(t, IsDustAmount(10_000))
	require.False(t, IsDustAmount(btcutil.Amount(1_000_000)))
}
