// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestByName checks that every supported network can be looked up by its
// chaincfg name and that unknown names are rejected.
func TestByName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected *Params
	}{
		{"mainnet", &MainNetParams},
		{"testnet3", &TestNet3Params},
		{"regtest", &RegressionNetParams},
		{"simnet", &SimNetParams},
		{"signet", &SigNetParams},
	}

	for _, tc := range testCases {
		params, err := ByName(tc.name)
		require.NoError(t, err)
		require.Same(t, tc.expected, params)
	}

	_, err := ByName("testnet9")
	require.Error(t, err)
}
