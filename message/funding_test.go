// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestFundingWire checks the funding message encoding and its rules.
func TestFundingWire(t *testing.T) {
	t.Parallel()

	first := testTxid("first")
	second := testTxid("second")
	funding := &Funding{
		Inputs: []FundingInput{
			{OutPoint: *wire.NewOutPoint(&first, 0), Value: 700_000},
			{OutPoint: *wire.NewOutPoint(&second, 3), Value: 1},
		},
		Change: 1_500,
	}
	require.Empty(t, funding.Validate())
	require.Equal(t, btcutil.Amount(700_001), funding.Total())

	data, err := funding.Encode()
	require.NoError(t, err)

	parsed, err := ParseFunding(data)
	require.NoError(t, err)
	require.Equal(t, funding, parsed)

	// The same output listed twice.
	dup := &Funding{
		Inputs: []FundingInput{funding.Inputs[0], funding.Inputs[0]},
	}
	data, err = dup.Encode()
	require.NoError(t, err)

	_, err = ParseFunding(data)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.True(t, verr.Fields.Has("inputs", "lists an output twice"))

	tests := []struct {
		name   string
		data   string
		field  string
		reason string
	}{{
		name:   "missing change",
		data:   `{"inputs":[]}`,
		field:  "change",
		reason: "is required",
	}, {
		name:   "no inputs",
		data:   `{"inputs":[],"change":0}`,
		field:  "inputs",
		reason: "must not be empty",
	}, {
		name: "incomplete input",
		data: `{"inputs":[{"transaction_id":"` + first.String() +
			`","value":10}],"change":0}`,
		field:  "inputs",
		reason: "has an incomplete entry",
	}, {
		name: "zero value",
		data: `{"inputs":[{"transaction_id":"` + first.String() +
			`","output_index":0,"value":0}],"change":0}`,
		field:  "inputs",
		reason: "has an invalid value",
	}, {
		name: "negative change",
		data: `{"inputs":[{"transaction_id":"` + first.String() +
			`","output_index":0,"value":10}],"change":-1}`,
		field:  "change",
		reason: "is not a valid amount",
	}}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseFunding([]byte(test.data))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, KindFunding, verr.Kind)
			require.True(t, verr.Fields.Has(test.field, test.reason),
				verr.Fields.String())
		})
	}

	_, err = ParseFunding([]byte(`{"inputs":[],"change":0,"fee":1}`))
	require.ErrorIs(t, err, ErrMalformed)
}
