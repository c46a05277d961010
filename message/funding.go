// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MaxFundingInputs bounds the outputs one participant may spend.
const MaxFundingInputs = 500

// FundingInput is an output a participant spends in the joint transaction.
type FundingInput struct {
	OutPoint wire.OutPoint
	Value    btcutil.Amount
}

// Funding lists the outputs a participant spends in the joint transaction and
// the change it takes back.  Participants build the transaction from the
// published fundings only, so differing chain views cannot lead them to
// different transactions.
type Funding struct {
	Inputs []FundingInput

	// Change is zero when the change would be dust.
	Change btcutil.Amount
}

type fundingInputWire struct {
	TransactionID *string `json:"transaction_id"`
	OutputIndex   *uint32 `json:"output_index"`
	Value         *int64  `json:"value"`
}

type fundingWire struct {
	Inputs []fundingInputWire `json:"inputs"`
	Change *int64             `json:"change"`
}

// Total returns the value of all inputs.
func (f *Funding) Total() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range f.Inputs {
		total += in.Value
	}
	return total
}

// Validate checks the amounts and that no output is listed twice.
func (f *Funding) Validate() FieldErrors {
	var errs FieldErrors

	switch {
	case len(f.Inputs) == 0:
		errs.Add("inputs", "must not be empty")

	case len(f.Inputs) > MaxFundingInputs:
		errs.Add("inputs", "has too many entries")
	}

	seen := make(map[wire.OutPoint]struct{}, len(f.Inputs))
	for _, in := range f.Inputs {
		if in.Value <= 0 || in.Value > btcutil.MaxSatoshi {
			errs.Add("inputs", "has an invalid value")
		}
		if _, ok := seen[in.OutPoint]; ok {
			errs.Add("inputs", "lists an output twice")
		}
		seen[in.OutPoint] = struct{}{}
	}

	if f.Change < 0 || f.Change > btcutil.MaxSatoshi {
		errs.Add("change", "is not a valid amount")
	}

	return errs
}

// MarshalJSON implements json.Marshaler.
func (f *Funding) MarshalJSON() ([]byte, error) {
	w := fundingWire{
		Inputs: make([]fundingInputWire, 0, len(f.Inputs)),
	}
	for _, in := range f.Inputs {
		txid := in.OutPoint.Hash.String()
		index := in.OutPoint.Index
		value := int64(in.Value)

		w.Inputs = append(w.Inputs, fundingInputWire{
			TransactionID: &txid,
			OutputIndex:   &index,
			Value:         &value,
		})
	}
	change := int64(f.Change)
	w.Change = &change

	return json.Marshal(w)
}

// Encode returns the wire form of the funding.
func (f *Funding) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// ParseFunding decodes and validates a funding message.
func ParseFunding(data []byte) (*Funding, error) {
	var w fundingWire
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}

	var errs FieldErrors
	requireField(&errs, "inputs", w.Inputs != nil)
	requireField(&errs, "change", w.Change != nil)
	if !errs.Empty() {
		return nil, errs.Err(KindFunding)
	}

	f := &Funding{
		Inputs: make([]FundingInput, 0, len(w.Inputs)),
		Change: btcutil.Amount(*w.Change),
	}
	for _, in := range w.Inputs {
		if in.TransactionID == nil || in.OutputIndex == nil ||
			in.Value == nil {

			errs.Add("inputs", "has an incomplete entry")
			continue
		}

		txid, err := chainhash.NewHashFromStr(*in.TransactionID)
		if err != nil {
			errs.Add("inputs", "has an invalid transaction id")
			continue
		}

		f.Inputs = append(f.Inputs, FundingInput{
			OutPoint: *wire.NewOutPoint(txid, *in.OutputIndex),
			Value:    btcutil.Amount(*in.Value),
		})
	}
	if errs.Empty() {
		errs = f.Validate()
	}
	if err := errs.Err(KindFunding); err != nil {
		return nil, err
	}

	return f, nil
}
