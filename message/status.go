// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/blockclock"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	reasonNotConfirmed = "is not confirmed"
	reasonInvalidBlock = "is not a valid block"
)

// Status is a participant's claim about the progress of a session.
type Status struct {
	// State is the state the participant claims to be in.
	State coinjoin.State

	// TransactionID points at the joint transaction once it reached the
	// network.
	TransactionID fn.Option[chainhash.Hash]

	// UpdatedAt orders claims of the same participant.
	UpdatedAt blockclock.Stamp
}

// BuildStatus builds a status claim stamped with the clock.
func BuildStatus(ctx context.Context, clock *blockclock.Clock,
	state coinjoin.State,
	txid fn.Option[chainhash.Hash]) (*Status, error) {

	stamp, err := clock.Now(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		State:         state,
		TransactionID: txid,
		UpdatedAt:     stamp,
	}, nil
}

// Validate checks the claim against the chain.  Failures to reach the chain
// are reported as the check they prevented failing.
func (s *Status) Validate(ctx context.Context, chain ChainView) FieldErrors {
	var errs FieldErrors

	if !s.State.IsValid() {
		errs.Add("status", "is not a valid status")
	} else {
		required := s.State.RequiresTransactionID()
		present := s.TransactionID.IsSome()

		switch {
		case required && !present:
			errs.Add("transaction_id", fmt.Sprintf(
				"must be present for status %v", s.State))

		case !required && present:
			errs.Add("transaction_id", fmt.Sprintf(
				"must not be present for status %v", s.State))
		}

		if s.State.RequiresConfirmation() {
			confirmed := fn.MapOptionZ(s.TransactionID,
				func(txid chainhash.Hash) bool {
					ok, err := chain.IsConfirmed(ctx, txid)
					return err == nil && ok
				},
			)
			if !confirmed {
				errs.Add("transaction_id", reasonNotConfirmed)
			}
		}
	}

	if s.UpdatedAt.BlockHeight < 0 || s.UpdatedAt.Nonce < 0 {
		errs.Add("updated_at", reasonInvalidBlock)
	} else {
		height, err := chain.BestHeight(ctx)
		if err != nil || s.UpdatedAt.BlockHeight > height {
			errs.Add("updated_at", reasonInvalidBlock)
		}
	}

	return errs
}

// ChainDependent reports whether every failure may clear as the local view
// of the chain catches up: a claim dated at a block we have not seen yet, or
// a confirmation we have not seen yet.
func ChainDependent(errs FieldErrors) bool {
	if errs.Empty() {
		return false
	}
	for field, reasons := range errs {
		for _, reason := range reasons {
			switch {
			case field == "updated_at" && reason == reasonInvalidBlock:
			case field == "transaction_id" &&
				reason == reasonNotConfirmed:

			default:
				return false
			}
		}
	}

	return true
}

// statusWire is the wire form of a status.
type statusWire struct {
	Status        *string         `json:"status"`
	TransactionID *string         `json:"transaction_id"`
	UpdatedAt     json.RawMessage `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler.
func (s *Status) MarshalJSON() ([]byte, error) {
	state := s.State.String()
	w := statusWire{Status: &state}
	s.TransactionID.WhenSome(func(txid chainhash.Hash) {
		id := txid.String()
		w.TransactionID = &id
	})

	stamp, err := json.Marshal(s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.UpdatedAt = stamp

	return json.Marshal(w)
}

// Encode returns the wire form of the status.
func (s *Status) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// decodeStatus decodes the fields of a status claim without consulting the
// chain.  stateKnown is false when the status field could not be decoded.
func decodeStatus(data []byte) (status *Status, stateKnown bool,
	errs FieldErrors, err error) {

	var w statusWire
	if err := decodeStrict(data, &w); err != nil {
		return nil, false, nil, err
	}

	status = &Status{}
	if w.Status == nil {
		errs.Add("status", "is not a valid status")
	} else if state, err := coinjoin.ParseState(*w.Status); err != nil {
		errs.Add("status", "is not a valid status")
	} else {
		status.State = state
		stateKnown = true
	}

	if w.TransactionID != nil {
		txid, err := chainhash.NewHashFromStr(*w.TransactionID)
		if err != nil || len(*w.TransactionID) !=
			chainhash.MaxHashStringSize {

			errs.Add("transaction_id", "is not a valid transaction id")
		} else {
			status.TransactionID = fn.Some(*txid)
		}
	}

	stamp, ok := parseStamp(w.UpdatedAt)
	if !ok {
		errs.Add("updated_at", reasonInvalidBlock)
	}
	status.UpdatedAt = stamp

	return status, stateKnown, errs, nil
}

// DecodeStatus decodes a status claim and checks its encoding only.  Rules
// that need the chain are left to Validate, so claims that are ahead of the
// local chain view can be judged later.
func DecodeStatus(data []byte) (*Status, error) {
	status, _, errs, err := decodeStatus(data)
	if err != nil {
		return nil, err
	}
	if err := errs.Err(KindStatus); err != nil {
		return nil, err
	}

	return status, nil
}

// ParseStatus decodes a status claim and validates it against the chain.
func ParseStatus(ctx context.Context, data []byte, chain ChainView) (*Status,
	error) {

	status, stateKnown, errs, err := decodeStatus(data)
	if err != nil {
		return nil, err
	}

	if !errs.Empty() {
		// Only run the chain checks the decoded fields support.
		if stateKnown && !errs.Has("transaction_id",
			"is not a valid transaction id") {

			semantic := status.Validate(ctx, chain)
			delete(semantic, "updated_at")
			errs.Merge(semantic)
		}
		return nil, errs.Err(KindStatus)
	}

	if err := status.Validate(ctx, chain).Err(KindStatus); err != nil {
		return nil, err
	}

	return status, nil
}

// parseStamp decodes an updated_at value.  It must be an object holding
// exactly an integer block_height and an integer nonce.
func parseStamp(raw json.RawMessage) (blockclock.Stamp, bool) {
	if len(raw) == 0 {
		return blockclock.Stamp{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil ||
		len(fields) != 2 {

		return blockclock.Stamp{}, false
	}

	height, ok := integer(fields["block_height"])
	if !ok || height < 0 || height > math.MaxInt32 {
		return blockclock.Stamp{}, false
	}
	nonce, ok := integer(fields["nonce"])
	if !ok || nonce < 0 {
		return blockclock.Stamp{}, false
	}

	return blockclock.Stamp{
		BlockHeight: int32(height),
		Nonce:       nonce,
	}, true
}

// integer returns the value of a JSON number without fraction or exponent.
func integer(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || n.String() != fmt.Sprint(i) {
		return 0, false
	}
	return i, true
}
