// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTxAlreadyInMempool is returned when the transaction is already
	// in the mempool.
	ErrTxAlreadyInMempool = errors.New("txn already in mempool")

	// ErrTxAlreadyKnown is returned when the transaction is already known
	// to the backend.
	ErrTxAlreadyKnown = errors.New("txn already known")

	// ErrTxAlreadyConfirmed is returned when the transaction is already
	// mined.
	ErrTxAlreadyConfirmed = errors.New("txn already confirmed")

	// ErrMissingInputs is returned when an input is missing or spent.
	ErrMissingInputs = errors.New("missing inputs")

	// ErrInsufficientFee is returned when the fee is below the minimum
	// relay fee.
	ErrInsufficientFee = errors.New("insufficient fee")

	// ErrUndefined wraps backend errors that match none of the above.
	ErrUndefined = errors.New("undefined chain backend error")

	// ErrWrongNetwork is returned when the backend serves a different
	// network than configured.
	ErrWrongNetwork = errors.New("backend is on a different network")
)

// rpcErrors maps the reject reasons of bitcoind and btcd to the sentinels
// above.
var rpcErrors = []struct {
	match string
	err   error
}{
	{"txn already in mempool", ErrTxAlreadyInMempool},
	{"already have transaction", ErrTxAlreadyInMempool},
	{"txn already known", ErrTxAlreadyKnown},
	{"transaction already in block chain", ErrTxAlreadyConfirmed},
	{"transaction already exists", ErrTxAlreadyConfirmed},
	{"txn mempool conflict", ErrMissingInputs},
	{"missing inputs", ErrMissingInputs},
	{"bad txns inputs missingorspent", ErrMissingInputs},
	{"orphan transaction", ErrMissingInputs},
	{"min relay fee not met", ErrInsufficientFee},
	{"insufficient fee", ErrInsufficientFee},
}

// MapRPCErr maps a backend error to one of the package sentinels.
func MapRPCErr(rpcErr error) error {
	if rpcErr == nil {
		return nil
	}

	for _, e := range rpcErrors {
		if matchErrStr(rpcErr, e.match) {
			return fmt.Errorf("%w: %v", e.err, rpcErr)
		}
	}

	return fmt.Errorf("%w: %v", ErrUndefined, rpcErr)
}

// IsAlreadyKnown reports whether err says the backend already has the
// transaction.
func IsAlreadyKnown(err error) bool {
	return errors.Is(err, ErrTxAlreadyInMempool) ||
		errors.Is(err, ErrTxAlreadyKnown) ||
		errors.Is(err, ErrTxAlreadyConfirmed)
}

// matchErrStr reports whether the error contains the string, ignoring case
// and treating dashes as spaces.
func matchErrStr(err error, s string) bool {
	normalize := func(str string) string {
		return strings.ToLower(strings.ReplaceAll(str, "-", " "))
	}

	return strings.Contains(normalize(err.Error()), normalize(s))
}
