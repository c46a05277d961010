// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinjoin

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/google/uuid"
)

const (
	// Version is the protocol version spoken by this implementation.
	Version = 1

	// RootNamespace is the store namespace session announcements are
	// published under.
	RootNamespace = "coinjoins"

	// MinParticipants is the smallest useful number of participants.
	MinParticipants = 2

	// MaxParticipants bounds the size of the joint transaction.
	MaxParticipants = 100

	// MaxFeeRate is the highest fee rate, in satoshis per kvB, a session
	// may be announced with.
	MaxFeeRate btcutil.Amount = 1_000_000
)

var (
	// ErrInvalidSession is returned when a session descriptor breaks one
	// of the session rules.
	ErrInvalidSession = errors.New("invalid session")
)

// dustScript is a P2WPKH output script, the smallest script a mixed output
// can pay to.
var dustScript = append(
	[]byte{txscript.OP_0, txscript.OP_DATA_20}, make([]byte, 20)...,
)

// IsDustAmount reports whether a mixed output of the amount would be dust at
// the default relay fee.
func IsDustAmount(amount btcutil.Amount) bool {
	out := wire.NewTxOut(int64(amount), dustScript)
	return txrules.IsDustOutput(out, txrules.DefaultRelayFeePerKb)
}

// Session describes a mixing round.  Every participant of the round agrees on
// all of its fields.
type Session struct {
	// Identifier names the round.  It is random and also forms the store
	// namespace of the round.
	Identifier string

	// Amount is the value of every mixed output.
	Amount btcutil.Amount

	// Participants is the number of inputs the round waits for.
	Participants int

	// FeeRate is the fee rate of the joint transaction in satoshis per
	// kvB.  Every participant pays for the size of its own inputs and
	// outputs.
	FeeRate btcutil.Amount
}

// NewSession returns a session with a fresh random identifier.
func NewSession(amount btcutil.Amount, participants int,
	feeRate btcutil.Amount) (*Session, error) {

	s := &Session{
		Identifier:   uuid.NewString(),
		Amount:       amount,
		Participants: participants,
		FeeRate:      feeRate,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Namespace returns the store namespace of the round.
func (s *Session) Namespace() string {
	return "coinjoin/" + s.Identifier
}

// Validate checks the session rules.
func (s *Session) Validate() error {
	if _, err := uuid.Parse(s.Identifier); err != nil {
		return fmt.Errorf("%w: identifier %q: %v", ErrInvalidSession,
			s.Identifier, err)
	}

	if IsDustAmount(s.Amount) {
		return fmt.Errorf("%w: amount %v is dust", ErrInvalidSession,
			s.Amount)
	}
	if s.Amount > btcutil.MaxSatoshi {
		return fmt.Errorf("%w: amount %v exceeds the money supply",
			ErrInvalidSession, s.Amount)
	}

	if s.Participants < MinParticipants ||
		s.Participants > MaxParticipants {

		return fmt.Errorf("%w: %d participants not in [%d, %d]",
			ErrInvalidSession, s.Participants, MinParticipants,
			MaxParticipants)
	}

	if s.FeeRate < txrules.DefaultRelayFeePerKb || s.FeeRate > MaxFeeRate {
		return fmt.Errorf("%w: fee rate %v per kvB not in [%v, %v]",
			ErrInvalidSession, s.FeeRate,
			txrules.DefaultRelayFeePerKb, MaxFeeRate)
	}

	return nil
}

// String returns a short description of the session for logs.
func (s *Session) String() string {
	return fmt.Sprintf("%s (%v x %d)", s.Identifier, s.Amount,
		s.Participants)
}
