// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinjoin holds the vocabulary shared by every part of a mixing
// session: the closed set of session states and the session descriptor.
package coinjoin

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when a state name is not part of the session
// vocabulary.
var ErrUnknownState = errors.New("unknown state")

// State is a step in the life of a mixing session.  The forward states are
// ordered; Failed and Cancelled are terminal and may follow any non-terminal
// state.
type State uint8

const (
	// Requested is the initial state of an announced session with no
	// participants yet.
	Requested State = iota

	// Joining is the state while inputs are collected until the
	// participant target is met.
	Joining

	// Signing is the state while participants counter-sign the joint
	// transaction.
	Signing

	// Broadcasting is the state once the fully signed transaction has been
	// submitted and awaits inclusion in a block.
	Broadcasting

	// Complete is the terminal success state: the transaction is
	// confirmed.
	Complete

	// Failed is the terminal state of a session a participant aborted
	// because of an error.
	Failed

	// Cancelled is the terminal state of a session a participant walked
	// away from.
	Cancelled

	numStates
)

var stateNames = [numStates]string{
	Requested:    "Requested",
	Joining:      "Joining",
	Signing:      "Signing",
	Broadcasting: "Broadcasting",
	Complete:     "Complete",
	Failed:       "Failed",
	Cancelled:    "Cancelled",
}

// States returns every state in order.
func States() []State {
	states := make([]State, 0, numStates)
	for s := Requested; s < numStates; s++ {
		states = append(states, s)
	}
	return states
}

// ParseState returns the state with the given wire name.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return State(s), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// String returns the wire name of the state.
func (s State) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return stateNames[s]
}

// IsValid reports whether s is a member of the state set.
func (s State) IsValid() bool {
	return s < numStates
}

// IsTerminal reports whether no further transition can follow s.
func (s State) IsTerminal() bool {
	return s == Complete || s == Failed || s == Cancelled
}

// IsAbort reports whether s aborts the session for every participant.
func (s State) IsAbort() bool {
	return s == Failed || s == Cancelled
}

// RequiresTransactionID reports whether a status claim in state s must carry
// the id of the joint transaction.  Only claims made after the transaction
// reached the network can point at it.
func (s State) RequiresTransactionID() bool {
	return s == Broadcasting || s == Complete
}

// RequiresConfirmation reports whether the transaction of a status claim in
// state s must already be mined.
func (s State) RequiresConfirmation() bool {
	return s == Complete
}
