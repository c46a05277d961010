// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package statemachine derives the state of a mixing session from the status
// claims its participants publish.
//
// There is no coordinator: every participant runs its own Controller over the
// same store and reaches the same aggregate state from the same messages.  A
// Controller keeps, per participant, the newest valid claim by logical clock
// and folds those heads into one session state on every poll tick.
package statemachine

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/blockclock"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/message"
)

// DefaultWarnThreshold is the number of discarded claims from one sender
// after which the Controller reports it.
const DefaultWarnThreshold = 3

// MaxChainLag is the number of blocks the local chain view may trail a claim.
// A claim dated further ahead than that, or one still unproven after the
// local view advanced that far, is discarded.
const MaxChainLag = 6

// Claim is a status claim read from the store.  The sender has already been
// authenticated by its envelope signature.
type Claim struct {
	// Sender is the input address of the participant making the claim.
	Sender string

	// Digest identifies the published bytes so a claim is judged once.
	Digest chainhash.Hash

	// Status is the claim itself.
	Status *message.Status
}

// Abort records the claim that ended a session.
type Abort struct {
	Sender string
	State  coinjoin.State
}

// Snapshot is the outcome of one ingest pass.
type Snapshot struct {
	// State is the aggregate session state.
	State coinjoin.State

	// Participants maps every known participant to its accepted state.
	Participants map[string]coinjoin.State

	// Abort is set once a participant aborted the session.
	Abort *Abort

	// Accepted is the number of claims adopted in this pass.
	Accepted int

	// Discarded is the number of claims dropped in this pass.
	Discarded int

	// Suspicious lists senders whose discarded claims reached the warning
	// threshold in this pass.
	Suspicious []string
}

// Reached reports whether every participant is at least in state s and the
// session was not aborted.
func (s *Snapshot) Reached(state coinjoin.State) bool {
	return s.Abort == nil && s.State >= state && !s.State.IsAbort()
}

// Controller tracks the status lineages of one session.  It is not safe for
// concurrent use; a session is driven by a single loop.
type Controller struct {
	chain         message.ChainView
	warnThreshold int

	heads  map[string]*message.Status
	abort  *Abort
	judged map[chainhash.Hash]struct{}
	drops  map[string]int

	// deferred maps chain dependent claims to the local height they were
	// first deferred at.
	deferred map[chainhash.Hash]int32
}

// NewController returns a Controller validating claims against the chain.
// A warnThreshold of zero selects DefaultWarnThreshold.
func NewController(chain message.ChainView, warnThreshold int) *Controller {
	if warnThreshold <= 0 {
		warnThreshold = DefaultWarnThreshold
	}

	return &Controller{
		chain:         chain,
		warnThreshold: warnThreshold,
		heads:         make(map[string]*message.Status),
		judged:        make(map[chainhash.Hash]struct{}),
		drops:         make(map[string]int),
		deferred:      make(map[chainhash.Hash]int32),
	}
}

// Head returns the accepted claim of a participant, nil if none.
func (c *Controller) Head(participant string) *message.Status {
	return c.heads[participant]
}

// Ingest judges new claims and recomputes the aggregate state over the given
// participants, the senders of the accepted inputs.
//
// Claims from senders outside the participant set are left unjudged so they
// can be picked up once the sender's input shows up.  Claims that only fail
// because the local chain view lags behind are retried on later passes too,
// for at most MaxChainLag blocks.  Every other invalid claim is dropped for
// good and counted against its sender.
func (c *Controller) Ingest(ctx context.Context, participants []string,
	claims []Claim) *Snapshot {

	known := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		known[p] = struct{}{}
	}

	// Without a height deferred claims never expire.
	best, err := c.chain.BestHeight(ctx)
	if err != nil {
		log.Debugf("Unable to fetch best height: %v", err)
		best = -1
	}

	snap := &Snapshot{}
	for _, claim := range claims {
		if _, ok := c.judged[claim.Digest]; ok {
			continue
		}
		if _, ok := known[claim.Sender]; !ok {
			log.Tracef("Deferring status claim from unknown "+
				"sender %s", claim.Sender)
			continue
		}

		errs := claim.Status.Validate(ctx, c.chain)
		if !errs.Empty() && message.ChainDependent(errs) &&
			!c.expired(claim, best) {

			log.Debugf("Deferring status claim %v from %s: %v",
				claim.Status.State, claim.Sender, errs)
			continue
		}

		c.judged[claim.Digest] = struct{}{}
		delete(c.deferred, claim.Digest)

		if !errs.Empty() {
			c.discard(snap, claim, errs)
			continue
		}

		if c.adopt(claim) {
			snap.Accepted++
		}
	}

	snap.Participants = make(map[string]coinjoin.State, len(participants))
	for _, p := range participants {
		snap.Participants[p] = c.stateOf(p)
	}
	snap.Abort = c.abort
	snap.State = c.aggregate(participants)

	return snap
}

// expired reports whether a chain dependent claim has waited long enough for
// the local view to catch up.  A negative best height never expires a claim.
func (c *Controller) expired(claim Claim, best int32) bool {
	if best < 0 {
		return false
	}

	lead := int64(claim.Status.UpdatedAt.BlockHeight) - int64(best)
	if lead > MaxChainLag {
		return true
	}

	first, ok := c.deferred[claim.Digest]
	if !ok {
		c.deferred[claim.Digest] = best
		return false
	}

	return best-first >= MaxChainLag
}

// discard drops an invalid claim.
func (c *Controller) discard(snap *Snapshot, claim Claim,
	errs message.FieldErrors) {

	log.Warnf("Discarding forged or invalid status claim %v from %s: %v",
		claim.Status.State, claim.Sender, errs)

	snap.Discarded++
	c.drops[claim.Sender]++
	if c.drops[claim.Sender] == c.warnThreshold {
		snap.Suspicious = append(snap.Suspicious, claim.Sender)
	}
}

// adopt makes the claim the participant's head if it is newer.  Equal stamps
// keep the current head.
func (c *Controller) adopt(claim Claim) bool {
	status := claim.Status
	if status.State.IsAbort() && c.abort == nil {
		log.Infof("Participant %s moved the session to %v",
			claim.Sender, status.State)

		c.abort = &Abort{Sender: claim.Sender, State: status.State}
	}

	head, ok := c.heads[claim.Sender]
	if ok && blockclock.Compare(status.UpdatedAt, head.UpdatedAt) <= 0 {
		log.Tracef("Ignoring stale status claim %v@%v from %s",
			status.State, status.UpdatedAt, claim.Sender)
		return false
	}

	log.Debugf("Participant %s is %v as of %v", claim.Sender,
		status.State, status.UpdatedAt)
	c.heads[claim.Sender] = status

	return true
}

// stateOf returns the accepted state of a participant.  A participant whose
// input was accepted but who has not claimed anything yet is joining.
func (c *Controller) stateOf(participant string) coinjoin.State {
	if head, ok := c.heads[participant]; ok {
		return head.State
	}
	return coinjoin.Joining
}

// aggregate folds the participant states into the session state.
func (c *Controller) aggregate(participants []string) coinjoin.State {
	if c.abort != nil {
		return c.abort.State
	}
	if len(participants) == 0 {
		return coinjoin.Requested
	}

	state := coinjoin.Complete
	for _, p := range participants {
		if s := c.stateOf(p); s < state {
			state = s
		}
	}

	return state
}
