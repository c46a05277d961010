// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mixer runs the local side of a coin join session: it finds or
// announces a session, exchanges messages with the other participants
// through the store, co-signs the joint transaction and follows it until it
// confirms.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/blockclock"
	"github.com/btcsuite/coinmux/chain"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/events"
	"github.com/btcsuite/coinmux/message"
	"github.com/btcsuite/coinmux/statemachine"
	"github.com/btcsuite/coinmux/txbuilder"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrFailed is returned when the session failed.
	ErrFailed = errors.New("coin join failed")

	// ErrCancelled is returned when the session was cancelled, locally or
	// by another participant.
	ErrCancelled = errors.New("coin join cancelled")
)

// publishTimeout bounds the best-effort publish of a final status after the
// caller's context is done.
const publishTimeout = 10 * time.Second

// phase is the local progress through the protocol.
type phase uint8

const (
	phaseJoin phase = iota
	phaseInputs
	phaseOutputs
	phaseSigning
	phaseConfirming
	phaseDone
)

// protocolError ends the session with a Failed status.
type protocolError struct {
	err error
}

func (e *protocolError) Error() string {
	return e.err.Error()
}

func (e *protocolError) Unwrap() error {
	return e.err
}

// failf returns a protocolError.
func failf(format string, args ...interface{}) error {
	return &protocolError{err: fmt.Errorf(format, args...)}
}

// pendingSignature is a signature message waiting for the local
// transaction.
type pendingSignature struct {
	sender string
	sig    *message.Signature
}

// Mixer runs one coin join session.  Step and Run must be called from a
// single goroutine; Cancel and Elapsed are safe from any goroutine.
type Mixer struct {
	cfg        Config
	clock      *blockclock.Clock
	controller *statemachine.Controller
	builder    *txbuilder.Builder

	// address is the local input address.
	address string

	started   atomic.Int64
	cancelled atomic.Bool
	wake      chan struct{}

	phase    phase
	session  *coinjoin.Session
	input    *message.Input
	snapshot *statemachine.Snapshot
	err      error

	// seen holds the digests of every envelope already read.
	seen map[chainhash.Hash]struct{}

	// inputs are the accepted inputs by address, in publish order.
	inputs     map[string]*message.Input
	inputOrder []string

	// participants is the sorted address set fixed once every input is
	// present.
	participants []string

	claims    []statemachine.Claim
	outputs   map[chainhash.Hash]*message.Output
	ownOutput fn.Option[chainhash.Hash]
	pending   []pendingSignature
	sigs      map[uint32]txbuilder.InputSignature

	// fundings holds the first funding of every sender.  A sender
	// publishing a second one is recorded in conflicts.
	fundings  map[string]*message.Funding
	conflicts map[string]struct{}

	// fundingEnv and outputEnv are the encoded local envelopes.  A publish
	// that failed is retried with the same bytes, so a message the store
	// kept despite the error is not duplicated.
	fundingEnv []byte
	outputEnv  []byte

	tx   *txbuilder.Transaction
	txid chainhash.Hash
}

// New validates the config and returns a mixer.  No session state exists
// until the first Step.
func New(cfg Config) (*Mixer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	address, err := cfg.Keys.AddressFromKey(cfg.InputKey.PubKey())
	if err != nil {
		return nil, err
	}

	return &Mixer{
		cfg:   cfg,
		clock: blockclock.New(cfg.Chain),
		controller: statemachine.NewController(
			cfg.Chain, cfg.WarnThreshold,
		),
		builder: txbuilder.New(cfg.Keys.Params(), cfg.Chain),
		address: address,
		wake:    make(chan struct{}, 1),
		seen:    make(map[chainhash.Hash]struct{}),
		inputs:  make(map[string]*message.Input),
		outputs: make(map[chainhash.Hash]*message.Output),
		sigs:    make(map[uint32]txbuilder.InputSignature),

		fundings:  make(map[string]*message.Funding),
		conflicts: make(map[string]struct{}),
	}, nil
}

// Address returns the local input address.
func (m *Mixer) Address() string {
	return m.address
}

// Session returns the joined session, nil before the first Step.
func (m *Mixer) Session() *coinjoin.Session {
	return m.session
}

// Snapshot returns the aggregate computed by the last Step.
func (m *Mixer) Snapshot() *statemachine.Snapshot {
	return m.snapshot
}

// TransactionID returns the id of the joint transaction once built.
func (m *Mixer) TransactionID() fn.Option[chainhash.Hash] {
	if m.tx == nil {
		return fn.None[chainhash.Hash]()
	}
	return fn.Some(m.txid)
}

// Elapsed returns the time since the first Step.
func (m *Mixer) Elapsed() time.Duration {
	started := m.started.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// Cancel asks the mixer to stop.  It is observed at the next step; a
// broadcast in progress is not interrupted.
func (m *Mixer) Cancel() {
	m.cancelled.Store(true)

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run steps the mixer on every tick until the session ends.  It returns nil
// once the joint transaction confirmed.
func (m *Mixer) Run(ctx context.Context) error {
	t := m.cfg.Ticker
	t.Resume()
	defer t.Stop()

	for {
		done, err := m.Step(ctx)
		if done {
			return err
		}

		select {
		case <-t.Ticks():
		case <-m.wake:
		case <-ctx.Done():
		}
	}
}

// Step advances the session as far as the store and chain allow.  It
// reports whether the session ended, with a nil error on success.
// Unreachable backends only produce a warning event.
func (m *Mixer) Step(ctx context.Context) (bool, error) {
	if m.phase == phaseDone {
		return true, m.err
	}
	m.started.CompareAndSwap(0, time.Now().UnixNano())

	if m.cancelled.Load() || ctx.Err() != nil {
		m.cancel(ctx)
		return true, m.err
	}

	var err error
	if m.phase == phaseJoin {
		err = m.join(ctx)
	} else {
		err = m.advance(ctx)
	}

	var perr *protocolError
	switch {
	case errors.As(err, &perr):
		m.fail(ctx, perr.err)

	case err != nil:
		m.emit(events.SourceMixer, events.TypeWarning, "%v", err)
	}

	return m.phase == phaseDone, m.err
}

// join finds or announces a session and publishes the local input.
func (m *Mixer) join(ctx context.Context) error {
	if m.session == nil {
		session, err := m.findSession(ctx)
		if err != nil {
			return err
		}
		m.session = session
	}

	if m.input == nil {
		input, err := message.BuildInput(
			m.cfg.Keys, m.session, m.cfg.InputKey,
			m.cfg.ChangeAddress,
		)
		if err != nil {
			return failf("unable to build input: %w", err)
		}
		m.input = input
	}

	env, err := message.NewEnvelope(
		message.KindInput, m.session.Identifier, m.input,
	)
	if err != nil {
		return failf("%w", err)
	}
	if err := m.publishSigned(ctx, env); err != nil {
		return fmt.Errorf("unable to publish input: %w", err)
	}

	m.phase = phaseInputs

	if err := m.publishStatus(ctx, coinjoin.Joining); err != nil {
		m.emit(events.SourceMixer, events.TypeWarning,
			"unable to publish joining status: %v", err)
	}

	m.emit(events.SourceMixer, events.TypeProgress,
		"joined session %s, waiting for %d participants",
		m.session.Identifier, m.session.Participants)

	return nil
}

// findSession returns the configured session, an open announced session
// matching the config or a newly announced one.
func (m *Mixer) findSession(ctx context.Context) (*coinjoin.Session, error) {
	sessions, err := Announcements(ctx, m.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("unable to list sessions: %w", err)
	}

	if m.cfg.SessionID != "" {
		for _, session := range sessions {
			if session.Identifier != m.cfg.SessionID {
				continue
			}

			info, err := Inspect(ctx, m.cfg.Store, m.cfg.Keys, session)
			if err != nil {
				return nil, err
			}
			if !info.Open() {
				return nil, failf("%w: %s is %v with %d of %d "+
					"participants", ErrSessionNotFound,
					session.Identifier, info.State,
					info.Waiting, session.Participants)
			}

			return session, nil
		}

		return nil, failf("%w: %s", ErrSessionNotFound, m.cfg.SessionID)
	}

	for _, session := range sessions {
		if session.Amount != m.cfg.Amount ||
			session.Participants != m.cfg.Participants ||
			session.FeeRate != m.cfg.FeeRate {

			continue
		}

		info, err := Inspect(ctx, m.cfg.Store, m.cfg.Keys, session)
		if err != nil {
			return nil, err
		}
		if info.Open() {
			log.Infof("Joining session %v with %d participants "+
				"waiting", session, info.Waiting)
			return session, nil
		}
	}

	session, err := coinjoin.NewSession(
		m.cfg.Amount, m.cfg.Participants, m.cfg.FeeRate,
	)
	if err != nil {
		return nil, failf("%w", err)
	}
	if err := Announce(ctx, m.cfg.Store, session); err != nil {
		return nil, fmt.Errorf("unable to announce session: %w", err)
	}

	m.emit(events.SourceMixer, events.TypeProgress,
		"announced session %s", session.Identifier)

	return session, nil
}

// advance reads the board, recomputes the aggregate and runs the current
// phase.
func (m *Mixer) advance(ctx context.Context) error {
	if err := m.sync(ctx); err != nil {
		return err
	}

	snap := m.controller.Ingest(ctx, m.members(), m.claims)
	m.snapshot = snap

	for _, p := range snap.Suspicious {
		m.emit(events.SourceParticipant, events.TypeWarning,
			"participant %s keeps sending invalid status claims", p)
	}

	// Peers can no longer stop a transaction on the network.
	if snap.Abort != nil && m.phase < phaseConfirming {
		m.aborted(ctx, snap.Abort)
		return nil
	}

	switch m.phase {
	case phaseInputs:
		return m.collectInputs(ctx)

	case phaseOutputs:
		return m.collectOutputs(ctx)

	case phaseSigning:
		return m.collectSignatures(ctx, snap)

	case phaseConfirming:
		return m.awaitConfirmation(ctx)
	}

	return nil
}

// members returns the addresses status claims are accepted from.
func (m *Mixer) members() []string {
	if m.participants != nil {
		return m.participants
	}
	return m.inputOrder
}

// collectInputs waits for the input of every participant, then publishes the
// local funding and output.
func (m *Mixer) collectInputs(ctx context.Context) error {
	n := len(m.inputOrder)
	switch {
	case n > m.session.Participants:
		return failf("session has %d inputs for %d participants", n,
			m.session.Participants)

	case n < m.session.Participants:
		return nil
	}

	if _, ok := m.inputs[m.address]; !ok {
		return failf("own input %s is missing", m.address)
	}

	participants := make([]string, n)
	copy(participants, m.inputOrder)
	sort.Strings(participants)

	if m.fundingEnv == nil {
		data, err := m.sealFunding(ctx)
		if err != nil {
			return err
		}
		m.fundingEnv = data
	}

	if m.outputEnv == nil {
		data, err := m.sealOutput(participants)
		if err != nil {
			return err
		}
		m.outputEnv = data
		m.ownOutput = fn.Some(chainhash.HashH(data))
	}

	if err := m.publish(ctx, m.fundingEnv); err != nil {
		return fmt.Errorf("unable to publish funding: %w", err)
	}
	if err := m.publish(ctx, m.outputEnv); err != nil {
		return fmt.Errorf("unable to publish output: %w", err)
	}

	m.participants = participants
	m.phase = phaseOutputs

	m.emit(events.SourceMixer, events.TypeProgress,
		"all %d participants joined", n)

	return nil
}

// sealFunding selects the local inputs and returns the signed funding
// envelope.
func (m *Mixer) sealFunding(ctx context.Context) ([]byte, error) {
	c, err := m.builder.Select(ctx, m.session, txbuilder.Participant{
		Address:       m.address,
		ChangeAddress: m.cfg.ChangeAddress,
	})
	switch {
	case errors.Is(err, txbuilder.ErrInsufficientFunds),
		errors.Is(err, txbuilder.ErrUnsupportedInput):

		return nil, failf("unable to select inputs: %w", err)

	case err != nil:
		return nil, fmt.Errorf("unable to select inputs: %w", err)
	}

	funding := &message.Funding{
		Inputs: make([]message.FundingInput, 0, len(c.Inputs)),
		Change: c.Change,
	}
	for _, utxo := range c.Inputs {
		funding.Inputs = append(funding.Inputs, message.FundingInput{
			OutPoint: utxo.OutPoint,
			Value:    utxo.Value,
		})
	}

	env, err := message.NewEnvelope(
		message.KindFunding, m.session.Identifier, funding,
	)
	if err != nil {
		return nil, failf("%w", err)
	}
	data, err := m.signEnvelope(env)
	if err != nil {
		return nil, failf("unable to sign funding: %w", err)
	}

	log.Debugf("Funding %v with %d inputs worth %v", m.session,
		len(funding.Inputs), funding.Total())

	return data, nil
}

// sealOutput encrypts the output address to every participant and returns
// the envelope.
func (m *Mixer) sealOutput(participants []string) ([]byte, error) {
	recipients := make([]*btcec.PublicKey, 0, len(participants))
	for _, p := range participants {
		key, err := m.inputs[p].MessageKey()
		if err != nil {
			return nil, failf("participant %s: %w", p, err)
		}
		recipients = append(recipients, key)
	}

	out, err := message.SealOutput(
		m.cfg.Keys, m.cfg.OutputAddress, recipients,
	)
	if err != nil {
		return nil, failf("unable to seal output: %w", err)
	}
	env, err := message.NewEnvelope(
		message.KindOutput, m.session.Identifier, out,
	)
	if err != nil {
		return nil, failf("%w", err)
	}
	data, err := env.Encode()
	if err != nil {
		return nil, failf("%w", err)
	}

	return data, nil
}

// collectOutputs waits for every output, then builds, checks and signs the
// joint transaction.
func (m *Mixer) collectOutputs(ctx context.Context) error {
	var (
		addresses []string
		ownSeen   bool
	)
	for digest, out := range m.outputs {
		address, err := out.Open(
			m.cfg.Keys, m.input.MessagePrivateKey(),
		)
		if err != nil {
			log.Debugf("Ignoring output %v: %v", digest, err)
			continue
		}

		addresses = append(addresses, address)
		if m.ownOutput.UnwrapOr(chainhash.Hash{}) == digest {
			ownSeen = true
		}
	}

	n := m.session.Participants
	switch {
	case len(addresses) > n:
		return failf("session has %d outputs for %d participants",
			len(addresses), n)

	case len(addresses) < n || !ownSeen:
		return nil
	}

	contributions := make([]*txbuilder.Contribution, 0, n)
	for _, p := range m.participants {
		if _, ok := m.conflicts[p]; ok {
			return failf("participant %s published conflicting "+
				"fundings", p)
		}

		funding, ok := m.fundings[p]
		if !ok {
			return nil
		}

		c := &txbuilder.Contribution{
			Participant: txbuilder.Participant{
				Address:       p,
				ChangeAddress: m.inputs[p].ChangeAddress,
			},
			Inputs: make([]chain.Utxo, 0, len(funding.Inputs)),
			Change: funding.Change,
		}
		for _, in := range funding.Inputs {
			c.Inputs = append(c.Inputs, chain.Utxo{
				OutPoint: in.OutPoint,
				Value:    in.Value,
			})
		}
		contributions = append(contributions, c)
	}

	// Everyone builds from the same published data, so every failure is
	// shared by all participants.
	tx, err := m.builder.Build(m.session, contributions, addresses)
	if err != nil {
		return failf("unable to build transaction: %w", err)
	}

	local := txbuilder.Participant{
		Address:       m.address,
		ChangeAddress: m.cfg.ChangeAddress,
	}
	if err := tx.Verify(local, m.cfg.OutputAddress); err != nil {
		return failf("refusing to sign: %w", err)
	}

	own, err := tx.Sign(m.input.PrivateKey(), m.address)
	if err != nil {
		return failf("unable to sign: %w", err)
	}

	for _, sig := range own {
		env, err := message.NewEnvelope(
			message.KindSignature, m.session.Identifier,
			&message.Signature{
				TransactionID: tx.ID(),
				InputIndex:    sig.InputIndex,
				PublicKey:     sig.PublicKey,
				Signature:     sig.Signature,
			},
		)
		if err != nil {
			return failf("%w", err)
		}
		if err := m.publishSigned(ctx, env); err != nil {
			return fmt.Errorf("unable to publish signature: %w",
				err)
		}
	}

	for _, sig := range own {
		m.sigs[sig.InputIndex] = sig
	}
	m.tx = tx
	m.txid = tx.ID()
	m.phase = phaseSigning

	if err := m.publishStatus(ctx, coinjoin.Signing); err != nil {
		m.emit(events.SourceMixer, events.TypeWarning,
			"unable to publish signing status: %v", err)
	}

	m.emit(events.SourceMixer, events.TypeProgress,
		"signed %d inputs of transaction %v", len(own), m.txid)

	return nil
}

// verifyPending checks the queued signature messages against the
// transaction.  A participant that signed another transaction will not sign
// this one, so the session fails.
func (m *Mixer) verifyPending() error {
	defer func() { m.pending = nil }()

	for _, p := range m.pending {
		if p.sig.TransactionID != m.txid {
			if slices.Contains(m.participants, p.sender) {
				return failf("participant %s signed transaction "+
					"%v instead of %v", p.sender,
					p.sig.TransactionID, m.txid)
			}

			log.Warnf("Ignoring signature of %v from outsider %s",
				p.sig.TransactionID, p.sender)
			continue
		}

		owner, ok := m.tx.Owner(p.sig.InputIndex)
		if !ok || owner != p.sender {
			log.Warnf("Participant %s signed input %d it does "+
				"not own", p.sender, p.sig.InputIndex)
			continue
		}

		sig := txbuilder.InputSignature{
			InputIndex: p.sig.InputIndex,
			PublicKey:  p.sig.PublicKey,
			Signature:  p.sig.Signature,
		}
		if err := m.tx.VerifySignature(sig); err != nil {
			m.emit(events.SourceParticipant, events.TypeWarning,
				"invalid signature from %s: %v", p.sender, err)
			continue
		}

		m.sigs[sig.InputIndex] = sig
	}

	return nil
}

// collectSignatures waits until every input is signed and every participant
// signed, then broadcasts the transaction.
func (m *Mixer) collectSignatures(ctx context.Context,
	snap *statemachine.Snapshot) error {

	if err := m.verifyPending(); err != nil {
		return err
	}

	if len(m.sigs) < len(m.tx.Tx().TxIn) || !snap.Reached(coinjoin.Signing) {
		return nil
	}

	final, err := m.tx.Finalize(m.sigs)
	if err != nil {
		return failf("unable to assemble transaction: %w", err)
	}

	txid, err := m.cfg.Chain.Broadcast(ctx, final)
	switch {
	case errors.Is(err, chain.ErrMissingInputs),
		errors.Is(err, chain.ErrInsufficientFee):

		return failf("transaction rejected: %w", err)

	case err != nil:
		return fmt.Errorf("unable to broadcast: %w", err)
	}

	m.phase = phaseConfirming

	if err := m.publishStatus(ctx, coinjoin.Broadcasting); err != nil {
		m.emit(events.SourceMixer, events.TypeWarning,
			"unable to publish broadcasting status: %v", err)
	}

	m.emit(events.SourceMixer, events.TypeProgress,
		"broadcast transaction %v", txid)

	return nil
}

// awaitConfirmation completes the session once the transaction is mined.
func (m *Mixer) awaitConfirmation(ctx context.Context) error {
	confirmed, err := m.cfg.Chain.IsConfirmed(ctx, m.txid)
	if err != nil {
		return fmt.Errorf("unable to check confirmation: %w", err)
	}
	if !confirmed {
		return nil
	}

	if err := m.publishStatus(ctx, coinjoin.Complete); err != nil {
		return fmt.Errorf("unable to publish completion: %w", err)
	}

	m.finish(events.TypeCompleted, nil,
		"transaction %v confirmed", m.txid)

	return nil
}

// aborted ends the session after another participant failed or cancelled
// it.
func (m *Mixer) aborted(ctx context.Context, abort *statemachine.Abort) {
	typ, sentinel := events.TypeFailed, ErrFailed
	if abort.State == coinjoin.Cancelled {
		typ, sentinel = events.TypeCancelled, ErrCancelled
	}

	if abort.Sender != m.address {
		m.publishFinal(ctx, abort.State)
	}

	m.finish(typ, fmt.Errorf("%w: participant %s moved the session to %v",
		sentinel, abort.Sender, abort.State),
		"participant %s moved the session to %v", abort.Sender,
		abort.State)
}

// fail ends the session after a local protocol failure.
func (m *Mixer) fail(ctx context.Context, reason error) {
	if m.session != nil && m.input != nil {
		m.publishFinal(ctx, coinjoin.Failed)
	}

	m.finish(events.TypeFailed, fmt.Errorf("%w: %w", ErrFailed, reason),
		"%v", reason)
}

// cancel ends the session after a local cancel.
func (m *Mixer) cancel(ctx context.Context) {
	if m.phase == phaseConfirming {
		m.finish(events.TypeCancelled, ErrCancelled,
			"stopped waiting for transaction %v, it was already "+
				"broadcast", m.txid)
		return
	}

	if m.session != nil && m.input != nil {
		m.publishFinal(ctx, coinjoin.Cancelled)
	}
	m.finish(events.TypeCancelled, ErrCancelled, "cancelled")
}

// publishFinal publishes a terminal status even when ctx is done.  Failures
// become warnings.
func (m *Mixer) publishFinal(ctx context.Context, state coinjoin.State) {
	ctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), publishTimeout,
	)
	defer cancel()

	if err := m.publishStatus(ctx, state); err != nil {
		m.emit(events.SourceMixer, events.TypeWarning,
			"unable to publish %v status: %v", state, err)
	}
}

// finish ends the session, emits the terminal event and zeroes the keys.
func (m *Mixer) finish(typ events.Type, err error, format string,
	args ...interface{}) {

	m.phase = phaseDone
	m.err = err
	m.emit(events.SourceMixer, typ, format, args...)

	if m.input != nil {
		m.input.Zero()
	}
	m.cfg.InputKey.Zero()
}

// publishStatus publishes a signed status claim of the local participant.
func (m *Mixer) publishStatus(ctx context.Context,
	state coinjoin.State) error {

	txid := fn.None[chainhash.Hash]()
	if state.RequiresTransactionID() {
		txid = fn.Some(m.txid)
	}

	status, err := message.BuildStatus(ctx, m.clock, state, txid)
	if err != nil {
		return err
	}
	env, err := message.NewEnvelope(
		message.KindStatus, m.session.Identifier, status,
	)
	if err != nil {
		return err
	}

	return m.publishSigned(ctx, env)
}

// publishSigned signs the envelope with the input key and publishes it.
func (m *Mixer) publishSigned(ctx context.Context,
	env *message.Envelope) error {

	data, err := m.signEnvelope(env)
	if err != nil {
		return err
	}

	return m.publish(ctx, data)
}

// signEnvelope signs the envelope with the input key and encodes it.
func (m *Mixer) signEnvelope(env *message.Envelope) ([]byte, error) {
	err := env.Sign(m.cfg.Keys, m.address, m.input.PrivateKey())
	if err != nil {
		return nil, err
	}

	return env.Encode()
}

// publish writes encoded envelope bytes to the session namespace.
func (m *Mixer) publish(ctx context.Context, data []byte) error {
	return m.cfg.Store.Publish(ctx, m.session.Namespace(), data)
}

// emit logs the event and queues it.
func (m *Mixer) emit(source events.Source, typ events.Type, format string,
	args ...interface{}) {

	msg := fmt.Sprintf(format, args...)
	if typ == events.TypeWarning {
		log.Warnf("%s: %s", source, msg)
	} else {
		log.Infof("%s: %s", source, msg)
	}

	m.cfg.Events.Emit(events.Event{
		Source:  source,
		Type:    typ,
		Message: msg,
	})
}
