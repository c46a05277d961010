// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixer

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinmux/events"
	"github.com/btcsuite/coinmux/message"
	"github.com/btcsuite/coinmux/statemachine"
)

// sync reads the session namespace and files every envelope not seen
// before.
func (m *Mixer) sync(ctx context.Context) error {
	msgs, err := m.cfg.Store.Poll(ctx, m.session.Namespace())
	if err != nil {
		return fmt.Errorf("unable to poll session: %w", err)
	}

	for _, data := range msgs {
		digest := chainhash.HashH(data)
		if _, ok := m.seen[digest]; ok {
			continue
		}
		m.seen[digest] = struct{}{}

		m.file(digest, data)
	}

	return nil
}

// file decodes one envelope.  Invalid envelopes are dropped.
func (m *Mixer) file(digest chainhash.Hash, data []byte) {
	env, err := message.DecodeEnvelope(data)
	if err != nil {
		log.Debugf("Dropping envelope %v: %v", digest, err)
		return
	}
	if err := env.Verify(m.cfg.Keys, m.session.Identifier); err != nil {
		log.Warnf("Dropping %s envelope %v from %q: %v", env.Kind,
			digest, env.Sender, err)
		return
	}

	switch env.Kind {
	case message.KindInput:
		m.fileInput(env)

	case message.KindStatus:
		status, err := message.DecodeStatus(env.Payload)
		if err != nil {
			log.Warnf("Dropping status from %s: %v", env.Sender,
				err)
			return
		}
		m.claims = append(m.claims, statemachine.Claim{
			Sender: env.Sender,
			Digest: digest,
			Status: status,
		})

	case message.KindOutput:
		out, err := message.ParseOutput(env.Payload)
		if err != nil {
			log.Warnf("Dropping output %v: %v", digest, err)
			return
		}
		m.outputs[digest] = out

	case message.KindFunding:
		m.fileFunding(env)

	case message.KindSignature:
		sig, err := message.ParseSignature(env.Payload)
		if err != nil {
			log.Warnf("Dropping signature from %s: %v",
				env.Sender, err)
			return
		}
		m.pending = append(m.pending, pendingSignature{
			sender: env.Sender,
			sig:    sig,
		})

	default:
		log.Debugf("Ignoring %s envelope in session namespace",
			env.Kind)
	}
}

// fileInput accepts a valid input of a new participant while the
// participant set is open.
func (m *Mixer) fileInput(env *message.Envelope) {
	input, err := message.ParseInput(env.Payload, m.session, m.cfg.Keys)
	if err != nil {
		m.emit(events.SourceParticipant, events.TypeWarning,
			"ignoring invalid input from %s: %v", env.Sender, err)
		return
	}
	if input.Address != env.Sender {
		m.emit(events.SourceParticipant, events.TypeWarning,
			"ignoring input for %s sent by %s", input.Address,
			env.Sender)
		return
	}
	if _, ok := m.inputs[input.Address]; ok {
		return
	}
	if m.participants != nil {
		log.Infof("Ignoring late input from %s", input.Address)
		return
	}

	m.inputs[input.Address] = input
	m.inputOrder = append(m.inputOrder, input.Address)

	if input.Address != m.address {
		m.emit(events.SourceParticipant, events.TypeProgress,
			"participant %s joined (%d of %d)", input.Address,
			len(m.inputOrder), m.session.Participants)
	}
}

// fileFunding keeps the first funding of a sender.  A participant publishes
// one funding, so a second one with other bytes is a conflict.
func (m *Mixer) fileFunding(env *message.Envelope) {
	funding, err := message.ParseFunding(env.Payload)
	if err != nil {
		m.emit(events.SourceParticipant, events.TypeWarning,
			"ignoring invalid funding from %s: %v", env.Sender, err)
		return
	}

	if _, ok := m.fundings[env.Sender]; ok {
		m.conflicts[env.Sender] = struct{}{}
		return
	}
	m.fundings[env.Sender] = funding
}
