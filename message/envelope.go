// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Kind names the message carried by an envelope.
type Kind string

const (
	// KindAnnouncement is a session announcement.
	KindAnnouncement Kind = "coinjoin"

	// KindInput is an Input.
	KindInput Kind = "input"

	// KindStatus is a Status.
	KindStatus Kind = "status"

	// KindOutput is an Output.
	KindOutput Kind = "output"

	// KindSignature is a Signature.
	KindSignature Kind = "signature"

	// KindFunding is a Funding.
	KindFunding Kind = "funding"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindAnnouncement, KindInput, KindStatus, KindOutput,
		KindSignature, KindFunding:

		return true
	}
	return false
}

// signed reports whether envelopes of the kind must carry a sender.
func (k Kind) signed() bool {
	switch k {
	case KindInput, KindStatus, KindSignature, KindFunding:
		return true
	}
	return false
}

var (
	// ErrUnsigned is returned when an envelope that must be signed carries
	// no sender or signature.
	ErrUnsigned = errors.New("envelope is not signed")

	// ErrBadEnvelopeSignature is returned when the envelope signature does
	// not match the sender.
	ErrBadEnvelopeSignature = errors.New("envelope signature is not " +
		"correct for sender")

	// ErrSessionMismatch is returned when an envelope was published for
	// another session.
	ErrSessionMismatch = errors.New("envelope belongs to another session")
)

// Envelope is the unit written to the store.  Everything but announcements
// and outputs is signed by the address key of its sender, which ties every
// status lineage to an accepted input.  Outputs travel without a sender.
type Envelope struct {
	Kind      Kind            `json:"type"`
	Session   string          `json:"session"`
	Sender    string          `json:"sender,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature,omitempty"`
}

// encoder is implemented by every message.
type encoder interface {
	Encode() ([]byte, error)
}

// NewEnvelope wraps the message for the session.
func NewEnvelope(kind Kind, session string, msg encoder) (*Envelope, error) {
	payload, err := msg.Encode()
	if err != nil {
		return nil, fmt.Errorf("unable to encode %s: %w", kind, err)
	}

	return &Envelope{
		Kind:    kind,
		Session: session,
		Payload: payload,
	}, nil
}

// signedMessage is the text the sender signs.
func (e *Envelope) signedMessage() string {
	return fmt.Sprintf("%s\n%s\n%s", e.Session, e.Kind, e.Payload)
}

// Sign signs the envelope as sender.
func (e *Envelope) Sign(keys Keys, sender string, key *btcec.PrivateKey) error {
	e.Sender = sender

	sig, err := keys.SignMessage(key, e.signedMessage())
	if err != nil {
		return err
	}
	e.Signature = sig

	return nil
}

// Verify checks the envelope belongs to the session and, for signed kinds,
// that the sender signed it.
func (e *Envelope) Verify(keys Keys, session string) error {
	if e.Session != session {
		return ErrSessionMismatch
	}
	if !e.Kind.signed() {
		return nil
	}
	if e.Sender == "" || e.Signature == "" {
		return ErrUnsigned
	}
	if !keys.VerifyMessage(e.Sender, e.Signature, e.signedMessage()) {
		return ErrBadEnvelopeSignature
	}

	return nil
}

// Encode returns the bytes to publish.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope decodes published bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := decodeStrict(data, &e); err != nil {
		return nil, err
	}
	if !e.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed,
			e.Kind)
	}
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	return &e, nil
}
