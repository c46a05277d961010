// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package message

import (
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/coinmux/coinjoin"
)

// Announcement publishes a session under the root namespace so others can
// find and join it.
type Announcement struct {
	Version      int    `json:"version"`
	Identifier   string `json:"identifier"`
	Amount       int64  `json:"amount"`
	Participants int    `json:"participants"`
	FeeRate      int64  `json:"fee_rate"`
}

// Announce returns the announcement of a session.
func Announce(session *coinjoin.Session) *Announcement {
	return &Announcement{
		Version:      coinjoin.Version,
		Identifier:   session.Identifier,
		Amount:       int64(session.Amount),
		Participants: session.Participants,
		FeeRate:      int64(session.FeeRate),
	}
}

// Session returns the announced session.
func (a *Announcement) Session() *coinjoin.Session {
	return &coinjoin.Session{
		Identifier:   a.Identifier,
		Amount:       btcutil.Amount(a.Amount),
		Participants: a.Participants,
		FeeRate:      btcutil.Amount(a.FeeRate),
	}
}

// Validate checks the protocol version and the session rules.
func (a *Announcement) Validate() FieldErrors {
	var errs FieldErrors

	if a.Version != coinjoin.Version {
		errs.Add("version", "is not supported")
	}
	if err := a.Session().Validate(); err != nil {
		errs.Add("session", err.Error())
	}

	return errs
}

type announcementWire struct {
	Version      *int    `json:"version"`
	Identifier   *string `json:"identifier"`
	Amount       *int64  `json:"amount"`
	Participants *int    `json:"participants"`
	FeeRate      *int64  `json:"fee_rate"`
}

// ParseAnnouncement decodes and validates an announcement.
func ParseAnnouncement(data []byte) (*Announcement, error) {
	var w announcementWire
	if err := decodeStrict(data, &w); err != nil {
		return nil, err
	}

	var errs FieldErrors
	requireField(&errs, "version", w.Version != nil)
	requireField(&errs, "identifier", w.Identifier != nil)
	requireField(&errs, "amount", w.Amount != nil)
	requireField(&errs, "participants", w.Participants != nil)
	requireField(&errs, "fee_rate", w.FeeRate != nil)
	if !errs.Empty() {
		return nil, errs.Err(KindAnnouncement)
	}

	a := &Announcement{
		Version:      *w.Version,
		Identifier:   *w.Identifier,
		Amount:       *w.Amount,
		Participants: *w.Participants,
		FeeRate:      *w.FeeRate,
	}
	if err := a.Validate().Err(KindAnnouncement); err != nil {
		return nil, err
	}

	return a, nil
}

// Encode returns the wire form of the announcement.
func (a *Announcement) Encode() ([]byte, error) {
	return json.Marshal(a)
}
