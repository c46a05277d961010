// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixer

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/datastore"
	"github.com/btcsuite/coinmux/message"
)

// ErrSessionNotFound is returned when the requested session is not announced
// or can no longer be joined.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo describes an announced session.
type SessionInfo struct {
	Session *coinjoin.Session

	// Waiting is the number of participants that joined so far.
	Waiting int

	// State is the furthest state any participant claims.
	State coinjoin.State
}

// Open reports whether the session still takes participants.
func (s *SessionInfo) Open() bool {
	return s.State <= coinjoin.Joining && s.Waiting < s.Session.Participants
}

// Announcements returns the valid sessions announced in the store, oldest
// first.  Duplicate announcements of a session are ignored.
func Announcements(ctx context.Context,
	store datastore.Store) ([]*coinjoin.Session, error) {

	msgs, err := store.Poll(ctx, coinjoin.RootNamespace)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var sessions []*coinjoin.Session
	for _, msg := range msgs {
		env, err := message.DecodeEnvelope(msg)
		if err != nil || env.Kind != message.KindAnnouncement {
			continue
		}
		a, err := message.ParseAnnouncement(env.Payload)
		if err != nil {
			log.Debugf("Ignoring announcement: %v", err)
			continue
		}
		if a.Identifier != env.Session {
			continue
		}
		if _, ok := seen[a.Identifier]; ok {
			continue
		}
		seen[a.Identifier] = struct{}{}

		sessions = append(sessions, a.Session())
	}

	return sessions, nil
}

// Inspect counts the participants of the session.  Statuses are decoded but
// not checked against the chain, so State is what participants claim.  Only
// senders with a valid input count.
func Inspect(ctx context.Context, store datastore.Store,
	keys message.Keys, session *coinjoin.Session) (*SessionInfo, error) {

	msgs, err := store.Poll(ctx, session.Namespace())
	if err != nil {
		return nil, err
	}

	type claim struct {
		sender string
		state  coinjoin.State
	}

	info := &SessionInfo{Session: session, State: coinjoin.Requested}
	inputs := make(map[string]struct{})
	var claims []claim
	for _, msg := range msgs {
		env, err := message.DecodeEnvelope(msg)
		if err != nil || env.Verify(keys, session.Identifier) != nil {
			continue
		}

		switch env.Kind {
		case message.KindInput:
			input, err := message.ParseInput(
				env.Payload, session, keys,
			)
			if err != nil || input.Address != env.Sender {
				continue
			}
			inputs[input.Address] = struct{}{}

		case message.KindStatus:
			status, err := message.DecodeStatus(env.Payload)
			if err != nil {
				continue
			}
			claims = append(claims, claim{
				sender: env.Sender,
				state:  status.State,
			})
		}
	}
	info.Waiting = len(inputs)

	for _, c := range claims {
		if _, ok := inputs[c.sender]; !ok {
			continue
		}
		if c.state > info.State {
			info.State = c.state
		}
	}

	return info, nil
}

// AvailableSessions lists the announced sessions with the number of
// participants each is waiting with.
func AvailableSessions(ctx context.Context, store datastore.Store,
	keys message.Keys) ([]*SessionInfo, error) {

	sessions, err := Announcements(ctx, store)
	if err != nil {
		return nil, err
	}

	infos := make([]*SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		info, err := Inspect(ctx, store, keys, session)
		if err != nil {
			return nil, fmt.Errorf("unable to inspect %v: %w",
				session, err)
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// Announce publishes the session under the root namespace.
func Announce(ctx context.Context, store datastore.Store,
	session *coinjoin.Session) error {

	env, err := message.NewEnvelope(
		message.KindAnnouncement, session.Identifier,
		message.Announce(session),
	)
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	return store.Publish(ctx, coinjoin.RootNamespace, data)
}
