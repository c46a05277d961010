// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/coinmux/btccrypto"
	"github.com/btcsuite/coinmux/coinjoin"
	"github.com/btcsuite/coinmux/datastore/memstore"
	"github.com/btcsuite/coinmux/events"
	"github.com/btcsuite/coinmux/mixer"
	"github.com/stretchr/testify/require"
)

func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"info", true},
		{"off", true},
		{"MIXR=debug,STOR=trace", true},
		{"verbose", false},
		{"MIXR=debug,NOPE=info", false},
		{"MIXR", false},
		{"MIXR=loud", false},
	}

	for _, test := range tests {
		err := parseAndSetDebugLevels(test.level)
		if test.valid {
			require.NoError(t, err, test.level)
		} else {
			require.Error(t, err, test.level)
		}
	}

	setLogLevels(defaultLogLevel)
}

func TestExpandStoreURI(t *testing.T) {
	t.Parallel()

	require.Equal(t, "memory://board", expandStoreURI("memory://board"))
	require.Equal(t, "bolt:///var/board.db",
		expandStoreURI("bolt:///var/board.db"))
	require.True(t, strings.HasPrefix(
		expandStoreURI("sqlite://~/board.db"), "sqlite:///"),
	)
	require.NotContains(t, expandStoreURI("bolt://~/board.db"), "~")
}

func TestPrintEvents(t *testing.T) {
	t.Parallel()

	q := events.NewQueue()
	q.Start()
	defer q.Stop()

	q.Emit(events.Event{
		Source:  events.SourceParticipant,
		Type:    events.TypeProgress,
		Message: "participant joined",
	})
	q.Emit(events.Event{
		Source:  events.SourceMixer,
		Type:    events.TypeCompleted,
		Message: "transaction confirmed",
	})

	var buf bytes.Buffer
	printEvents(&buf, q.Events())

	require.Equal(t, "[participant]: progress - participant joined\n"+
		"[mixer]: completed - transaction confirmed\n", buf.String())
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keys := btccrypto.New(&chaincfg.RegressionNetParams)

	t.Cleanup(func() { memstore.Reset(t.Name()) })
	store := memstore.New(t.Name())
	require.NoError(t, store.Connect(ctx))

	var buf bytes.Buffer
	require.NoError(t, listSessions(ctx, &buf, store, keys))
	require.Equal(t, "No sessions announced\n", buf.String())

	session, err := coinjoin.NewSession(1_000_000, 3, 2_000)
	require.NoError(t, err)
	require.NoError(t, mixer.Announce(ctx, store, session))

	buf.Reset()
	require.NoError(t, listSessions(ctx, &buf, store, keys))
	out := buf.String()
	require.Contains(t, out, session.Identifier)
	require.Contains(t, out, "0 of 3")
	require.Contains(t, out, "0.01 BTC")
	require.Contains(t, out, "Requested")
	require.Contains(t, out, "1 session announced")
}
